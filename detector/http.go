package detector

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"

	"github.jpl.nasa.gov/bdube/prosilica/generichttp"
	"github.jpl.nasa.gov/bdube/prosilica/imgpool"
)

// HTTPWrapper provides HTTP bindings on top of a camera session.
type HTTPWrapper struct {
	// Camera is the camera being wrapped
	*Camera

	// RouteTable maps (method, path) to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new wrapper with the route table populated
func NewHTTPWrapper(c *Camera) HTTPWrapper {
	w := HTTPWrapper{Camera: c}
	rt := generichttp.RouteTable{
		// lifecycle
		generichttp.MethodPath{Method: http.MethodPost, Path: "/connect"}:    generichttp.Action(c.Connect),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/disconnect"}: generichttp.Action(c.Disconnect),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/connected"}: generichttp.GetBool(func() (bool, error) {
			return c.Connected(), nil
		}),

		// acquisition
		generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire"}: generichttp.SetBool(func(b bool) error {
			v := 0
			if b {
				v = 1
			}
			return c.WriteInt(Acquire, v)
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/acquire"}: generichttp.GetBool(func() (bool, error) {
			v, err := c.GetInt(Acquire)
			return v != 0, err
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/image"}: w.GetImage,

		// exposure manipulation
		generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure-time"}:  w.getFloat(AcquireTime),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure-time"}: w.setFloat(AcquireTime),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/period"}:         w.getFloat(AcquirePeriod),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/period"}:        w.setFloat(AcquirePeriod),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/gain"}:           w.getFloat(Gain),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/gain"}:          w.setFloat(Gain),

		// modes and counts
		generichttp.MethodPath{Method: http.MethodGet, Path: "/image-mode"}:    w.getInt(ImageMode),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/image-mode"}:   w.setInt(ImageMode),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/num-images"}:    w.getInt(NumImages),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/num-images"}:   w.setInt(NumImages),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/trigger-mode"}:  w.getInt(TriggerMode),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/trigger-mode"}: w.setInt(TriggerMode),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/trigger-modes"}: w.GetTriggerModes,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/data-type"}:     w.getInt(DataType),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/data-type"}:    w.setInt(DataType),

		// geometry
		generichttp.MethodPath{Method: http.MethodGet, Path: "/geometry"}:  w.GetGeometryHTTP,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/geometry"}: w.SetGeometryHTTP,

		// recording
		generichttp.MethodPath{Method: http.MethodGet, Path: "/autosave"}:   w.getBoolInt(AutoSave),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/autosave"}:  w.setBoolInt(AutoSave),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/write-file"}: generichttp.Action(func() error {
			return c.WriteInt(WriteFile, 1)
		}),

		// statistics and diagnostics
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stats/refresh"}: generichttp.Action(func() error {
			return c.WriteInt(ReadStats, 1)
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/stats"}:  w.GetStats,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/params"}: w.GetParams,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/report"}: w.GetReport,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPWrapper) getFloat(p Param) http.HandlerFunc {
	return generichttp.GetFloat(func() (float64, error) { return h.Camera.GetDouble(p) })
}

func (h HTTPWrapper) setFloat(p Param) http.HandlerFunc {
	return generichttp.SetFloat(func(v float64) error { return h.Camera.WriteFloat(p, v) })
}

func (h HTTPWrapper) getInt(p Param) http.HandlerFunc {
	return generichttp.GetInt(func() (int, error) { return h.Camera.GetInt(p) })
}

func (h HTTPWrapper) setInt(p Param) http.HandlerFunc {
	return generichttp.SetInt(func(v int) error { return h.Camera.WriteInt(p, v) })
}

func (h HTTPWrapper) getBoolInt(p Param) http.HandlerFunc {
	return generichttp.GetBool(func() (bool, error) {
		v, err := h.Camera.GetInt(p)
		return v != 0, err
	})
}

func (h HTTPWrapper) setBoolInt(p Param) http.HandlerFunc {
	return generichttp.SetBool(func(b bool) error {
		v := 0
		if b {
			v = 1
		}
		return h.Camera.WriteInt(p, v)
	})
}

// GetTriggerModes returns the fixed trigger mode table as a JSON array,
// index position matching the trigger-mode parameter value
func (h HTTPWrapper) GetTriggerModes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TriggerModes)
}

// GetGeometryHTTP returns the logical geometry as JSON
func (h HTTPWrapper) GetGeometryHTTP(w http.ResponseWriter, r *http.Request) {
	g, err := h.Camera.GetGeometry()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g)
}

// SetGeometryHTTP applies a JSON geometry as one batch
func (h HTTPWrapper) SetGeometryHTTP(w http.ResponseWriter, r *http.Request) {
	g := Geometry{}
	err := json.NewDecoder(r.Body).Decode(&g)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Camera.SetGeometry(g); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetStats returns the transport statistics as a JSON object, refreshing
// them from hardware first
func (h HTTPWrapper) GetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.Camera.WriteInt(ReadStats, 1); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	c := h.Camera
	drvType, _ := c.GetString(StatDriverType)
	filtVer, _ := c.GetString(StatFilterVersion)
	frameRate, _ := c.GetDouble(StatFrameRate)
	out := struct {
		DriverType       string  `json:"driverType"`
		FilterVersion    string  `json:"filterVersion"`
		FrameRate        float64 `json:"frameRate"`
		FramesCompleted  int     `json:"framesCompleted"`
		FramesDropped    int     `json:"framesDropped"`
		PacketsErroneous int     `json:"packetsErroneous"`
		PacketsMissed    int     `json:"packetsMissed"`
		PacketsReceived  int     `json:"packetsReceived"`
		PacketsRequested int     `json:"packetsRequested"`
		PacketsResent    int     `json:"packetsResent"`
		BadFrames        int     `json:"badFrames"`
	}{DriverType: drvType, FilterVersion: filtVer, FrameRate: frameRate}
	out.FramesCompleted, _ = c.GetInt(StatFramesCompleted)
	out.FramesDropped, _ = c.GetInt(StatFramesDropped)
	out.PacketsErroneous, _ = c.GetInt(StatPacketsErroneous)
	out.PacketsMissed, _ = c.GetInt(StatPacketsMissed)
	out.PacketsReceived, _ = c.GetInt(StatPacketsReceived)
	out.PacketsRequested, _ = c.GetInt(StatPacketsRequested)
	out.PacketsResent, _ = c.GetInt(StatPacketsResent)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetParams dumps the parameter library as plain text
func (h HTTPWrapper) GetParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	h.Camera.DumpParams(w)
}

// GetReport writes the diagnostic report; detail level comes from the
// details query parameter, default 1
func (h HTTPWrapper) GetReport(w http.ResponseWriter, r *http.Request) {
	details := 1
	if s := r.URL.Query().Get("details"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		details = d
	}
	w.Header().Set("Content-Type", "text/plain")
	h.Camera.Report(w, details)
}

// GetImage returns the most recent image on a GET request.
//
// the image format may be specified in the fmt query parameter; one of
// jpg, png, fits.  default is jpg.  16-bit data is scaled to 8 bits for
// jpg and png.
func (h HTTPWrapper) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.Camera.LastImage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		buf, err := grayBytes(&img)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		im := &image.Gray{Pix: buf, Stride: img.Width, Rect: image.Rect(0, 0, img.Width, img.Height)}
		if format == "jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, im, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, im)
		}
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		if err := writeFITS(w, &img); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be one of jpg, png, fits", http.StatusBadRequest)
	}
}

// grayBytes converts an image to 8-bit grayscale for preview encoders
func grayBytes(img *imgpool.Image) ([]byte, error) {
	pix := img.Pixels()
	switch img.DataType {
	case imgpool.UInt8:
		return pix, nil
	case imgpool.UInt16:
		n := len(pix) / 2
		buf := make([]byte, n)
		for i := 0; i < n; i++ {
			v := uint16(pix[2*i]) | uint16(pix[2*i+1])<<8
			buf[i] = byte(v / 256) // scale 16 to 8 bits
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("data type %s not supported for preview", img.DataType)
	}
}
