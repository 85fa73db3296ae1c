package pvapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SimCamera is the state of one camera inside the Sim engine.  The
// attribute maps are keyed by vendor attribute name and may be inspected
// or mutated directly by tests; the Sim's methods guard them with the
// engine lock, so direct access should only happen while the camera is
// not acquiring.
type SimCamera struct {
	// Info is the directory entry returned by CameraInfo
	Info CameraInfo

	// Uints holds the integer attributes
	Uints map[string]uint32

	// Floats holds the float attributes
	Floats map[string]float32

	// Enums holds the enumerated attributes as strings
	Enums map[string]string

	// Strings holds the string attributes
	Strings map[string]string

	// OpenErr, if non-nil, is returned from CameraOpen
	OpenErr error

	// StartErr, if non-nil, is returned from CaptureStart
	StartErr error

	// AttrErr maps attribute names to errors to inject on access
	AttrErr map[string]error

	open      bool
	capturing bool
	acquiring bool
	queue     []simQueued
	frames    uint32
	epoch     time.Time
}

type simQueued struct {
	frame *Frame
	cb    FrameCallback
}

// NewSimCamera returns a simulated mono camera with the given identity and
// sensor geometry, with attributes populated to power-on defaults.
func NewSimCamera(uniqueID, width, height, bits uint32) *SimCamera {
	bpp := (bits-1)/8 + 1
	return &SimCamera{
		Info: CameraInfo{
			UniqueID:        uniqueID,
			DisplayName:     fmt.Sprintf("GC%d Sim", uniqueID),
			SerialString:    fmt.Sprintf("02-2100A-%05d", uniqueID),
			PermittedAccess: AccessMonitor | AccessMaster,
		},
		Uints: map[string]uint32{
			"SensorBits":            bits,
			"SensorWidth":           width,
			"SensorHeight":          height,
			"TimeStampFrequency":    1000000,
			"BinningX":              1,
			"BinningY":              1,
			"RegionX":               0,
			"RegionY":               0,
			"Width":                 width,
			"Height":                height,
			"TotalBytesPerFrame":    width * height * bpp,
			"AcquisitionFrameCount": 1,
			"ExposureValue":         10000,
			"GainValue":             0,
			"StatFramesCompleted":   0,
			"StatFramesDropped":     0,
			"StatPacketsErroneous":  0,
			"StatPacketsMissed":     0,
			"StatPacketsReceived":   0,
			"StatPacketsRequested":  0,
			"StatPacketsResent":     0,
		},
		Floats: map[string]float32{
			"FrameRate":     10,
			"StatFrameRate": 0,
		},
		Enums: map[string]string{
			"SensorType":            "Mono",
			"PixelFormat":           "Mono8",
			"AcquisitionMode":       "SingleFrame",
			"FrameStartTriggerMode": "Freerun",
			"StatDriverType":        "Standard",
		},
		Strings: map[string]string{
			"DeviceIPAddress":   fmt.Sprintf("192.168.1.%d", uniqueID%250+1),
			"StatFilterVersion": "1.24",
		},
		epoch: time.Now(),
	}
}

// Sim is an in-memory capture engine.  It implements Engine faithfully
// enough to exercise the whole driver: frames are delivered on a
// goroutine paced to the FrameRate attribute, and clearing the capture
// queue cancels queued frames synchronously on the caller's thread, as
// the real engine does.
type Sim struct {
	mu      sync.Mutex
	next    Handle
	cameras map[uint32]*SimCamera
	handles map[Handle]*SimCamera
}

// NewSim returns an empty Sim engine
func NewSim() *Sim {
	return &Sim{
		next:    1,
		cameras: make(map[uint32]*SimCamera),
		handles: make(map[Handle]*SimCamera),
	}
}

// AddCamera makes a camera visible to the engine
func (s *Sim) AddCamera(cam *SimCamera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[cam.Info.UniqueID] = cam
}

// Camera returns the simulated camera with the given unique ID, or nil
func (s *Sim) Camera(uniqueID uint32) *SimCamera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameras[uniqueID]
}

// CameraInfo resolves a camera's directory entry by unique ID
func (s *Sim) CameraInfo(uniqueID uint32) (CameraInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.cameras[uniqueID]
	if !ok {
		return CameraInfo{}, Error(ErrNotFound)
	}
	return cam.Info, nil
}

// CameraList returns the directory entries of all visible cameras
func (s *Sim) CameraList() []CameraInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CameraInfo, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, cam.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// CameraOpen opens a camera at the given access level
func (s *Sim) CameraOpen(uniqueID uint32, access AccessFlags) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.cameras[uniqueID]
	if !ok {
		return 0, Error(ErrNotFound)
	}
	if cam.OpenErr != nil {
		return 0, cam.OpenErr
	}
	if access&cam.Info.PermittedAccess != access {
		return 0, Error(ErrAccessDenied)
	}
	h := s.next
	s.next++
	cam.open = true
	s.handles[h] = cam
	return h, nil
}

// CameraClose closes the handle
func (s *Sim) CameraClose(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.handles[h]
	if !ok {
		return Error(ErrBadHandle)
	}
	cam.open = false
	cam.capturing = false
	cam.acquiring = false
	cam.queue = nil
	delete(s.handles, h)
	return nil
}

func (s *Sim) camera(h Handle) (*SimCamera, error) {
	cam, ok := s.handles[h]
	if !ok {
		return nil, Error(ErrBadHandle)
	}
	return cam, nil
}

// CaptureStart starts the capture machinery
func (s *Sim) CaptureStart(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if cam.StartErr != nil {
		return cam.StartErr
	}
	cam.capturing = true
	return nil
}

// CaptureEnd stops the capture machinery
func (s *Sim) CaptureEnd(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	cam.capturing = false
	cam.acquiring = false
	return nil
}

// CaptureQueueFrame submits a frame to the capture queue
func (s *Sim) CaptureQueueFrame(h Handle, f *Frame, cb FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if !cam.capturing {
		return Error(ErrBadSequence)
	}
	cam.queue = append(cam.queue, simQueued{frame: f, cb: cb})
	return nil
}

// CaptureQueueClear cancels all queued frames.  Callbacks fire
// synchronously on the caller's thread with Status == ErrCancelled, which
// is how the real engine behaves when the queue is cleared during
// disconnect.
func (s *Sim) CaptureQueueClear(h Handle) error {
	s.mu.Lock()
	cam, err := s.camera(h)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	q := cam.queue
	cam.queue = nil
	s.mu.Unlock()
	for _, item := range q {
		item.frame.Status = ErrCancelled
		item.cb(item.frame)
	}
	return nil
}

// CaptureAdjustPacketSize negotiates the transport packet size
func (s *Sim) CaptureAdjustPacketSize(h Handle, maxSize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if maxSize == 0 {
		return Error(ErrBadParameter)
	}
	cam.Uints["PacketSize"] = maxSize
	return nil
}

// AttrUint32Get reads an integer attribute
func (s *Sim) AttrUint32Get(h Handle, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return 0, err
	}
	if err := cam.AttrErr[name]; err != nil {
		return 0, err
	}
	v, ok := cam.Uints[name]
	if !ok {
		return 0, Error(ErrNotFound)
	}
	return v, nil
}

// AttrUint32Set writes an integer attribute
func (s *Sim) AttrUint32Set(h Handle, name string, v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if err := cam.AttrErr[name]; err != nil {
		return err
	}
	if _, ok := cam.Uints[name]; !ok {
		return Error(ErrNotFound)
	}
	cam.Uints[name] = v
	cam.recomputeFrameSize()
	return nil
}

// AttrFloat32Get reads a float attribute
func (s *Sim) AttrFloat32Get(h Handle, name string) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return 0, err
	}
	if err := cam.AttrErr[name]; err != nil {
		return 0, err
	}
	v, ok := cam.Floats[name]
	if !ok {
		return 0, Error(ErrNotFound)
	}
	return v, nil
}

// AttrFloat32Set writes a float attribute
func (s *Sim) AttrFloat32Set(h Handle, name string, v float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if err := cam.AttrErr[name]; err != nil {
		return err
	}
	if _, ok := cam.Floats[name]; !ok {
		return Error(ErrNotFound)
	}
	cam.Floats[name] = v
	return nil
}

// AttrEnumGet reads an enumerated attribute
func (s *Sim) AttrEnumGet(h Handle, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return "", err
	}
	if err := cam.AttrErr[name]; err != nil {
		return "", err
	}
	v, ok := cam.Enums[name]
	if !ok {
		return "", Error(ErrNotFound)
	}
	return v, nil
}

// AttrEnumSet writes an enumerated attribute
func (s *Sim) AttrEnumSet(h Handle, name string, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	if err := cam.AttrErr[name]; err != nil {
		return err
	}
	if _, ok := cam.Enums[name]; !ok {
		return Error(ErrNotFound)
	}
	cam.Enums[name] = v
	cam.recomputeFrameSize()
	return nil
}

// AttrStringGet reads a string attribute
func (s *Sim) AttrStringGet(h Handle, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return "", err
	}
	if err := cam.AttrErr[name]; err != nil {
		return "", err
	}
	v, ok := cam.Strings[name]
	if !ok {
		return "", Error(ErrNotFound)
	}
	return v, nil
}

// CommandRun executes a command attribute
func (s *Sim) CommandRun(h Handle, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, err := s.camera(h)
	if err != nil {
		return err
	}
	switch name {
	case "AcquisitionStart":
		if !cam.capturing {
			return Error(ErrBadSequence)
		}
		if cam.acquiring {
			return Error(ErrBadSequence)
		}
		remaining := 1
		switch cam.Enums["AcquisitionMode"] {
		case "SingleFrame":
			remaining = 1
		case "MultiFrame", "Recorder":
			remaining = int(cam.Uints["AcquisitionFrameCount"])
		case "Continuous":
			remaining = -1
		}
		cam.acquiring = true
		go s.deliver(cam, remaining)
		return nil
	case "AcquisitionAbort":
		cam.acquiring = false
		return nil
	default:
		return Error(ErrNotFound)
	}
}

// recomputeFrameSize keeps TotalBytesPerFrame consistent with the readout
// geometry and pixel format.  Caller holds the engine lock.
func (cam *SimCamera) recomputeFrameSize() {
	bpp := uint32(1)
	switch cam.Enums["PixelFormat"] {
	case "Mono16", "Bayer16":
		bpp = 2
	}
	cam.Uints["TotalBytesPerFrame"] = cam.Uints["Width"] * cam.Uints["Height"] * bpp
}

func formatFromName(name string) PixelFormat {
	switch name {
	case "Mono16":
		return FmtMono16
	case "Bayer8":
		return FmtBayer8
	case "Bayer16":
		return FmtBayer16
	case "Rgb24":
		return FmtRgb24
	case "Rgb48":
		return FmtRgb48
	default:
		return FmtMono8
	}
}

// deliver runs on its own goroutine, completing queued frames at the
// programmed frame rate until the requested count is exhausted or the
// acquisition is aborted.  remaining < 0 means unbounded.
func (s *Sim) deliver(cam *SimCamera, remaining int) {
	lim := rate.NewLimiter(rate.Limit(10), 1)
	for {
		s.mu.Lock()
		if !cam.acquiring || !cam.open {
			s.mu.Unlock()
			return
		}
		fr := cam.Floats["FrameRate"]
		if fr <= 0 {
			fr = 1
		}
		lim.SetLimit(rate.Limit(fr))
		if len(cam.queue) == 0 {
			// the driver has not requeued yet; count a drop and retry
			cam.Uints["StatFramesDropped"]++
			s.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		item := cam.queue[0]
		cam.queue = cam.queue[1:]
		f := item.frame
		f.Status = ErrSuccess
		f.Width = cam.Uints["Width"]
		f.Height = cam.Uints["Height"]
		f.Format = formatFromName(cam.Enums["PixelFormat"])
		cam.frames++
		f.FrameCount = cam.frames
		freq := cam.Uints["TimeStampFrequency"]
		ticks := uint64(time.Since(cam.epoch).Seconds() * float64(freq))
		f.TimestampLo = uint32(ticks)
		f.TimestampHi = uint32(ticks >> 32)
		fill := int(cam.Uints["TotalBytesPerFrame"])
		if fill > len(f.ImageBuffer) {
			fill = len(f.ImageBuffer)
		}
		for i := 0; i < fill; i++ {
			f.ImageBuffer[i] = byte(i + int(f.FrameCount))
		}
		cam.Uints["StatFramesCompleted"]++
		cam.Uints["StatPacketsReceived"] += uint32(fill/1500 + 1)
		cam.Uints["StatPacketsRequested"] += uint32(fill/1500 + 1)
		cam.Floats["StatFrameRate"] = fr
		if remaining > 0 {
			remaining--
		}
		done := remaining == 0
		if done {
			cam.acquiring = false
		}
		s.mu.Unlock()
		item.cb(f)
		if done {
			return
		}
		if err := lim.Wait(context.Background()); err != nil {
			return
		}
	}
}
