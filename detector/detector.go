/*Package detector exposes control of Prosilica GigE/Firewire cameras in Go.

The package owns the capture state machine: the connect/disconnect
lifecycle, translation between logical parameters and hardware attributes,
and the frame completion callback that keeps the double-buffered capture
queue running.  All public operations and the completion callback are
serialized by one session-wide mutex; the callback releases it around the
downstream image delivery and returns without taking it at all for
cancelled frames, which arrive synchronously from the disconnect path.
*/
package detector

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.jpl.nasa.gov/bdube/prosilica/imgpool"
	"github.jpl.nasa.gov/bdube/prosilica/imgrec"
	"github.jpl.nasa.gov/bdube/prosilica/params"
	"github.jpl.nasa.gov/bdube/prosilica/pvapi"
)

const (
	// MaxFrames is the number of capture buffer slots kept on the hardware
	// queue
	MaxFrames = 2

	// maxPacketSize is the transport packet size negotiated at connect
	maxPacketSize = 8228
)

var (
	// ErrNotConnected is generated when an operation requires an open
	// camera and there is none
	ErrNotConnected = errors.New("camera is not connected")

	// ErrNoImage is generated when no completed image is available yet
	ErrNoImage = errors.New("no image has been acquired")
)

// FrameSink receives each completed image.  It is invoked on the engine's
// callback thread with the session mutex released, so it may call back
// into the camera.  The image is owned by the session and valid until the
// next successful completion supersedes it; sinks that need the pixels
// longer must copy.
type FrameSink func(img *imgpool.Image)

type frameSlot struct {
	frame pvapi.Frame
	image *imgpool.Image
}

// Camera is the live binding between this driver and one physical camera.
// The zero value is not usable; see New.
type Camera struct {
	mu     sync.Mutex
	engine pvapi.Engine
	lib    *params.Library
	pool   *imgpool.Pool
	rec    *imgrec.Recorder
	sink   FrameSink

	uniqueID  uint32
	handle    pvapi.Handle
	connected bool
	info      pvapi.CameraInfo

	sensorType         string
	ipAddress          string
	sensorBits         uint32
	sensorWidth        uint32
	sensorHeight       uint32
	timeStampFrequency uint32
	maxFrameSize       int

	framesRemaining int
	frames          [MaxFrames]frameSlot
	current         *imgpool.Image
}

// New returns a Camera bound to the engine and unique ID, with the
// parameter library populated to power-on defaults.  No hardware is
// touched until Connect.
func New(engine pvapi.Engine, uniqueID uint32) *Camera {
	c := &Camera{
		engine:   engine,
		uniqueID: uniqueID,
		lib:      params.New(paramDefs),
	}
	c.setInt(Connected, 0)
	c.setInt(Acquire, 0)
	c.setInt(DetectorState, StateIdle)
	c.setInt(ImageMode, int(ModeSingle))
	c.setInt(TriggerMode, 0)
	c.setInt(NumImages, 1)
	c.setInt(NumExposures, 1)
	c.setInt(BinX, 1)
	c.setInt(BinY, 1)
	c.setInt(MinX, 0)
	c.setInt(MinY, 0)
	c.setInt(SizeX, 0)
	c.setInt(SizeY, 0)
	c.setInt(ImageCounter, 0)
	c.setInt(AutoSave, 0)
	c.setInt(BadFrames, 0)
	c.setDouble(Gain, 0)
	return c
}

// UniqueID returns the engine identity of the camera
func (c *Camera) UniqueID() uint32 {
	return c.uniqueID
}

// SetSink registers the downstream consumer of completed images
func (c *Camera) SetSink(sink FrameSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// SetRecorder attaches the recorder used by auto-save and WriteFile
func (c *Camera) SetRecorder(rec *imgrec.Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = rec
}

// AddCallback registers an observer for parameter changes.  Callbacks are
// invoked with the session mutex held and must not call back into the
// camera.
func (c *Camera) AddCallback(cb params.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lib.AddCallback(cb)
}

// LookupParam resolves a client-facing parameter name, case-insensitively
func (c *Camera) LookupParam(name string) (Param, error) {
	idx, err := c.lib.Lookup(name)
	return Param(idx), err
}

// parameter library helpers.  The library cannot fail when indexed by the
// Param constants, so these drop the error the same way the batch status
// absorbs it.
func (c *Camera) setInt(p Param, v int)        { c.lib.SetInt(int(p), v) }
func (c *Camera) setDouble(p Param, v float64) { c.lib.SetDouble(int(p), v) }
func (c *Camera) setString(p Param, v string)  { c.lib.SetString(int(p), v) }

func (c *Camera) getInt(p Param) int {
	v, _ := c.lib.GetInt(int(p))
	return v
}

func (c *Camera) getDouble(p Param) float64 {
	v, _ := c.lib.GetDouble(int(p))
	return v
}

// GetInt reads an integer parameter
func (c *Camera) GetInt(p Param) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lib.GetInt(int(p))
}

// GetDouble reads a double parameter
func (c *Camera) GetDouble(p Param) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lib.GetDouble(int(p))
}

// GetString reads a string parameter
func (c *Camera) GetString(p Param) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lib.GetString(int(p))
}

// Connected returns true if the session holds an open camera
func (c *Camera) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the camera and brings the capture pipeline up.  If the
// session is already connected it is torn down first.  Failure at any
// step leaves the session fully disconnected; retry is caller-driven.
func (c *Camera) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.connect()
	if err != nil {
		// no half-open handles; the next connect starts from scratch
		c.disconnect()
		c.lib.CallCallbacks()
		return err
	}
	return nil
}

func (c *Camera) connect() error {
	c.disconnect()

	info, err := c.engine.CameraInfo(c.uniqueID)
	if err != nil {
		return fmt.Errorf("cannot find camera %d: %w", c.uniqueID, err)
	}
	if info.PermittedAccess&pvapi.AccessMaster == 0 {
		return fmt.Errorf("cannot get control of camera %d: %w", c.uniqueID, pvapi.Error(pvapi.ErrAccessDenied))
	}
	c.info = info

	h, err := c.engine.CameraOpen(c.uniqueID, pvapi.AccessMaster)
	if err != nil {
		return fmt.Errorf("unable to open camera %d: %w", c.uniqueID, err)
	}
	c.handle = h

	if err := c.engine.CaptureAdjustPacketSize(h, maxPacketSize); err != nil {
		return fmt.Errorf("unable to adjust packet size on camera %d: %w", c.uniqueID, err)
	}
	if err := c.engine.CaptureStart(h); err != nil {
		return fmt.Errorf("unable to start capture on camera %d: %w", c.uniqueID, err)
	}

	// query the immutable properties of the sensor
	var status pvapi.Code
	c.sensorType, err = c.engine.AttrEnumGet(h, "SensorType")
	status |= pvapi.CodeOf(err)
	c.sensorBits, err = c.engine.AttrUint32Get(h, "SensorBits")
	status |= pvapi.CodeOf(err)
	c.sensorWidth, err = c.engine.AttrUint32Get(h, "SensorWidth")
	status |= pvapi.CodeOf(err)
	c.sensorHeight, err = c.engine.AttrUint32Get(h, "SensorHeight")
	status |= pvapi.CodeOf(err)
	c.timeStampFrequency, err = c.engine.AttrUint32Get(h, "TimeStampFrequency")
	status |= pvapi.CodeOf(err)
	c.ipAddress, err = c.engine.AttrStringGet(h, "DeviceIPAddress")
	status |= pvapi.CodeOf(err)
	if status != 0 {
		return fmt.Errorf("unable to get sensor data on camera %d: %w", c.uniqueID, pvapi.Error(status))
	}
	if c.sensorType != "Mono" {
		return fmt.Errorf("camera %d sensor type %q: only mono sensors are supported", c.uniqueID, c.sensorType)
	}
	if c.timeStampFrequency == 0 {
		c.timeStampFrequency = 1
	}

	// buffers are sized for the largest possible frame so geometry changes
	// mid-stream never race a reallocation; frames queued with the old
	// readout settings still fit
	bytesPerPixel := (int(c.sensorBits)-1)/8 + 1
	c.maxFrameSize = int(c.sensorWidth) * int(c.sensorHeight) * bytesPerPixel
	c.pool = imgpool.New(c.maxFrameSize)
	for i := range c.frames {
		slot := &c.frames[i]
		img, err := c.pool.Allocate(int(c.sensorWidth), int(c.sensorHeight), c.maxFrameSize)
		if err != nil {
			return fmt.Errorf("unable to allocate image %d on camera %d: %w", i, c.uniqueID, err)
		}
		slot.image = img
		slot.frame = pvapi.Frame{ImageBuffer: img.Data, Slot: i}
		if err := c.engine.CaptureQueueFrame(c.handle, &slot.frame, c.frameCallback); err != nil {
			return fmt.Errorf("unable to queue frame %d on camera %d: %w", i, c.uniqueID, err)
		}
	}

	c.setString(Manufacturer, "Prosilica")
	c.setString(Model, info.DisplayName)
	c.setInt(SizeX, int(c.sensorWidth))
	c.setInt(SizeY, int(c.sensorHeight))
	c.setInt(MaxSizeX, int(c.sensorWidth))
	c.setInt(MaxSizeY, int(c.sensorHeight))
	c.setInt(BadFrames, 0)

	if status := c.readParameters(); status != 0 {
		return fmt.Errorf("unable to read parameters on camera %d: %w", c.uniqueID, pvapi.Error(status))
	}
	if status := c.readStats(); status != 0 {
		return fmt.Errorf("unable to read statistics on camera %d: %w", c.uniqueID, pvapi.Error(status))
	}

	c.connected = true
	c.setInt(Connected, 1)
	c.lib.CallCallbacks()
	log.Printf("detector: connected to camera %d (%s at %s)", c.uniqueID, info.DisplayName, c.ipAddress)
	return nil
}

// Disconnect tears the capture pipeline down and closes the camera.
// Calling it when already disconnected is a no-op success.
func (c *Camera) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.disconnect()
	c.lib.CallCallbacks()
	return err
}

// disconnect does the teardown.  Caller holds the mutex.  The queue clear
// fires the completion callback synchronously with cancelled status for
// every in-flight frame; the callback's cancelled path returns before
// touching the mutex, which is what makes this safe.
func (c *Camera) disconnect() error {
	if c.handle == 0 {
		return nil
	}
	var status pvapi.Code
	status |= pvapi.CodeOf(c.engine.CaptureQueueClear(c.handle))
	status |= pvapi.CodeOf(c.engine.CaptureEnd(c.handle))
	status |= pvapi.CodeOf(c.engine.CameraClose(c.handle))
	if status != 0 {
		log.Printf("detector: unable to cleanly close camera %d, status=%d", c.uniqueID, status)
	}
	for i := range c.frames {
		slot := &c.frames[i]
		if slot.image != nil {
			c.pool.Release(slot.image)
			slot.image = nil
		}
		slot.frame = pvapi.Frame{}
	}
	// the retained image belongs to this session's pool; connect makes a
	// fresh pool, so letting it outlive the session would leak a foreign
	// block into the next one
	if c.current != nil {
		c.pool.Release(c.current)
		c.current = nil
	}
	c.handle = 0
	c.connected = false
	c.framesRemaining = 0
	c.setInt(Connected, 0)
	c.setInt(Acquire, 0)
	c.setInt(DetectorState, StateIdle)
	return pvapi.Error(status)
}

// frameCallback is invoked by the engine when a queued frame completes.
// It runs on the engine's callback thread, never the client's.
func (c *Camera) frameCallback(f *pvapi.Frame) {
	// A cancelled frame is delivered synchronously from the disconnect
	// path, which already holds the mutex on this thread.  Taking it here
	// would deadlock; return without locking or mutating anything.
	if f.Status == pvapi.ErrCancelled {
		return
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	slot := &c.frames[f.Slot]
	requeue := true

	if f.Status == pvapi.ErrSuccess {
		img := slot.image
		// install the new image before retiring the old one, so there is
		// never a window with no current image
		prev := c.current
		c.current = img
		slot.image = nil
		if prev != nil {
			c.pool.Release(prev)
		}
		img.Width = int(f.Width)
		img.Height = int(f.Height)
		switch f.Format {
		case pvapi.FmtMono8, pvapi.FmtBayer8:
			img.DataType = imgpool.UInt8
		case pvapi.FmtMono16, pvapi.FmtBayer16:
			img.DataType = imgpool.UInt16
		default:
			// unsupported formats (e.g. Rgb48) land on the 32-bit
			// placeholder; a documented limitation, not a conversion
			img.DataType = imgpool.UInt32
		}
		img.UniqueID = int(f.FrameCount)
		freq := c.timeStampFrequency
		if freq == 0 {
			freq = 1
		}
		img.Timestamp = (float64(f.TimestampLo) + float64(f.TimestampHi)*4294967296.) / float64(freq)

		// deliver outside the lock; the sink may block on, or call back
		// into, this session
		if sink := c.sink; sink != nil {
			c.mu.Unlock()
			sink(img)
			c.mu.Lock()
			if !c.connected {
				c.mu.Unlock()
				return
			}
		}

		if c.framesRemaining > 0 {
			c.framesRemaining--
		}
		if c.framesRemaining == 0 {
			c.setInt(Acquire, 0)
			c.setInt(DetectorState, StateIdle)
		}

		c.setInt(ImageCounter, c.getInt(ImageCounter)+1)

		if c.getInt(AutoSave) != 0 && c.rec != nil && c.rec.Enabled {
			if err := c.writeFile(); err != nil {
				log.Printf("detector: auto-save failed on camera %d: %v", c.uniqueID, err)
			}
		}

		// rearm the slot with a fresh maximum-size block.  Without one the
		// slot's buffer still aliases the image just installed as current,
		// so it must stay off the hardware queue.
		fresh, err := c.pool.Allocate(int(c.sensorWidth), int(c.sensorHeight), c.maxFrameSize)
		if err != nil {
			log.Printf("detector: unable to allocate image on camera %d: %v", c.uniqueID, err)
			requeue = false
		} else {
			slot.image = fresh
			slot.frame.ImageBuffer = fresh.Data
		}
	} else {
		// bad frame: count it, leave the current image alone, recycle the
		// slot's buffer as-is so the stream never stalls
		c.setInt(BadFrames, c.getInt(BadFrames)+1)
	}

	c.lib.CallCallbacks()

	if requeue {
		if err := c.engine.CaptureQueueFrame(c.handle, &slot.frame, c.frameCallback); err != nil {
			log.Printf("detector: unable to requeue frame %d on camera %d: %v", f.Slot, c.uniqueID, err)
		}
	}
	c.mu.Unlock()
}

// setGeometry pushes the six logical geometry parameters to the hardware.
// Hardware attributes are expressed in sensor pixels already divided by
// the bin factor; the logical parameters are full-sensor coordinates.
func (c *Camera) setGeometry() pvapi.Code {
	var status pvapi.Code
	binX := c.getInt(BinX)
	if binX < 1 {
		binX = 1
	}
	binY := c.getInt(BinY)
	if binY < 1 {
		binY = 1
	}
	minX := c.getInt(MinX)
	minY := c.getInt(MinY)
	sizeX := c.getInt(SizeX)
	sizeY := c.getInt(SizeY)

	h := c.handle
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "BinningX", uint32(binX)))
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "BinningY", uint32(binY)))
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "RegionX", uint32(minX/binX)))
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "RegionY", uint32(minY/binY)))
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "Width", uint32(sizeX/binX)))
	status |= pvapi.CodeOf(c.engine.AttrUint32Set(h, "Height", uint32(sizeY/binY)))
	if status != 0 {
		log.Printf("detector: setGeometry error on camera %d, status=%d", c.uniqueID, status)
	}
	return status
}

// getGeometry refreshes the logical geometry parameters from the hardware
func (c *Camera) getGeometry() pvapi.Code {
	var status pvapi.Code
	h := c.handle
	read := func(name string) uint32 {
		v, err := c.engine.AttrUint32Get(h, name)
		status |= pvapi.CodeOf(err)
		return v
	}
	binX := int(read("BinningX"))
	binY := int(read("BinningY"))
	minX := int(read("RegionX"))
	minY := int(read("RegionY"))
	sizeX := int(read("Width"))
	sizeY := int(read("Height"))

	c.setInt(BinX, binX)
	c.setInt(BinY, binY)
	c.setInt(MinX, minX*binX)
	c.setInt(MinY, minY*binY)
	c.setInt(SizeX, sizeX*binX)
	c.setInt(SizeY, sizeY*binY)
	c.setInt(ImageSizeX, sizeX)
	c.setInt(ImageSizeY, sizeY)
	if status != 0 {
		log.Printf("detector: getGeometry error on camera %d, status=%d", c.uniqueID, status)
	}
	return status
}

// readStats refreshes the transport statistics parameters from the
// hardware.  Best-effort: a failed read does not stop the batch.
func (c *Camera) readStats() pvapi.Code {
	var status pvapi.Code
	h := c.handle

	s, err := c.engine.AttrEnumGet(h, "StatDriverType")
	status |= pvapi.CodeOf(err)
	c.setString(StatDriverType, s)

	s, err = c.engine.AttrStringGet(h, "StatFilterVersion")
	status |= pvapi.CodeOf(err)
	c.setString(StatFilterVersion, s)

	f, err := c.engine.AttrFloat32Get(h, "StatFrameRate")
	status |= pvapi.CodeOf(err)
	c.setDouble(StatFrameRate, float64(f))

	for _, pair := range []struct {
		attr string
		p    Param
	}{
		{"StatFramesCompleted", StatFramesCompleted},
		{"StatFramesDropped", StatFramesDropped},
		{"StatPacketsErroneous", StatPacketsErroneous},
		{"StatPacketsMissed", StatPacketsMissed},
		{"StatPacketsReceived", StatPacketsReceived},
		{"StatPacketsRequested", StatPacketsRequested},
		{"StatPacketsResent", StatPacketsResent},
	} {
		u, err := c.engine.AttrUint32Get(h, pair.attr)
		status |= pvapi.CodeOf(err)
		c.setInt(pair.p, int(u))
	}
	if status != 0 {
		log.Printf("detector: readStats error on camera %d, status=%d", c.uniqueID, status)
	}
	return status
}

// readParameters is the consolidated hardware poll run after every
// configuration write, so the published state is always hardware truth.
// Best-effort: the batch runs to completion and the aggregate status is
// logged once at the end.
func (c *Camera) readParameters() pvapi.Code {
	var status pvapi.Code
	h := c.handle

	u, err := c.engine.AttrUint32Get(h, "TotalBytesPerFrame")
	status |= pvapi.CodeOf(err)
	c.setInt(ImageSize, int(u))

	s, err := c.engine.AttrEnumGet(h, "PixelFormat")
	status |= pvapi.CodeOf(err)
	dt := -1
	switch s {
	case "Mono8":
		dt = int(imgpool.UInt8)
	case "Mono16":
		dt = int(imgpool.UInt16)
		// color modes are not supported; -1 marks the format unusable
	}
	c.setInt(DataType, dt)

	status |= c.getGeometry()

	u, err = c.engine.AttrUint32Get(h, "AcquisitionFrameCount")
	status |= pvapi.CodeOf(err)
	c.setInt(NumImages, int(u))

	s, err = c.engine.AttrEnumGet(h, "AcquisitionMode")
	status |= pvapi.CodeOf(err)
	switch s {
	case "SingleFrame":
		c.setInt(ImageMode, int(ModeSingle))
	case "MultiFrame", "Recorder":
		c.setInt(ImageMode, int(ModeMultiple))
	case "Continuous":
		c.setInt(ImageMode, int(ModeContinuous))
	default:
		c.setInt(ImageMode, int(ModeSingle))
		status |= pvapi.ErrInvalidSetup
	}

	s, err = c.engine.AttrEnumGet(h, "FrameStartTriggerMode")
	status |= pvapi.CodeOf(err)
	found := false
	for i, name := range TriggerModes {
		if s == name {
			c.setInt(TriggerMode, i)
			found = true
			break
		}
	}
	if !found {
		// still publish a definite value, but report the mismatch
		c.setInt(TriggerMode, 0)
		status |= pvapi.ErrInvalidSetup
	}

	// the hardware cannot take more than one exposure per frame
	c.setInt(NumExposures, 1)

	// hardware exposure is integer microseconds
	u, err = c.engine.AttrUint32Get(h, "ExposureValue")
	status |= pvapi.CodeOf(err)
	c.setDouble(AcquireTime, float64(u)/1e6)

	// hardware reports a frame rate in Hz
	f, err := c.engine.AttrFloat32Get(h, "FrameRate")
	status |= pvapi.CodeOf(err)
	if f == 0 {
		f = 1
	}
	c.setDouble(AcquirePeriod, 1/float64(f))

	u, err = c.engine.AttrUint32Get(h, "GainValue")
	status |= pvapi.CodeOf(err)
	c.setDouble(Gain, float64(u))

	c.lib.CallCallbacks()

	if status != 0 {
		log.Printf("detector: readParameters error on camera %d, status=%d", c.uniqueID, status)
	}
	return status
}

// WriteInt writes an integer logical parameter, dispatching the
// appropriate hardware traffic, then refreshes all parameters from
// hardware and notifies observers.  The refresh happens even when the
// write itself failed, so published state resyncs to hardware truth.
func (c *Camera) WriteInt(p Param, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var status pvapi.Code

	// store the requested value; the read-back below may overwrite it,
	// and that is the point
	c.setInt(p, value)

	switch p {
	case BinX, BinY, MinX, MinY, SizeX, SizeY:
		// geometry is applied as a batch: bin factors must reach the
		// hardware before absolute width/height mean anything
		status |= c.setGeometry()
	case NumImages:
		status |= pvapi.CodeOf(c.engine.AttrUint32Set(c.handle, "AcquisitionFrameCount", uint32(value)))
	case ImageMode:
		switch AcquireMode(value) {
		case ModeSingle:
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "AcquisitionMode", "SingleFrame"))
		case ModeMultiple:
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "AcquisitionMode", "MultiFrame"))
		case ModeContinuous:
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "AcquisitionMode", "Continuous"))
		}
	case Acquire:
		if value != 0 {
			// the completion callback needs to know when acquisition is
			// complete; continuous mode uses -1 as the unbounded sentinel
			switch AcquireMode(c.getInt(ImageMode)) {
			case ModeSingle:
				c.framesRemaining = 1
			case ModeMultiple:
				c.framesRemaining = c.getInt(NumImages)
			case ModeContinuous:
				c.framesRemaining = -1
			}
			c.setInt(DetectorState, StateAcquire)
			status |= pvapi.CodeOf(c.engine.CommandRun(c.handle, "AcquisitionStart"))
		} else {
			c.setInt(DetectorState, StateIdle)
			status |= pvapi.CodeOf(c.engine.CommandRun(c.handle, "AcquisitionAbort"))
		}
	case TriggerMode:
		if value < 0 || value >= len(TriggerModes) {
			// reject before touching hardware
			status |= pvapi.ErrOutOfRange
		} else {
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "FrameStartTriggerMode", TriggerModes[value]))
		}
	case ReadStats:
		status |= c.readStats()
	case WriteFile:
		if err := c.writeFile(); err != nil {
			log.Printf("detector: write file failed on camera %d: %v", c.uniqueID, err)
			status |= pvapi.ErrInternalFault
		}
	case DataType:
		switch imgpool.DataType(value) {
		case imgpool.UInt8:
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "PixelFormat", "Mono8"))
		case imgpool.UInt16:
			status |= pvapi.CodeOf(c.engine.AttrEnumSet(c.handle, "PixelFormat", "Mono16"))
		default:
			log.Printf("detector: unsupported data type %d on camera %d", value, c.uniqueID)
			status |= pvapi.ErrWrongType
		}
	}

	status |= c.readParameters()
	if status != 0 {
		log.Printf("detector: WriteInt error on camera %d, status=%d param=%s value=%d",
			c.uniqueID, status, c.lib.Name(int(p)), value)
		return pvapi.Error(status)
	}
	return nil
}

// WriteFloat writes a double logical parameter, then refreshes all
// parameters from hardware and notifies observers
func (c *Camera) WriteFloat(p Param, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var status pvapi.Code

	c.setDouble(p, value)

	switch p {
	case AcquireTime:
		// hardware exposure is integer microseconds
		status |= pvapi.CodeOf(c.engine.AttrUint32Set(c.handle, "ExposureValue", uint32(value*1e6)))
	case AcquirePeriod:
		// hardware wants a frame rate in Hz
		if value == 0 {
			value = .01
		}
		status |= pvapi.CodeOf(c.engine.AttrFloat32Set(c.handle, "FrameRate", float32(1/value)))
	case Gain:
		status |= pvapi.CodeOf(c.engine.AttrUint32Set(c.handle, "GainValue", uint32(value)))
	}

	status |= c.readParameters()
	if status != 0 {
		log.Printf("detector: WriteFloat error on camera %d, status=%d param=%s value=%f",
			c.uniqueID, status, c.lib.Name(int(p)), value)
		return pvapi.Error(status)
	}
	return nil
}

// Geometry is the logical readout geometry in full-sensor pixel
// coordinates.
type Geometry struct {
	// BinX and BinY are the binning factors
	BinX int `json:"binX"`
	BinY int `json:"binY"`

	// MinX and MinY are the region origin
	MinX int `json:"minX"`
	MinY int `json:"minY"`

	// SizeX and SizeY are the region size
	SizeX int `json:"sizeX"`
	SizeY int `json:"sizeY"`
}

// SetGeometry applies all six geometry parameters as one batch, then
// refreshes from hardware.  Batching matters: bin factors must be set
// before absolute width and height are meaningful.
func (c *Camera) SetGeometry(g Geometry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setInt(BinX, g.BinX)
	c.setInt(BinY, g.BinY)
	c.setInt(MinX, g.MinX)
	c.setInt(MinY, g.MinY)
	c.setInt(SizeX, g.SizeX)
	c.setInt(SizeY, g.SizeY)
	var status pvapi.Code
	status |= c.setGeometry()
	status |= c.readParameters()
	if status != 0 {
		return pvapi.Error(status)
	}
	return nil
}

// GetGeometry reads the logical geometry back from the parameter library
func (c *Camera) GetGeometry() (Geometry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		g   Geometry
		err error
	)
	read := func(p Param) int {
		v, e := c.lib.GetInt(int(p))
		if e != nil && err == nil {
			err = e
		}
		return v
	}
	g.BinX = read(BinX)
	g.BinY = read(BinY)
	g.MinX = read(MinX)
	g.MinY = read(MinY)
	g.SizeX = read(SizeX)
	g.SizeY = read(SizeY)
	return g, err
}

// LastImage returns a copy of the most recently completed image.  The
// copy is safe to hold indefinitely.
func (c *Camera) LastImage() (imgpool.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return imgpool.Image{}, ErrNoImage
	}
	out := *c.current
	out.Data = make([]byte, len(c.current.Pixels()))
	copy(out.Data, c.current.Pixels())
	return out, nil
}

// DumpParams writes a diagnostic listing of the parameter library to w
func (c *Camera) DumpParams(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lib.Dump(w)
}

// Report writes a diagnostic description of the session to w.  Higher
// detail levels include the sensor properties and the engine's camera
// directory.
func (c *Camera) Report(w io.Writer, details int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, "Prosilica camera, unique ID=%d connected=%t\n", c.uniqueID, c.connected)
	if details > 0 {
		fmt.Fprintf(w, "  IP address:        %s\n", c.ipAddress)
		fmt.Fprintf(w, "  Serial number:     %s\n", c.info.SerialString)
		fmt.Fprintf(w, "  Model:             %s\n", c.info.DisplayName)
		fmt.Fprintf(w, "  Sensor type:       %s\n", c.sensorType)
		fmt.Fprintf(w, "  Sensor bits:       %d\n", c.sensorBits)
		fmt.Fprintf(w, "  Sensor width:      %d\n", c.sensorWidth)
		fmt.Fprintf(w, "  Sensor height:     %d\n", c.sensorHeight)
		fmt.Fprintf(w, "  Frame buffer size: %d\n", c.maxFrameSize)
		fmt.Fprintf(w, "  Time stamp freq:   %d\n", c.timeStampFrequency)
		list := c.engine.CameraList()
		fmt.Fprintf(w, "\nList of all Prosilica cameras found (total=%d):\n", len(list))
		for _, info := range list {
			fmt.Fprintf(w, "    ID: %d (%s)\n", info.UniqueID, info.DisplayName)
		}
	}
}
