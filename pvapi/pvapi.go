/*Package pvapi defines the contract with the GigE/Firewire capture engine
used by Prosilica cameras.

The engine is treated as a black box: it owns frame transport, packet
retransmission, and link negotiation.  This package only describes the
surface the driver consumes -- open/close, the capture queue, string-keyed
attribute access, and the completion callback.  A full in-memory simulator
lives in sim.go so the rest of the system can run and be tested without
vendor hardware.
*/
package pvapi

// Handle refers to an open camera within the engine.  The zero value is
// never a valid handle.
type Handle int

// AccessFlags describe the level of control the engine grants over a camera.
type AccessFlags uint32

const (
	// AccessMonitor permits reading attributes but not control
	AccessMonitor AccessFlags = 1 << iota

	// AccessMaster permits exclusive control of the camera
	AccessMaster
)

// PixelFormat is the on-wire encoding of a frame.
type PixelFormat int

// Pixel formats delivered by the engine.  Only the 8 and 16 bit mono
// formats are supported by the driver; the others exist so the enum is
// faithful to the wire protocol.
const (
	FmtMono8 PixelFormat = iota
	FmtMono16
	FmtBayer8
	FmtBayer16
	FmtRgb24
	FmtRgb48
)

// CameraInfo is the engine's directory entry for a camera.
type CameraInfo struct {
	// UniqueID is the engine-assigned identity of the camera
	UniqueID uint32

	// DisplayName is the human readable model name
	DisplayName string

	// SerialString is the serial number
	SerialString string

	// PermittedAccess is the level of control the engine will grant;
	// a camera owned by another party will not offer AccessMaster
	PermittedAccess AccessFlags
}

// Frame is one capture buffer descriptor submitted to the engine's queue.
// The engine writes the image into ImageBuffer and fills the remaining
// fields before invoking the completion callback.
type Frame struct {
	// Status is the completion status; ErrSuccess for a good frame,
	// ErrCancelled when the queue was cleared with this frame on it
	Status Code

	// Format is the pixel format of the completed image
	Format PixelFormat

	// Width and Height are the dimensions of the completed image in pixels
	Width, Height uint32

	// FrameCount is the engine's running frame counter
	FrameCount uint32

	// TimestampLo and TimestampHi are the two words of the 64-bit camera
	// timestamp, in ticks of the TimeStampFrequency attribute
	TimestampLo, TimestampHi uint32

	// ImageBuffer is the externally allocated block the engine writes into
	ImageBuffer []byte

	// Slot is preserved by the engine across a capture.  The driver stores
	// its buffer slot index here so a completed frame can be mapped back to
	// the owning slot without retaining raw pointers.
	Slot int
}

// FrameCallback is invoked by the engine, on an engine-owned thread, when a
// queued frame completes or is cancelled.
type FrameCallback func(*Frame)

// Engine is the capture engine surface the driver consumes.  All methods
// are safe for concurrent use; completion callbacks are delivered on a
// thread owned by the engine, except cancellations from CaptureQueueClear,
// which are delivered synchronously on the caller's thread.
type Engine interface {
	// CameraInfo resolves a camera's directory entry by unique ID
	CameraInfo(uniqueID uint32) (CameraInfo, error)

	// CameraList returns the directory entries of all visible cameras
	CameraList() []CameraInfo

	// CameraOpen opens a camera at the given access level
	CameraOpen(uniqueID uint32, access AccessFlags) (Handle, error)

	// CameraClose closes the handle; it is invalid afterwards
	CameraClose(h Handle) error

	// CaptureStart starts the engine's internal capture machinery
	CaptureStart(h Handle) error

	// CaptureEnd stops the engine's internal capture machinery
	CaptureEnd(h Handle) error

	// CaptureQueueFrame submits a frame to the capture queue; cb fires when
	// the frame completes or is cancelled
	CaptureQueueFrame(h Handle, f *Frame, cb FrameCallback) error

	// CaptureQueueClear cancels all queued frames, invoking their callbacks
	// synchronously with Status == ErrCancelled
	CaptureQueueClear(h Handle) error

	// CaptureAdjustPacketSize negotiates the transport packet size, up to
	// maxSize bytes
	CaptureAdjustPacketSize(h Handle, maxSize uint32) error

	// AttrUint32Get reads an integer attribute by its vendor name
	AttrUint32Get(h Handle, name string) (uint32, error)

	// AttrUint32Set writes an integer attribute by its vendor name
	AttrUint32Set(h Handle, name string, v uint32) error

	// AttrFloat32Get reads a float attribute by its vendor name
	AttrFloat32Get(h Handle, name string) (float32, error)

	// AttrFloat32Set writes a float attribute by its vendor name
	AttrFloat32Set(h Handle, name string, v float32) error

	// AttrEnumGet reads an enumerated attribute as its string value
	AttrEnumGet(h Handle, name string) (string, error)

	// AttrEnumSet writes an enumerated attribute by string value
	AttrEnumSet(h Handle, name string, v string) error

	// AttrStringGet reads a string attribute by its vendor name
	AttrStringGet(h Handle, name string) (string, error)

	// CommandRun executes a command attribute, e.g. AcquisitionStart
	CommandRun(h Handle, name string) error
}
