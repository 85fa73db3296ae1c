/*Package imgpool provides the fixed-size image block allocator backing the
capture buffer slots.

Every block is sized for the largest frame the sensor can produce, so a
geometry change mid-stream never races a reallocation: frames already
queued with the old readout settings still fit.  Released blocks go on a
free list and are handed back out by Allocate.

The pool is not internally synchronized; all access happens under the
owning session's mutex.
*/
package imgpool

import "fmt"

// DataType is the logical element type of an image.
type DataType int

// the supported logical data types.  UInt32 is a placeholder for pixel
// formats the driver does not support; it exists so an unsupported frame
// is mapped somewhere explicit rather than silently misread.
const (
	UInt8 DataType = iota
	UInt16
	UInt32
)

// Size returns the size of one element in bytes
func (d DataType) Size() int {
	switch d {
	case UInt16:
		return 2
	case UInt32:
		return 4
	default:
		return 1
	}
}

// String satisfies fmt.Stringer
func (d DataType) String() string {
	switch d {
	case UInt8:
		return "uint8"
	case UInt16:
		return "uint16"
	case UInt32:
		return "uint32"
	default:
		return "unknown"
	}
}

// Image is one image-data block and its metadata.  Data aliases the
// block's full backing array; the live pixels occupy the first
// Width*Height*DataType.Size() bytes.
type Image struct {
	// Data is the block's backing storage
	Data []byte

	// Width and Height are the dimensions of the most recent frame written
	// into the block, in pixels
	Width, Height int

	// DataType is the element type of the most recent frame
	DataType DataType

	// UniqueID is the hardware frame counter of the most recent frame
	UniqueID int

	// Timestamp is the camera timestamp of the most recent frame in seconds
	Timestamp float64

	released bool
}

// Pixels returns the live portion of the block
func (im *Image) Pixels() []byte {
	n := im.Width * im.Height * im.DataType.Size()
	if n > len(im.Data) {
		n = len(im.Data)
	}
	return im.Data[:n]
}

// Pool hands out image blocks of one fixed size.
type Pool struct {
	blockSize int
	free      []*Image
	inUse     int
}

// New returns a pool whose blocks hold blockSize bytes
func New(blockSize int) *Pool {
	return &Pool{blockSize: blockSize}
}

// BlockSize returns the size of every block in bytes
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// InUse returns the number of blocks currently allocated
func (p *Pool) InUse() int {
	return p.inUse
}

// Free returns the number of blocks on the free list
func (p *Pool) Free() int {
	return len(p.free)
}

// Allocate returns a block at least byteSize bytes large with its
// dimensions set.  The block comes off the free list when one is
// available; otherwise fresh storage is made.
func (p *Pool) Allocate(width, height, byteSize int) (*Image, error) {
	if byteSize > p.blockSize {
		return nil, fmt.Errorf("imgpool: requested %d bytes exceeds block size %d", byteSize, p.blockSize)
	}
	var im *Image
	if n := len(p.free); n > 0 {
		im = p.free[n-1]
		p.free = p.free[:n-1]
		im.released = false
		im.UniqueID = 0
		im.Timestamp = 0
	} else {
		im = &Image{Data: make([]byte, p.blockSize)}
	}
	im.Width = width
	im.Height = height
	im.DataType = UInt8
	p.inUse++
	return im, nil
}

// Release returns a block to the free list.  Releasing nil or a block
// that is already on the free list is a no-op.
func (p *Pool) Release(im *Image) {
	if im == nil || im.released {
		return
	}
	im.released = true
	p.free = append(p.free, im)
	p.inUse--
}
