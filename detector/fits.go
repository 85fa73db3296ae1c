package detector

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/prosilica/imgpool"
)

// writeFile saves the most recent image through the recorder as a FITS
// file.  Caller holds the mutex.  File naming is the recorder's concern;
// the contract here is a fully-formed frame-shaped buffer and a resolved
// path.
func (c *Camera) writeFile() error {
	if c.current == nil {
		return ErrNoImage
	}
	if c.rec == nil {
		return errors.New("no recorder attached")
	}
	path, err := c.rec.NextPath()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := writeFITS(f, c.current); err != nil {
		return err
	}
	c.rec.Advance()
	c.setString(FullFileName, path)
	return nil
}

// writeFITS streams img to w as a single-HDU FITS file
func writeFITS(w io.Writer, img *imgpool.Image) error {
	var bitpix int
	switch img.DataType {
	case imgpool.UInt8:
		bitpix = 8
	case imgpool.UInt16:
		bitpix = 16
	default:
		return fmt.Errorf("data type %s not supported for file output", img.DataType)
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(bitpix, []int{img.Width, img.Height})
	defer im.Close()
	cards := []fitsio.Card{
		{Name: "FRAMEID", Value: img.UniqueID, Comment: "hardware frame counter"},
		{Name: "CAMTS", Value: img.Timestamp, Comment: "camera timestamp, seconds"},
	}
	if bitpix == 16 {
		cards = append(cards,
			fitsio.Card{Name: "BZERO", Value: 32768},
			fitsio.Card{Name: "BSCALE", Value: 1.0})
	}
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	pix := img.Pixels()
	switch img.DataType {
	case imgpool.UInt8:
		buf := make([]int8, len(pix))
		for i := 0; i < len(pix); i++ {
			buf[i] = int8(pix[i])
		}
		err = im.Write(buf)
	case imgpool.UInt16:
		n := len(pix) / 2
		buf := make([]int16, n)
		for i := 0; i < n; i++ {
			// little-endian pixels, offset per BZERO
			v := uint16(pix[2*i]) | uint16(pix[2*i+1])<<8
			buf[i] = int16(v - 32768)
		}
		err = im.Write(buf)
	}
	if err != nil {
		return err
	}
	return fits.Write(im)
}
