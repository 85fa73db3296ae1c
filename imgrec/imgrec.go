// Package imgrec contains an image recorder used to automatically save
// images to disk with incrementing filenames in yyyy-mm-dd subfolders.
// It resolves paths; encoding the image is the caller's concern.
// It is not thread safe.
package imgrec

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// Recorder hands out sequential file paths under Root/yyyy-mm-dd/.
type Recorder struct {
	// Root is the root folder recordings go under
	Root string

	// Prefix is the filename prefix
	Prefix string

	// Enabled is a flag unused by this struct that allows consumers to
	// disable its use in their code
	Enabled bool

	counter int
}

// New returns a recorder writing under root with the given prefix
func New(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix}
}

// dir computes today's subfolder and ensures it exists
func (r *Recorder) dir() (string, error) {
	now := time.Now()
	fldr := path.Join(r.Root, fmt.Sprintf("%04d-%02d-%02d", now.Year(), now.Month(), now.Day()))
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// NextPath resolves the path the next image should be written to,
// creating the dated subfolder if needed.  The counter does not move
// until Advance is called, so a failed write reuses the same path.
func (r *Recorder) NextPath() (string, error) {
	fldr, err := r.dir()
	if err != nil {
		return "", err
	}
	fn := fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter)
	return path.Join(fldr, fn), nil
}

// Advance moves the filename counter past the path last handed out
func (r *Recorder) Advance() {
	r.counter++
}

// Scan resyncs the counter from the files already on disk, so a restarted
// process does not overwrite earlier recordings.  If the folder cannot be
// read the counter is left alone.
func (r *Recorder) Scan() {
	dn, err := r.dir()
	if err != nil {
		return
	}
	files, err := ioutil.ReadDir(dn)
	if err != nil {
		return
	}
	count := -1
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if n > count {
			count = n
		}
	}
	r.counter = count + 1
}

// SetPrefix updates the prefix and rewinds the counter
func (r *Recorder) SetPrefix(prefix string) {
	r.Prefix = prefix
	r.counter = 0
}
