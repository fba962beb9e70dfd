package mediaproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// ErrNoMatch is returned by recoverers that know nothing about a source.
var ErrNoMatch = errors.New("no live media matches source")

// transparentPixel is a 1x1 transparent PNG.
var transparentPixel = func() []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(1, 1, color.NRGBA{}), imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// ImageLookup finds a decoded image currently displayed for src.
type ImageLookup interface {
	LookupImage(src string) (image.Image, bool)
}

// FileLookup finds the local file a file input produced src for.
type FileLookup interface {
	LookupFile(objectURL string) (string, bool)
}

// CanvasRecoverer redraws a live image into a fresh PNG.
type CanvasRecoverer struct {
	Images ImageLookup
}

// Recover implements Recoverer. Only images can be redrawn.
func (c CanvasRecoverer) Recover(_ context.Context, src, kind string) ([]byte, string, error) {
	if kind != KindImage || c.Images == nil {
		return nil, "", ErrNoMatch
	}
	img, ok := c.Images.LookupImage(src)
	if !ok {
		return nil, "", ErrNoMatch
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(img), imaging.PNG); err != nil {
		return nil, "", fmt.Errorf("redraw %s: %w", src, err)
	}
	return buf.Bytes(), "image/png", nil
}

// FileInputRecoverer re-reads the file behind an object URL from disk.
type FileInputRecoverer struct {
	Files FileLookup
}

// Recover implements Recoverer.
func (f FileInputRecoverer) Recover(ctx context.Context, src, _ string) ([]byte, string, error) {
	if f.Files == nil {
		return nil, "", ErrNoMatch
	}
	path, ok := f.Files.LookupFile(src)
	if !ok {
		return nil, "", ErrNoMatch
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("re-read %s: %w", path, err)
	}
	return data, mimetype.Detect(data).String(), nil
}

// Attachments maps object URLs to the local files they were created from.
// It serves as both lookups: images are decoded from the file on demand.
type Attachments struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewAttachments creates an empty attachment table.
func NewAttachments() *Attachments {
	return &Attachments{files: make(map[string]string)}
}

// Attach records that objectURL was created from path.
func (a *Attachments) Attach(objectURL, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[objectURL] = path
}

// LookupFile implements FileLookup.
func (a *Attachments) LookupFile(objectURL string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.files[objectURL]
	return p, ok
}

// LookupImage implements ImageLookup. The image is returned upright, as
// it was drawn on the page.
func (a *Attachments) LookupImage(src string) (image.Image, bool) {
	path, ok := a.LookupFile(src)
	if !ok {
		return nil, false
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, false
	}
	return upright(img, exifOrientation(path)), true
}
