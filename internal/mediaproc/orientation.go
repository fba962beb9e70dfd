package mediaproc

import (
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// orientations maps EXIF orientation values to the transform that displays
// the image upright. 1 and unknown values are left alone.
var orientations = map[int]func(image.Image) *image.NRGBA{
	2: imaging.FlipH,
	3: imaging.Rotate180,
	4: imaging.FlipV,
	5: imaging.Transpose,
	6: imaging.Rotate270,
	7: imaging.Transverse,
	8: imaging.Rotate90,
}

// exifOrientation reads the orientation tag of the image file at path.
// Files without EXIF data report 1.
func exifOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// upright rotates or flips img the way a browser displays it.
func upright(img image.Image, orientation int) image.Image {
	if fn, ok := orientations[orientation]; ok {
		return fn(img)
	}
	return img
}
