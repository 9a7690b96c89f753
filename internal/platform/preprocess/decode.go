package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUndecodable is returned when the bytes are not an image in a registered format.
	ErrUndecodable = errors.New("undecodable image")
	// ErrTooManyPixels is returned when the image header declares more pixels than allowed.
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

// Info describes a decoded image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Decode decodes data into an image, applying EXIF orientation.
// The header is checked against maxPixels before the full decode; maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int) (image.Image, Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, Info{}, fmt.Errorf("%w: empty dimensions %dx%d", ErrUndecodable, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, Info{}, fmt.Errorf("%w: %dx%d > %d", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	b := img.Bounds()
	return img, Info{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}
