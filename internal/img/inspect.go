// internal/img/inspect.go
package img

import (
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// ErrUndecodable is returned when an input cannot be read as an image.
var ErrUndecodable = errors.New("input is not a decodable image")

// Info describes a decoded input image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Inspect decodes the image at path, honouring EXIF orientation, and returns
// its dimensions.
func Inspect(path string) (Info, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Info{}, fmt.Errorf("%w: open: %v", ErrUndecodable, err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Info{}, fmt.Errorf("%w: empty image", ErrUndecodable)
	}
	return Info{Format: format.String(), Width: b.Dx(), Height: b.Dy()}, nil
}
