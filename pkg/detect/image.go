package detect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load opens an image file, applying its EXIF orientation.
func Load(fileName string) (image.Image, error) {
	if fileName == "" {
		return nil, fmt.Errorf("%w: filename missing", ErrUnreadableImage)
	}

	img, err := imaging.Open(fileName, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, fileName, err)
	}

	if empty(img) {
		return nil, fmt.Errorf("%w: %s has no pixels", ErrUnreadableImage, fileName)
	}

	return img, nil
}

// Decode reads an image from r in any registered container format.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	if empty(img) {
		return nil, fmt.Errorf("%w: no pixels", ErrUnreadableImage)
	}

	return img, nil
}

// DecodeBytes is Decode for an in-memory buffer.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrUnreadableImage)
	}
	return Decode(bytes.NewReader(data))
}
