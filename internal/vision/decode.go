package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// Supported upload formats, as named by the image package.
var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"bmp":  true,
}

// Decode decodes JPEG, PNG or BMP bytes into an image, applying EXIF
// orientation. Any other content fails with ErrDecode.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrDecode)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if !supportedFormats[format] {
		return nil, format, fmt.Errorf("%w: format %q is not accepted", ErrDecode, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("%w: image is %dx%d", ErrPreprocess, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return img, format, nil
}
