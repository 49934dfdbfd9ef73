package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registered upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels bounds the decoded size of an upload.
const DefaultMaxImagePixels = 40_000_000

var errTooManyPixels = errors.New("image dimensions exceed limit")

// decodeImage reads the header first so an oversized image is rejected
// before its pixel buffer is allocated.
func decodeImage(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("invalid %s dimensions %dx%d", format, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d %s, limit %d pixels", errTooManyPixels, cfg.Width, cfg.Height, format, maxPixels)
	}
	return image.Decode(bytes.NewReader(data))
}
