package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/herbid/herbid/engine/domain"
)

// InputSize is the square edge length images are resized to before feature
// extraction.
const InputSize = 224

// Decode parses image bytes in any registered format.
func Decode(data []byte) (image.Image, string, error) {
	if err := domain.ValidateImage(data); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("embedding: decode: %w: %v", domain.ErrUnreadableImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("embedding: decode: %w: empty bounds", domain.ErrUnreadableImage)
	}
	return img, format, nil
}

// Probe checks that data carries a decodable image header without decoding
// the pixels. It returns the format name.
func Probe(data []byte) (string, error) {
	if err := domain.ValidateImage(data); err != nil {
		return "", err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("embedding: probe: %w: %v", domain.ErrUnreadableImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", fmt.Errorf("embedding: probe: %w: empty bounds", domain.ErrUnreadableImage)
	}
	return format, nil
}

// Preprocess converts img to an RGBA image of InputSize×InputSize using
// bilinear resampling. Alpha is flattened onto white.
func Preprocess(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
