package app

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for the formats upload intake accepts.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// jpegQuality is fixed so a reprocessed job emits byte-identical variants.
const jpegQuality = 85

// decodeImage decodes jpeg, png or gif bytes.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// renderVariant scales src down to the target width, preserving aspect
// ratio, and encodes it as JPEG. Images already at or below the target width
// are re-encoded without scaling; variants never upscale.
func renderVariant(src image.Image, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("variant width must be positive, got %d", width)
	}
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("empty source image %dx%d", srcW, srcH)
	}

	out := src
	if srcW > width {
		height := (srcH*width + srcW/2) / srcW
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		// CatmullRom is the slowest kernel here but fully deterministic,
		// which keeps redelivered jobs byte-identical.
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode variant: %w", err)
	}
	return buf.Bytes(), nil
}
