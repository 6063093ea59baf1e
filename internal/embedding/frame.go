package embedding

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// PrepareFrame decodes a captured frame and re-encodes it as JPEG, scaled
// down so neither side exceeds maxSide. A non-positive maxSide keeps the size.
func PrepareFrame(data []byte, maxSide int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	width, height := ScaledSize(bounds.Dx(), bounds.Dy(), maxSide)
	if width != bounds.Dx() || height != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaledSize fits width x height within maxSide keeping the aspect ratio.
func ScaledSize(width, height, maxSide int) (int, int) {
	if maxSide <= 0 || (width <= maxSide && height <= maxSide) {
		return width, height
	}
	if width > height {
		return maxSide, max(1, int(float64(height)*float64(maxSide)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxSide)/float64(height))), maxSide
}
