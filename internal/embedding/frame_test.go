package embedding

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func createTestImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxSide       int
		wantW, wantH  int
	}{
		{"fits", 640, 480, 1280, 640, 480},
		{"landscape", 2560, 1440, 1280, 1280, 720},
		{"portrait", 1000, 2000, 500, 250, 500},
		{"no limit", 4000, 3000, 0, 4000, 3000},
		{"thin strip keeps one pixel", 10000, 2, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ScaledSize(tt.width, tt.height, tt.maxSide)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("ScaledSize(%d, %d, %d) = %dx%d, want %dx%d", tt.width, tt.height, tt.maxSide, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPrepareFrame(t *testing.T) {
	frame := encodePNG(t, createTestImage(400, 200, color.RGBA{200, 150, 100, 255}))

	out, err := PrepareFrame(frame, 100)
	if err != nil {
		t.Fatalf("PrepareFrame failed: %v", err)
	}
	if DetectMIMEType(out) != "image/jpeg" {
		t.Errorf("expected JPEG output, got %s", DetectMIMEType(out))
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("expected 100x50, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPrepareFrameDecodesBMP(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, createTestImage(32, 32, color.White)); err != nil {
		t.Fatal(err)
	}
	if DetectMIMEType(buf.Bytes()) != "image/bmp" {
		t.Errorf("expected image/bmp, got %s", DetectMIMEType(buf.Bytes()))
	}
	if _, err := PrepareFrame(buf.Bytes(), 1280); err != nil {
		t.Errorf("PrepareFrame on BMP: %v", err)
	}
}

func TestPrepareFrameInvalid(t *testing.T) {
	if _, err := PrepareFrame([]byte("not an image"), 100); err == nil {
		t.Error("PrepareFrame should fail for invalid data")
	}
}
