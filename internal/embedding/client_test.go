package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFaceServer(t *testing.T, resp FaceResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/face" {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Header.Get("Content-Type") != "image/jpeg" || DetectMIMEType(data) != "image/jpeg" {
			http.Error(w, "expected jpeg upload", http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			http.Error(w, "model unavailable", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientExtract(t *testing.T) {
	frame := encodePNG(t, createTestImage(64, 48, color.Gray{Y: 128}))

	tests := []struct {
		name    string
		resp    FaceResponse
		status  int
		dim     int
		want    []float32
		wantErr bool
	}{
		{
			name: "single face",
			resp: FaceResponse{FacesCount: 1, Faces: []Face{
				{Embedding: []float32{0.1, 0.2, 0.3}, BBox: []float64{1, 1, 20, 20}},
			}},
			status: http.StatusOK,
			dim:    3,
			want:   []float32{0.1, 0.2, 0.3},
		},
		{
			name: "largest face chosen",
			resp: FaceResponse{FacesCount: 2, Faces: []Face{
				{Embedding: []float32{1, 1, 1}, BBox: []float64{0, 0, 5, 5}},
				{Embedding: []float32{2, 2, 2}, BBox: []float64{0, 0, 30, 30}},
			}},
			status: http.StatusOK,
			dim:    3,
			want:   []float32{2, 2, 2},
		},
		{
			name:   "no face",
			resp:   FaceResponse{FacesCount: 0},
			status: http.StatusOK,
			dim:    3,
			want:   nil,
		},
		{
			name: "wrong dimension",
			resp: FaceResponse{FacesCount: 1, Faces: []Face{
				{Embedding: []float32{1, 2}, BBox: []float64{0, 0, 5, 5}},
			}},
			status:  http.StatusOK,
			dim:     3,
			wantErr: true,
		},
		{
			name:    "service error",
			status:  http.StatusServiceUnavailable,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFaceServer(t, tt.resp, tt.status)
			defer srv.Close()

			c := NewClient(srv.URL+"/", tt.dim, 32)
			got, err := c.Extract(context.Background(), frame)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("component %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestClientExtract_DimensionMismatchSentinel(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{FacesCount: 1, Faces: []Face{{Embedding: []float32{1}}}}, http.StatusOK)
	defer srv.Close()

	frame := encodePNG(t, createTestImage(8, 8, color.White))
	_, err := NewClient(srv.URL, 128, 0).Extract(context.Background(), frame)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestClientExtract_Cancelled(t *testing.T) {
	srv := newFaceServer(t, FaceResponse{}, http.StatusOK)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frame := encodePNG(t, createTestImage(8, 8, color.White))
	if _, err := NewClient(srv.URL, 0, 0).Extract(ctx, frame); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.data); got != tt.want {
				t.Errorf("DetectMIMEType() = %s, want %s", got, tt.want)
			}
		})
	}
}
