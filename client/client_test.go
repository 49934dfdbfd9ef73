package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Tutortoise/tumor-detection-service/models"

	"github.com/disintegration/imaging"
)

func TestDetectSendsImageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/detect" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile(image): %v", err)
			http.Error(w, "no image", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "scan.png" || string(data) != "pixels" {
			t.Errorf("got %q with %q", header.Filename, data)
		}
		json.NewEncoder(w).Encode(models.DetectionResponse{
			Success:    true,
			Detections: []models.Detection{{BBox: [4]float32{1, 2, 3, 4}, Confidence: 0.8, Class: 2, Label: "pituitary"}},
			ImageSize:  [2]int{10, 10},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	resp, err := c.Detect(context.Background(), "scan.png", []byte("pixels"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(resp.Detections) != 1 || resp.Detections[0].Label != "pituitary" {
		t.Errorf("response = %+v", resp)
	}
}

func TestDetectErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Empty image file","code":"invalid_input"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Detect(context.Background(), "empty.png", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Empty image file" || apiErr.Code != "invalid_input" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDetectTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).Detect(context.Background(), "scan.png", []byte("x"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("transport failure reported as API error: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.HealthResponse{Status: "healthy", ModelLoaded: true, ModelPath: "/m.onnx"})
	}))
	defer srv.Close()

	h, err := New(srv.URL+"/", time.Second).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !h.ModelLoaded || h.ModelPath != "/m.onnx" {
		t.Errorf("health = %+v", h)
	}
}

func TestDetectFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("image")
		if err != nil || header.Filename != "mri.jpg" {
			t.Errorf("upload = %v, %v", header, err)
		}
		json.NewEncoder(w).Encode(models.DetectionResponse{Success: true, Detections: []models.Detection{}})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "mri.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(srv.URL, time.Second).DetectFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, err := New(srv.URL, time.Second).DetectFile(context.Background(), path+".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRenderCards(t *testing.T) {
	var buf bytes.Buffer
	RenderCards(&buf, "scan.png", &models.DetectionResponse{
		Success:   true,
		ImageSize: [2]int{640, 480},
		Detections: []models.Detection{
			{BBox: [4]float32{10, 20, 110, 70}, Confidence: 0.5, Class: 0, Label: "glioma"},
			{BBox: [4]float32{0, 0, 5, 5}, Confidence: 1, Class: 4},
		},
	})
	out := buf.String()
	for _, want := range []string{
		"scan.png (640x480)",
		"Glioma",
		"50.0%",
		"[##########----------]",
		"Location: (10.0, 20.0) | Size: 100.0×50.0",
		"class 4",
		"[####################]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderClear(t *testing.T) {
	var buf bytes.Buffer
	RenderCards(&buf, "red.png", &models.DetectionResponse{Success: true, ImageSize: [2]int{100, 100}})
	if !strings.Contains(buf.String(), MsgClear) {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	RenderError(&buf, "red.png", errors.New("connection refused"))
	if !strings.Contains(buf.String(), "Failed to process image: connection refused") {
		t.Errorf("error output = %q", buf.String())
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		det  models.Detection
		want string
	}{
		{models.Detection{Class: 0, Label: "glioma"}, "Glioma"},
		{models.Detection{Class: 3, Label: "ödem"}, "Ödem"},
		{models.Detection{Class: 4, Label: "脑膜瘤"}, "脑膜瘤"},
		{models.Detection{Class: 5, Label: "x"}, "X"},
		{models.Detection{Class: 7}, "class 7"},
	}
	for _, tt := range tests {
		got := DisplayName(tt.det)
		if got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.det.Label, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("DisplayName(%q) is not valid UTF-8", tt.det.Label)
		}
	}
}

func TestConfidenceBarClamps(t *testing.T) {
	if got := ConfidenceBar(-0.5); got != "["+strings.Repeat("-", barWidth)+"]" {
		t.Errorf("negative = %q", got)
	}
	if got := ConfidenceBar(2); got != "["+strings.Repeat("#", barWidth)+"]" {
		t.Errorf("over one = %q", got)
	}
}

func TestAnnotate(t *testing.T) {
	src := imaging.New(50, 50, color.NRGBA{A: 255})
	out := Annotate(src, []models.Detection{
		{BBox: [4]float32{10, 10, 30, 30}, Class: 0},
		{BBox: [4]float32{60, 60, 80, 80}, Class: 1}, // outside the image
	})

	if c := out.NRGBAAt(10, 10); c != palette[0] {
		t.Errorf("corner = %+v", c)
	}
	if c := out.NRGBAAt(29, 20); c != palette[0] {
		t.Errorf("right edge = %+v", c)
	}
	if c := out.NRGBAAt(20, 20); c != (color.NRGBA{A: 255}) {
		t.Errorf("interior painted: %+v", c)
	}
	if c := src.NRGBAAt(10, 10); c != (color.NRGBA{A: 255}) {
		t.Error("source image modified")
	}
}

func TestSaveAnnotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	if err := SaveAnnotated(path, src, []models.Detection{{BBox: [4]float32{2, 2, 10, 10}}}); err != nil {
		t.Fatal(err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}
