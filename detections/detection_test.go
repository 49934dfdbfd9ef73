package detections

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestLoadModelMissingWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.onnx")

	m, err := LoadModel(Options{Path: path})
	if m != nil {
		t.Fatal("model returned for missing weights")
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if le.Stage != "resolve" || le.Path != path {
		t.Errorf("stage/path = %q/%q", le.Stage, le.Path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist through Unwrap", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	opts := Options{ConfThreshold: 0.4}
	opts.applyDefaults()
	if opts.ConfThreshold != 0.4 {
		t.Errorf("ConfThreshold = %v, want 0.4", opts.ConfThreshold)
	}
	if opts.InputSize != DefaultInputSize || opts.IoUThreshold != DefaultIoUThreshold {
		t.Errorf("defaults = %+v", opts)
	}
	if opts.PoolSize != DefaultPoolSize || opts.AcquireTimeout != DefaultAcquireTimeout {
		t.Errorf("pool defaults = %+v", opts)
	}
}
