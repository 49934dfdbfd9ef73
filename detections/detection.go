package detections

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/Tutortoise/tumor-detection-service/models"

	ort "github.com/yalue/onnxruntime_go"
)

// Options configures LoadModel. Zero values fall back to the package defaults.
type Options struct {
	Path           string
	InputSize      int
	ConfThreshold  float32
	IoUThreshold   float32
	MaxDetections  int
	PoolSize       int
	AcquireTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	if o.ConfThreshold <= 0 {
		o.ConfThreshold = DefaultConfThreshold
	}
	if o.IoUThreshold <= 0 {
		o.IoUThreshold = DefaultIoUThreshold
	}
	if o.MaxDetections <= 0 {
		o.MaxDetections = DefaultMaxDetections
	}
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
}

// LoadError reports which step of model loading failed.
type LoadError struct {
	Path  string
	Stage string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %s: %v", e.Path, e.Stage, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Model is the process-wide handle on the loaded detector. It is immutable
// after LoadModel returns and safe for concurrent Predict calls.
type Model struct {
	path          string
	inputSize     int
	layout        outputLayout
	confThreshold float32
	iouThreshold  float32
	maxDetections int
	pool          *sessionPool
}

// InitRuntime loads the ONNX Runtime shared library. The returned func tears
// the environment down.
func InitRuntime(libPath string) (func(), error) {
	if _, err := os.Stat(libPath); err != nil {
		return nil, fmt.Errorf("onnxruntime library not found: %w", err)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime environment: %w", err)
	}
	return func() { ort.DestroyEnvironment() }, nil
}

// LoadModel opens the weights at opts.Path, builds the session pool and runs
// one smoke-test inference. InitRuntime must have been called.
func LoadModel(opts Options) (*Model, error) {
	opts.applyDefaults()

	absPath, err := filepath.Abs(filepath.Clean(opts.Path))
	if err != nil {
		return nil, &LoadError{Path: opts.Path, Stage: "resolve", Cause: err}
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, &LoadError{Path: absPath, Stage: "resolve", Cause: err}
	}

	shape, err := inspectModel(absPath, opts.InputSize)
	if err != nil {
		return nil, &LoadError{Path: absPath, Stage: "inspect", Cause: err}
	}
	shape.threads = sessionThreads(opts.PoolSize)

	pool, err := newSessionPool(opts.PoolSize, opts.AcquireTimeout, shape.open)
	if err != nil {
		return nil, &LoadError{Path: absPath, Stage: "session", Cause: err}
	}

	m := &Model{
		path:          absPath,
		inputSize:     shape.inputSize,
		layout:        shape.layout,
		confThreshold: opts.ConfThreshold,
		iouThreshold:  opts.IoUThreshold,
		maxDetections: opts.MaxDetections,
		pool:          pool,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.AcquireTimeout)
	defer cancel()
	if _, err := m.Predict(ctx, SmokeTestImage(), nil); err != nil {
		m.Destroy()
		return nil, &LoadError{Path: absPath, Stage: "smoke-test", Cause: err}
	}

	return m, nil
}

// inspectModel reads tensor names and shapes from the model file.
func inspectModel(path string, inputSize int) (sessionConfig, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return sessionConfig{}, err
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return sessionConfig{}, fmt.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return sessionConfig{}, fmt.Errorf("model must use float32 tensors")
	}
	if len(in.Dimensions) != 4 || len(out.Dimensions) != 3 {
		return sessionConfig{}, fmt.Errorf("unexpected tensor ranks: input %v, output %v", in.Dimensions, out.Dimensions)
	}

	// Static exports carry their own input size.
	if h, w := in.Dimensions[2], in.Dimensions[3]; h > 0 && w > 0 {
		if h != w {
			return sessionConfig{}, fmt.Errorf("non-square input %dx%d is not supported", w, h)
		}
		inputSize = int(h)
	}

	rows := out.Dimensions[1]
	if rows <= boxRows {
		return sessionConfig{}, fmt.Errorf("output %v has no class rows", out.Dimensions)
	}
	anchors := out.Dimensions[2]
	if anchors <= 0 {
		anchors = int64(anchorCount(inputSize))
	}
	if rows >= anchors {
		return sessionConfig{}, fmt.Errorf("unsupported output layout %v, expected [1, 4+classes, anchors]", out.Dimensions)
	}

	return sessionConfig{
		modelPath:  path,
		inputName:  in.Name,
		outputName: out.Name,
		inputSize:  inputSize,
		layout: outputLayout{
			numClasses: int(rows) - boxRows,
			numAnchors: int(anchors),
		},
	}, nil
}

// anchorCount is the number of grid cells over strides 8, 16 and 32.
func anchorCount(inputSize int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		g := inputSize / stride
		total += g * g
	}
	return total
}

func (m *Model) Path() string {
	return m.path
}

func (m *Model) NumClasses() int {
	return m.layout.numClasses
}

func (m *Model) InputSize() int {
	return m.inputSize
}

func (m *Model) Metrics() PoolMetrics {
	return m.pool.Metrics()
}

func (m *Model) Destroy() {
	m.pool.Destroy()
}

// Predict runs one inference on img and returns the surviving boxes in
// source image coordinates, highest confidence first. timings may be nil.
func (m *Model) Predict(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Detection, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	session, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer m.pool.Release(session)

	prepStart := time.Now()
	boxed, lb := letterboxImage(img, m.inputSize)
	fillTensor(session.Input.GetData(), boxed, m.inputSize)
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := session.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	predictions := session.Output.GetData()
	if len(predictions) != m.layout.size() {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), m.layout.size())
	}
	candidates := decodePredictions(predictions, m.layout, m.confThreshold, lb)
	detections := nonMaxSuppression(candidates, m.iouThreshold, m.maxDetections)
	timings.Postprocess = time.Since(postStart)

	return detections, nil
}
