package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/Tutortoise/tumor-detection-service/detections"
	"github.com/Tutortoise/tumor-detection-service/labels"
	"github.com/Tutortoise/tumor-detection-service/logging"
	"github.com/Tutortoise/tumor-detection-service/models"
)

const (
	uploadField   = "image"
	multipartMemo = 8 << 20
)

// Predictor runs the detector on one decoded image.
type Predictor interface {
	Predict(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Detection, error)
	Path() string
}

type poolReporter interface {
	Metrics() detections.PoolMetrics
}

// Options configures a Handler. A nil Model means the service runs without a
// loaded model: health reports it and every detect call fails.
type Options struct {
	Model          Predictor
	ModelPath      string
	Labels         *labels.Table
	Logger         *logging.Logger
	MaxUploadBytes int64
	MaxImagePixels int64
}

type Handler struct {
	model          Predictor
	modelPath      string
	labels         *labels.Table
	logger         *logging.Logger
	maxUploadBytes int64
	maxImagePixels int64
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		model:          opts.Model,
		modelPath:      opts.ModelPath,
		labels:         opts.Labels,
		logger:         opts.Logger,
		maxUploadBytes: opts.MaxUploadBytes,
		maxImagePixels: opts.MaxImagePixels,
	}
	if h.model != nil {
		h.modelPath = h.model.Path()
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 32 << 20
	}
	if h.maxImagePixels <= 0 {
		h.maxImagePixels = DefaultMaxImagePixels
	}
	return h
}

// ModelLoaded reports whether a model handle was supplied.
func (h *Handler) ModelLoaded() bool {
	return h.model != nil
}

// Health never touches the model.
func (h *Handler) Health() models.HealthResponse {
	return models.HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.ModelLoaded(),
		ModelPath:   h.modelPath,
	}
}

// Detect validates and decodes req, runs the model once and shapes the
// result. Every failure comes back as a *DetectError.
func (h *Handler) Detect(ctx context.Context, req models.DetectionRequest) (resp *models.DetectionResponse, err error) {
	start := time.Now()
	timings := &models.ProcessingTimings{RequestID: RequestIDFromContext(ctx)}

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = newDetectError(KindDetection, fmt.Sprintf("%v", r), nil)
		}
	}()

	if len(req.ImageData) == 0 {
		return nil, newDetectError(KindInvalidInput, MsgEmptyImage, nil)
	}

	decodeStart := time.Now()
	img, format, err := decodeImage(req.ImageData, h.maxImagePixels)
	timings.ImageDecode = time.Since(decodeStart)
	if errors.Is(err, errTooManyPixels) {
		return nil, newDetectError(KindDecode, MsgTooManyPixels, err)
	}
	if err != nil {
		return nil, newDetectError(KindDecode, MsgUndecodable, err)
	}
	b := img.Bounds()
	h.logger.Info("Image opened", "request_id", timings.RequestID, "format", format,
		"size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), "mode", detections.ColorMode(img))

	normStart := time.Now()
	rgb, converted := detections.ToRGB(img)
	timings.Normalize = time.Since(normStart)
	if converted {
		h.logger.Debug("Image converted to RGB", "request_id", timings.RequestID)
	}

	if h.model == nil {
		return nil, newDetectError(KindModelUnavailable, MsgModelNotReady, nil)
	}

	found, err := h.model.Predict(ctx, rgb, timings)
	if err != nil {
		return nil, newDetectError(KindDetection, err.Error(), err)
	}

	out := make([]models.Detection, len(found))
	for i, det := range found {
		if name, ok := h.labels.Lookup(det.Class); ok {
			det.Label = name
		}
		out[i] = det
	}

	timings.Total = time.Since(start)
	h.logTimings(timings)
	h.logger.Info("Detection completed", "request_id", timings.RequestID, "detections", len(out))

	return &models.DetectionResponse{
		Success:          true,
		Detections:       out,
		ImageSize:        [2]int{b.Dx(), b.Dy()},
		RequestID:        timings.RequestID,
		ProcessingTimeMs: float64(timings.Total.Microseconds()) / 1000,
	}, nil
}

func (h *Handler) logTimings(t *models.ProcessingTimings) {
	if !h.logger.DebugEnabled() {
		return
	}
	h.logger.Debug("Processing times",
		"request_id", t.RequestID,
		"decode", t.ImageDecode,
		"normalize", t.Normalize,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"postprocess", t.Postprocess,
		"total", t.Total)
}

// HandleDetect serves POST /api/detect.
func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())
	h.logger.Info("Detection request received", "request_id", requestID, "remote", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	req, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, requestID, asDetectError(err))
		return
	}
	h.logger.Info("Image received", "request_id", requestID, "filename", req.Filename, "bytes", len(req.ImageData))

	resp, err := h.Detect(r.Context(), req)
	if err != nil {
		h.writeError(w, requestID, asDetectError(err))
		return
	}

	respondJSON(w, resp, http.StatusOK)
}

// readUpload extracts image bytes from a multipart field "image" or from a
// JSON body {"image": base64, "filename": ...}.
func (h *Handler) readUpload(r *http.Request) (models.DetectionRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return readJSONUpload(r)
	}

	if err := r.ParseMultipartForm(multipartMemo); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgTooLarge, err)
		}
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgNoImage, err)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgNoImage, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgNoImage, err)
	}
	return models.DetectionRequest{ImageData: data, Filename: header.Filename}, nil
}

func readJSONUpload(r *http.Request) (models.DetectionRequest, error) {
	var body struct {
		Image    *string `json:"image"`
		Filename string  `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgTooLarge, err)
		}
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgNoImage, err)
	}
	if body.Image == nil {
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgNoImage, nil)
	}
	data, err := base64.StdEncoding.DecodeString(*body.Image)
	if err != nil {
		return models.DetectionRequest{}, newDetectError(KindInvalidInput, MsgBadBase64, err)
	}
	return models.DetectionRequest{ImageData: data, Filename: body.Filename}, nil
}

// HandleHealth serves GET /api/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, h.Health(), http.StatusOK)
}

// HandleMetrics serves GET /api/metrics.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"model_loaded": h.ModelLoaded(),
		"cpu":          detections.DetectCPUFeatures(),
	}
	if pr, ok := h.model.(poolReporter); ok {
		response["pool"] = pr.Metrics()
	}
	respondJSON(w, response, http.StatusOK)
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, err *DetectError) {
	status := err.Status()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Error in detection", "request_id", requestID, "kind", err.Kind, "error", err)
	} else {
		h.logger.Warn("Rejected detection request", "request_id", requestID, "kind", err.Kind, "error", err)
	}
	respondJSON(w, models.ErrorResponse{Error: err.Message, Code: string(err.Kind)}, status)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
