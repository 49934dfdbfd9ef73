package models

import "time"

// Detection is one box returned to clients. BBox is [x1, y1, x2, y2] in
// original image pixels.
type Detection struct {
	BBox       [4]float32 `json:"bbox"`
	Confidence float32    `json:"confidence"`
	Class      int        `json:"class"`
	Label      string     `json:"label,omitempty"`
}

// Width and Height of the box; clients display origin+size.
func (d Detection) Width() float32  { return d.BBox[2] - d.BBox[0] }
func (d Detection) Height() float32 { return d.BBox[3] - d.BBox[1] }

type DetectionRequest struct {
	ImageData []byte
	Filename  string
}

type DetectionResponse struct {
	Success          bool        `json:"success"`
	Detections       []Detection `json:"detections"`
	ImageSize        [2]int      `json:"image_size"`
	RequestID        string      `json:"request_id,omitempty"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Normalize   time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
