package detections

import "time"

const (
	DefaultInputSize      = 640
	DefaultConfThreshold  = 0.25
	DefaultIoUThreshold   = 0.7
	DefaultMaxDetections  = 300
	DefaultPoolSize       = 4
	DefaultAcquireTimeout = 5 * time.Second

	// Letterbox padding value used by the exporter during training.
	PadValue = 114

	// Box geometry occupies the first four output rows.
	boxRows = 4

	predictionChunkSize = 512
)
