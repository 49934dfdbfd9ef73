package detections

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/Tutortoise/tumor-detection-service/models"
)

// outputLayout is the shape of a YOLOv8 detection head: [1, 4+classes, anchors].
type outputLayout struct {
	numClasses int
	numAnchors int
}

func (o outputLayout) size() int {
	return (boxRows + o.numClasses) * o.numAnchors
}

// decodePredictions scans every anchor, keeps those whose best class score
// reaches threshold and maps their boxes back onto the source image.
func decodePredictions(predictions []float32, layout outputLayout, threshold float32, lb letterbox) []models.Detection {
	n := layout.numAnchors
	numWorkers := runtime.NumCPU()
	jobs := make(chan int, numWorkers)
	results := make(chan []models.Detection, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]models.Detection, 0, 16)

			for start := range jobs {
				end := min(start+predictionChunkSize, n)
				for i := start; i < end; i++ {
					class, score := bestClass(predictions, layout, i)
					if score < threshold || score <= 0 {
						continue
					}
					bbox, ok := sourceBox(
						predictions[i],
						predictions[n+i],
						predictions[2*n+i],
						predictions[3*n+i],
						lb,
					)
					if !ok {
						continue
					}
					local = append(local, models.Detection{
						BBox:       bbox,
						Confidence: score,
						Class:      class,
					})
				}
			}

			if len(local) > 0 {
				results <- local
			}
		}()
	}

	go func() {
		for i := 0; i < n; i += predictionChunkSize {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	detections := make([]models.Detection, 0, 32)
	for chunk := range results {
		detections = append(detections, chunk...)
	}
	return detections
}

func bestClass(predictions []float32, layout outputLayout, anchor int) (int, float32) {
	n := layout.numAnchors
	best, bestScore := 0, float32(math.Inf(-1))
	for c := 0; c < layout.numClasses; c++ {
		score := predictions[(boxRows+c)*n+anchor]
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

// sourceBox converts a centre/size box in model input pixels into a corner
// box clipped to the source image. ok is false for boxes with no area left.
func sourceBox(cx, cy, w, h float32, lb letterbox) ([4]float32, bool) {
	x1, y1 := lb.toSource(cx-w/2, cy-h/2)
	x2, y2 := lb.toSource(cx+w/2, cy+h/2)

	x1 = clamp(x1, 0, float32(lb.srcW))
	y1 = clamp(y1, 0, float32(lb.srcH))
	x2 = clamp(x2, 0, float32(lb.srcW))
	y2 = clamp(y2, 0, float32(lb.srcH))

	if x2 <= x1 || y2 <= y1 {
		return [4]float32{}, false
	}
	return [4]float32{x1, y1, x2, y2}, true
}

// nonMaxSuppression keeps the highest scoring box of every overlapping group
// within the same class, at most maxDet boxes, ordered by confidence.
func nonMaxSuppression(detections []models.Detection, iouThreshold float32, maxDet int) []models.Detection {
	sortDetectionsByConfidence(detections)

	kept := make([]models.Detection, 0, min(len(detections), maxDet))
	for _, det := range detections {
		if len(kept) >= maxDet {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.Class == det.Class && calculateIOU(k.BBox, det.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, det)
		}
	}
	return kept
}

func calculateIOU(box1, box2 [4]float32) float32 {
	x1 := max(box1[0], box2[0])
	y1 := max(box1[1], box2[1])
	x2 := min(box1[2], box2[2])
	y2 := min(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	return intersection / (area1 + area2 - intersection)
}

// Ties are broken by position so output does not depend on worker scheduling.
func sortDetectionsByConfidence(detections []models.Detection) {
	sort.Slice(detections, func(i, j int) bool {
		a, b := detections[i], detections[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.BBox[0] != b.BBox[0] {
			return a.BBox[0] < b.BBox[0]
		}
		if a.BBox[1] != b.BBox[1] {
			return a.BBox[1] < b.BBox[1]
		}
		return a.Class < b.Class
	})
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
