package client

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Tutortoise/tumor-detection-service/models"

	"github.com/disintegration/imaging"
)

const (
	barWidth    = 20
	strokeWidth = 3

	MsgClear = "No tumors detected. The scan appears clear of detectable tumors."
)

// Palette for box outlines, indexed by class.
var palette = []color.NRGBA{
	{R: 0xff, G: 0x6b, B: 0x6b, A: 0xff},
	{R: 0x4e, G: 0xcd, B: 0xc4, A: 0xff},
	{R: 0x45, G: 0xb7, B: 0xd1, A: 0xff},
	{R: 0x96, G: 0xce, B: 0xb4, A: 0xff},
}

// DisplayName is the label, or "class N" when the service sent none.
func DisplayName(d models.Detection) string {
	if d.Label != "" {
		r, size := utf8.DecodeRuneInString(d.Label)
		return string(unicode.ToUpper(r)) + d.Label[size:]
	}
	return fmt.Sprintf("class %d", d.Class)
}

// ConfidenceBar draws confidence as a fixed-width bar.
func ConfidenceBar(confidence float32) string {
	c := math.Max(0, math.Min(1, float64(confidence)))
	filled := int(math.Round(c * barWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

// RenderCards writes one card per detection, or the clear message.
func RenderCards(w io.Writer, source string, resp *models.DetectionResponse) {
	fmt.Fprintf(w, "%s (%dx%d)\n", source, resp.ImageSize[0], resp.ImageSize[1])
	if len(resp.Detections) == 0 {
		fmt.Fprintf(w, "  %s\n", MsgClear)
		return
	}
	for i, d := range resp.Detections {
		fmt.Fprintf(w, "  #%d %-12s %5.1f%% %s\n", i+1, DisplayName(d), d.Confidence*100, ConfidenceBar(d.Confidence))
		fmt.Fprintf(w, "     Location: (%.1f, %.1f) | Size: %.1f×%.1f\n", d.BBox[0], d.BBox[1], d.Width(), d.Height())
	}
	fmt.Fprintf(w, "  %d detection(s), %.1f ms\n", len(resp.Detections), resp.ProcessingTimeMs)
}

// RenderError writes a single generic error banner.
func RenderError(w io.Writer, source string, err error) {
	fmt.Fprintf(w, "%s\n  ! Failed to process image: %v\n", source, err)
}

// Annotate returns a copy of img with each detection outlined.
func Annotate(img image.Image, dets []models.Detection) *image.NRGBA {
	dst := imaging.Clone(img)
	bounds := dst.Bounds()
	for _, d := range dets {
		c := palette[d.Class%len(palette)]
		r := image.Rect(int(d.BBox[0]), int(d.BBox[1]), int(math.Ceil(float64(d.BBox[2]))), int(math.Ceil(float64(d.BBox[3])))).Intersect(bounds)
		if r.Empty() {
			continue
		}
		strokeRect(dst, r, c)
	}
	return dst
}

func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if x-r.Min.X < strokeWidth || r.Max.X-1-x < strokeWidth ||
				y-r.Min.Y < strokeWidth || r.Max.Y-1-y < strokeWidth {
				dst.SetNRGBA(x, y, c)
			}
		}
	}
}

// SaveAnnotated writes an annotated copy of img to path. The format follows
// the file extension.
func SaveAnnotated(path string, img image.Image, dets []models.Detection) error {
	return imaging.Save(Annotate(img, dets), path)
}
