package detections

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// ColorMode names the colour layout of a decoded image the way image tools
// usually report it ("RGB", "RGBA", "L", "P", "CMYK").
func ColorMode(img image.Image) string {
	type opaquer interface{ Opaque() bool }

	switch img.(type) {
	case *image.YCbCr:
		return "RGB"
	case *image.RGBA, *image.RGBA64, *image.NRGBA, *image.NRGBA64:
		if o, ok := img.(opaquer); ok && o.Opaque() {
			return "RGB"
		}
		return "RGBA"
	case *image.Gray, *image.Gray16:
		return "L"
	case *image.Alpha, *image.Alpha16:
		return "A"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	default:
		return "unknown"
	}
}

// ToRGB returns an opaque three-channel copy of img. Alpha is dropped rather
// than composited. converted reports whether the source was not plain RGB.
func ToRGB(img image.Image) (rgb *image.NRGBA, converted bool) {
	converted = ColorMode(img) != "RGB"
	rgb = imaging.Clone(img)
	if converted {
		for i := 3; i < len(rgb.Pix); i += 4 {
			rgb.Pix[i] = 0xff
		}
	}
	return rgb, converted
}

// SmokeTestImage is the synthetic image run through the model at load time.
func SmokeTestImage() *image.NRGBA {
	return imaging.New(100, 100, color.NRGBA{R: 255, A: 255})
}

// letterbox describes how the source image was placed on the model input.
type letterbox struct {
	scale      float32
	padX, padY int
	srcW, srcH int
	dstW, dstH int
}

func newLetterbox(srcW, srcH, size int) letterbox {
	scale := math.Min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	newW := max(1, int(math.Round(float64(srcW)*scale)))
	newH := max(1, int(math.Round(float64(srcH)*scale)))
	return letterbox{
		scale: float32(scale),
		padX:  (size - newW) / 2,
		padY:  (size - newH) / 2,
		srcW:  srcW,
		srcH:  srcH,
		dstW:  newW,
		dstH:  newH,
	}
}

// toSource maps a point from model input space back to the source image.
func (lb letterbox) toSource(x, y float32) (float32, float32) {
	return (x - float32(lb.padX)) / lb.scale, (y - float32(lb.padY)) / lb.scale
}

// letterboxImage scales img to fit a size×size square keeping aspect ratio
// and centres it on a gray canvas.
func letterboxImage(img image.Image, size int) (*image.NRGBA, letterbox) {
	b := img.Bounds()
	lb := newLetterbox(b.Dx(), b.Dy(), size)
	w, h := lb.dstW, lb.dstH

	canvas := imaging.New(size, size, color.NRGBA{R: PadValue, G: PadValue, B: PadValue, A: 255})
	var resized *image.NRGBA
	if w == b.Dx() && h == b.Dy() {
		resized = imaging.Clone(img)
	} else {
		resized = imaging.Resize(img, w, h, imaging.Linear)
	}
	return imaging.Paste(canvas, resized, image.Pt(lb.padX, lb.padY)), lb
}

// fillTensor writes img into dst as planar RGB scaled to [0,1]. Rows are
// split across workers.
func fillTensor(dst []float32, img *image.NRGBA, size int) {
	channelSize := size * size
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > size {
		numWorkers = size
	}
	rowsPerWorker := size / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if w == numWorkers-1 {
			endRow = size
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride : y*img.Stride+size*4]
				offset := y * size
				for x := 0; x < size; x++ {
					i := offset + x
					dst[i] = float32(src[x*4]) / 255.0
					dst[channelSize+i] = float32(src[x*4+1]) / 255.0
					dst[channelSize*2+i] = float32(src[x*4+2]) / 255.0
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
