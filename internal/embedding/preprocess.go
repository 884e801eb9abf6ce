package embedding

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// CLIP image normalization constants (RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// DefaultImageSize is the CLIP ViT-B/32 input resolution.
const DefaultImageSize = 224

// Preprocess resizes img so its shorter side is size, takes the centered size×size crop
// and returns normalized pixel values in CHW order (3*size*size floats).
func Preprocess(img image.Image, size int) []float32 {
	if size <= 0 {
		size = DefaultImageSize
	}
	plane := size * size
	out := make([]float32, 3*plane)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		for c := 0; c < 3; c++ {
			v := -clipMean[c] / clipStd[c]
			for i := 0; i < plane; i++ {
				out[c*plane+i] = v
			}
		}
		return out
	}

	scale := float64(size) / float64(min(w, h))
	nw := max(size, int(math.Round(float64(w)*scale)))
	nh := max(size, int(math.Round(float64(h)*scale)))
	resized := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	x0, y0 := (nw-size)/2, (nh-size)/2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x0+x, y0+y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[off+c]) / 255
				out[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
