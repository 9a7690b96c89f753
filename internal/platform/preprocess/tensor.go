package preprocess

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ToTensor resizes img to the spec size and lays its RGB values out as a batched tensor.
// Alpha is dropped. The result is deterministic for a given image and spec.
func ToTensor(img image.Image, spec Spec) Tensor {
	dst := imaging.Resize(img, spec.Width, spec.Height, imaging.CatmullRom)

	scale := float32(1)
	if spec.Normalize {
		scale = 1.0 / 255.0
	}

	w, h := spec.Width, spec.Height
	plane := w * h
	data := make([]float32, plane*Channels)

	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) * scale
				if spec.Layout == LayoutNCHW {
					data[c*plane+y*w+x] = v
				} else {
					data[(y*w+x)*Channels+c] = v
				}
			}
		}
	}

	return Tensor{Data: data, Shape: spec.Shape(), Layout: spec.Layout}
}

// ArgMax returns the index and value of the first maximal score, or -1 for an empty slice.
func ArgMax(scores []float32) (int, float32) {
	if len(scores) == 0 {
		return -1, 0
	}
	idx, best := 0, scores[0]
	for i, v := range scores[1:] {
		if v > best {
			idx, best = i+1, v
		}
	}
	return idx, best
}

// Softmax returns the softmax of scores, shifted by the max for stability.
func Softmax(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if len(scores) == 0 {
		return out
	}
	_, maxV := ArgMax(scores)
	var sum float64
	for i, v := range scores {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// IsDistribution reports whether scores already look like probabilities.
func IsDistribution(scores []float32) bool {
	if len(scores) == 0 {
		return false
	}
	var sum float64
	for _, v := range scores {
		if v < 0 || v > 1 {
			return false
		}
		sum += float64(v)
	}
	return math.Abs(sum-1) < 1e-3
}
