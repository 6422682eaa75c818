package vision

import (
	"image"

	"github.com/your-org/presence/internal/imaging"
)

// PreprocessForDetection resizes an image to the detector input size and
// converts it to normalized CHW float32 in the range expected by det_10g
// ((pixel - 127.5) / 128).
func PreprocessForDetection(img image.Image, inputW, inputH int) []float32 {
	resized := imaging.Resize(img, inputW, inputH)
	return toCHW(resized, inputW, inputH, 127.5, 128)
}

// PreprocessFace crops a detected face with padding, resizes it to the
// embedder input size, and converts it to normalized CHW float32
// ((pixel - 127.5) / 127.5).
func PreprocessFace(img image.Image, bbox [4]float32, inputW, inputH int) []float32 {
	crop := CropFace(img, bbox, 0.2)
	if crop == nil {
		return nil
	}
	resized := imaging.Resize(crop, inputW, inputH)
	return toCHW(resized, inputW, inputH, 127.5, 127.5)
}

// CropFace extracts the face region with proportional padding on each side,
// clamped to image bounds. Returns nil when the clamped region is empty.
func CropFace(img image.Image, bbox [4]float32, pad float32) image.Image {
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]

	x1 := int(bbox[0] - w*pad)
	y1 := int(bbox[1] - h*pad)
	x2 := int(bbox[2] + w*pad)
	y2 := int(bbox[3] + h*pad)

	return imaging.Crop(img, x1, y1, x2, y2)
}

// toCHW converts an RGB image to planar CHW float32 with (v-mean)/scale
// normalization per channel value.
func toCHW(img image.Image, w, h int, mean, scale float32) []float32 {
	data := make([]float32, 3*h*w)
	bounds := img.Bounds()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			data[0*h*w+y*w+x] = (float32(r>>8) - mean) / scale
			data[1*h*w+y*w+x] = (float32(g>>8) - mean) / scale
			data[2*h*w+y*w+x] = (float32(b>>8) - mean) / scale
		}
	}
	return data
}
