package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"
)

// Decode parses image bytes, trying JPEG first (the common capture format)
// and falling back to the registered generic decoders.
func Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}

// ToGray converts any image to 8-bit grayscale using the standard
// luminance weights.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: uint8(lum)})
		}
	}
	return gray
}

// Resize performs nearest-neighbour resize (fast, good enough for ML input).
func Resize(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	return dst
}

// ResizeGray performs nearest-neighbour resize on a grayscale image.
func ResizeGray(img *image.Gray, targetW, targetH int) *image.Gray {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewGray(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.SetGray(x, y, img.GrayAt(srcX, srcY))
		}
	}
	return dst
}

// Crop extracts a rectangular region, clamped to image bounds.
// Returns nil if the clamped region is empty.
func Crop(img image.Image, x1, y1, x2, y2 int) image.Image {
	bounds := img.Bounds()

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

// BottomRegion returns the bottom frac (0..1) of a grayscale image,
// where hand-held ID tokens usually sit in the frame.
func BottomRegion(img *image.Gray, frac float64) *image.Gray {
	bounds := img.Bounds()
	h := bounds.Dy()
	top := bounds.Min.Y + int(float64(h)*(1-frac))

	region := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Max.Y-top))
	for y := top; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			region.SetGray(x-bounds.Min.X, y-top, img.GrayAt(x, y))
		}
	}
	return region
}

// EqualizeHist spreads the grayscale histogram across the full range,
// recovering contrast lost to glare or under-exposure.
func EqualizeHist(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var lut [256]uint8
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = uint8(cum * 255 / total)
	}

	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: lut[img.GrayAt(x, y).Y]})
		}
	}
	return out
}

// sharpenKernel is the classic 3x3 edge-sharpening kernel.
var sharpenKernel = [3][3]int{
	{-1, -1, -1},
	{-1, 9, -1},
	{-1, -1, -1},
}

// Sharpen applies the edge-sharpening kernel to enhance symbol edges.
func Sharpen(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := clampInt(x+kx, 0, w-1)
					sy := clampInt(y+ky, 0, h-1)
					sum += int(img.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy).Y) * sharpenKernel[ky+1][kx+1]
				}
			}
			out.SetGray(x, y, color.Gray{Y: uint8(clampInt(sum, 0, 255))})
		}
	}
	return out
}

// AdaptiveThreshold binarizes using a per-pixel mean over a block window,
// offset by c. Robust to uneven lighting across the token.
func AdaptiveThreshold(img *image.Gray, block, c int) *image.Gray {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	half := block / 2

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, count := 0, 0
			for by := y - half; by <= y+half; by++ {
				for bx := x - half; bx <= x+half; bx++ {
					if bx < 0 || by < 0 || bx >= w || by >= h {
						continue
					}
					sum += int(img.GrayAt(bounds.Min.X+bx, bounds.Min.Y+by).Y)
					count++
				}
			}
			mean := sum / count
			v := uint8(0)
			if int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) > mean-c {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return out
}

// Rotate rotates a grayscale image by angleDeg around its center,
// replicating border pixels (a tilted token keeps its margins).
func Rotate(img *image.Gray, angleDeg float64) *image.Gray {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping back into the source image.
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := int(math.Round(cos*dx + sin*dy + cx))
			sy := int(math.Round(-sin*dx + cos*dy + cy))
			sx = clampInt(sx, 0, w-1)
			sy = clampInt(sy, 0, h-1)
			out.SetGray(x, y, img.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return out
}

// LaplacianVariance measures high-frequency texture energy. Flat prints
// and screens score low; live skin scores high.
func LaplacianVariance(img *image.Gray) float64 {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	values := make([]float64, 0, (w-2)*(h-2))
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			lap := float64(-4*center +
				int(img.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y) +
				int(img.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y) +
				int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y) +
				int(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y))
			values = append(values, lap)
			sum += lap
		}
	}

	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(values))
}

// RGBToHSV converts 8-bit RGB to HSV with H in [0,360), S and V in [0,1].
func RGBToHSV(r, g, b uint8) (hue, sat, val float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	val = max
	if max > 0 {
		sat = delta / max
	}

	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}
	return hue, sat, val
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

