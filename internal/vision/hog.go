package vision

import (
	"image"
	"math"

	"github.com/your-org/presence/internal/imaging"
)

// HOG fallback descriptor parameters. The face crop is divided into a
// cellGrid x cellGrid grid, each cell contributing a histogram of
// hogBins gradient orientations.
const (
	hogCellGrid = 3
	hogBins     = 4
	hogCropSize = 96

	// HOGDim is the fallback descriptor length.
	HOGDim = hogCellGrid * hogCellGrid * hogBins
)

// HOGDescriptor computes a coarse gradient-orientation histogram over a
// face crop. It is the degraded-mode stand-in when the neural embedder is
// unavailable: far weaker, but comparable under the same cosine metric.
func HOGDescriptor(img image.Image, bbox [4]float32) []float32 {
	crop := CropFace(img, bbox, 0.1)
	if crop == nil {
		return nil
	}
	gray := imaging.ToGray(crop)
	gray = imaging.ResizeGray(gray, hogCropSize, hogCropSize)

	desc := make([]float32, HOGDim)
	cellSize := hogCropSize / hogCellGrid

	for y := 1; y < hogCropSize-1; y++ {
		for x := 1; x < hogCropSize-1; x++ {
			gx := float64(gray.GrayAt(x+1, y).Y) - float64(gray.GrayAt(x-1, y).Y)
			gy := float64(gray.GrayAt(x, y+1).Y) - float64(gray.GrayAt(x, y-1).Y)

			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}

			// Unsigned orientation folded into [0, pi).
			theta := math.Atan2(gy, gx)
			if theta < 0 {
				theta += math.Pi
			}
			bin := int(theta / math.Pi * hogBins)
			if bin >= hogBins {
				bin = hogBins - 1
			}

			cellX := x / cellSize
			cellY := y / cellSize
			if cellX >= hogCellGrid {
				cellX = hogCellGrid - 1
			}
			if cellY >= hogCellGrid {
				cellY = hogCellGrid - 1
			}

			desc[(cellY*hogCellGrid+cellX)*hogBins+bin] += float32(mag)
		}
	}

	Normalize(desc)
	return desc
}
