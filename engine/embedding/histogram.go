package embedding

import (
	"context"
	"image"
	"math"
)

const (
	gridCells     = 4
	colourLevels  = 4
	colourBins    = colourLevels * colourLevels * colourLevels
	orientBins    = 8
	magnitudeBins = 2
	cellFeatures  = colourBins + orientBins*magnitudeBins

	// HistogramDimension is the vector length of HistogramExtractor.
	HistogramDimension = gridCells * gridCells * cellFeatures

	// HistogramModel names the HistogramExtractor feature layout.
	HistogramModel = "colour-orient-hist-v1"

	edgeThreshold = 24.0
	strongEdge    = 96.0
)

// HistogramExtractor is a pure-Go extractor that needs no model worker. It
// splits the preprocessed image into a 4×4 grid and, per cell, records a
// joint RGB colour histogram and a gradient-orientation histogram. It is
// much weaker than a CNN but fully deterministic and offline.
type HistogramExtractor struct{}

// NewHistogramExtractor returns a HistogramExtractor.
func NewHistogramExtractor() *HistogramExtractor { return &HistogramExtractor{} }

func (HistogramExtractor) Model() string  { return HistogramModel }
func (HistogramExtractor) Dimension() int { return HistogramDimension }

// Extract implements Extractor.
func (HistogramExtractor) Extract(_ context.Context, data []byte) ([]float32, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return histogramFeatures(Preprocess(img)), nil
}

func histogramFeatures(img *image.RGBA) []float32 {
	out := make([]float32, HistogramDimension)
	cell := InputSize / gridCells
	gray := grayscale(img)

	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			cx, cy := x/cell, y/cell
			if cx >= gridCells {
				cx = gridCells - 1
			}
			if cy >= gridCells {
				cy = gridCells - 1
			}
			base := (cy*gridCells + cx) * cellFeatures

			off := img.PixOffset(x, y)
			r := int(img.Pix[off]) * colourLevels / 256
			g := int(img.Pix[off+1]) * colourLevels / 256
			b := int(img.Pix[off+2]) * colourLevels / 256
			out[base+(r*colourLevels+g)*colourLevels+b]++

			if x == 0 || y == 0 || x == InputSize-1 || y == InputSize-1 {
				continue
			}
			gx := gray[y*InputSize+x+1] - gray[y*InputSize+x-1]
			gy := gray[(y+1)*InputSize+x] - gray[(y-1)*InputSize+x]
			mag := math.Hypot(gx, gy)
			if mag < edgeThreshold {
				continue
			}
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			bin := int(angle / math.Pi * orientBins)
			if bin >= orientBins {
				bin = orientBins - 1
			}
			level := 0
			if mag >= strongEdge {
				level = 1
			}
			out[base+colourBins+level*orientBins+bin]++
		}
	}
	return L2Normalize(out)
}

func grayscale(img *image.RGBA) []float64 {
	g := make([]float64, InputSize*InputSize)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			off := img.PixOffset(x, y)
			g[y*InputSize+x] = 0.299*float64(img.Pix[off]) + 0.587*float64(img.Pix[off+1]) + 0.114*float64(img.Pix[off+2])
		}
	}
	return g
}

var _ Extractor = (*HistogramExtractor)(nil)
