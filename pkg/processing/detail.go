package processing

import "math"

// DetailMap holds per-pixel texture measures of a luma plane
type DetailMap struct {
	Width  int
	Height int
	// StdDev is the local luma standard deviation over a square window
	StdDev []float64
	// Edges is the Sobel gradient magnitude of luma
	Edges []float64
}

// ComputeDetailMap measures local texture (standard deviation over a
// (2r+1)^2 window) and Sobel edge magnitude for a luma plane.
func ComputeDetailMap(luma []float64, w, h, r int) *DetailMap {
	return &DetailMap{
		Width:  w,
		Height: h,
		StdDev: LocalStdDev(luma, w, h, r),
		Edges:  SobelMagnitude(luma, w, h),
	}
}

// LocalStdDev returns the standard deviation of each pixel's neighbourhood
// using summed-area tables. Windows are clipped at the borders.
func LocalStdDev(luma []float64, w, h, r int) []float64 {
	iw := w + 1
	sum := make([]float64, iw*(h+1))
	sumsq := make([]float64, iw*(h+1))
	for y := 0; y < h; y++ {
		var row, rowSq float64
		for x := 0; x < w; x++ {
			v := luma[y*w+x]
			row += v
			rowSq += v * v
			idx := (y+1)*iw + x + 1
			sum[idx] = sum[idx-iw] + row
			sumsq[idx] = sumsq[idx-iw] + rowSq
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-r), minInt(h-1, y+r)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-r), minInt(w-1, x+r)
			a := y0*iw + x0
			b := y0*iw + x1 + 1
			c := (y1+1)*iw + x0
			d := (y1+1)*iw + x1 + 1
			n := float64((x1 - x0 + 1) * (y1 - y0 + 1))
			mean := (sum[d] - sum[b] - sum[c] + sum[a]) / n
			v := (sumsq[d]-sumsq[b]-sumsq[c]+sumsq[a])/n - mean*mean
			if v > 0 {
				out[y*w+x] = math.Sqrt(v)
			}
		}
	}
	return out
}

// VerticalGradient returns the mean absolute vertical luma derivative over
// each pixel's (2r+1)^2 neighbourhood. Windows are clipped at the borders.
func VerticalGradient(luma []float64, w, h, r int) []float64 {
	grad := make([]float64, w*h)
	for y := 0; y < h; y++ {
		up, down := maxInt(0, y-1), minInt(h-1, y+1)
		span := float64(down - up)
		if span == 0 {
			continue
		}
		for x := 0; x < w; x++ {
			grad[y*w+x] = math.Abs(luma[down*w+x]-luma[up*w+x]) / span
		}
	}

	iw := w + 1
	sum := make([]float64, iw*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += grad[y*w+x]
			idx := (y+1)*iw + x + 1
			sum[idx] = sum[idx-iw] + row
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-r), minInt(h-1, y+r)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-r), minInt(w-1, x+r)
			n := float64((x1 - x0 + 1) * (y1 - y0 + 1))
			out[y*w+x] = (sum[(y1+1)*iw+x1+1] - sum[y0*iw+x1+1] - sum[(y1+1)*iw+x0] + sum[y0*iw+x0]) / n
		}
	}
	return out
}

// SobelMagnitude returns the gradient magnitude of a luma plane. Border
// pixels replicate their nearest neighbour.
func SobelMagnitude(luma []float64, w, h int) []float64 {
	at := func(x, y int) float64 {
		x = maxInt(0, minInt(w-1, x))
		y = maxInt(0, minInt(h-1, y))
		return luma[y*w+x]
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			out[y*w+x] = math.Sqrt(gx*gx + gy*gy)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
