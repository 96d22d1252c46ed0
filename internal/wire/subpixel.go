package wire

import (
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// fwhmFactor converts a Gaussian sigma to full width at half maximum.
const fwhmFactor = 2.354820045030949 // 2*sqrt(2*ln 2)

// peakFit is the result of fitting a Gaussian to an intensity profile.
type peakFit struct {
	// Centre is the sub-pixel peak position relative to the profile
	// centre index (negative = before centre).
	Centre float64

	// Sigma of the fitted Gaussian, in profile sample units.
	Sigma float64

	// Amplitude is the fitted peak height.
	Amplitude float64

	// Residual is the RMS of (data - fit) normalised by the amplitude,
	// clamped to [0, 1].
	Residual float64

	OK bool
}

// FWHM returns the full width at half maximum of the fitted peak.
func (f peakFit) FWHM() float64 { return fwhmFactor * f.Sigma }

// fitGaussian fits a Gaussian peak to the profile using Guo's weighted
// log-parabola least squares: ln y = a + b*x + c*x^2, weighted by y^2 so
// low-intensity tail samples do not dominate the log fit. x is the sample
// index relative to the profile centre.
func fitGaussian(profile []float64) peakFit {
	n := len(profile)
	if n < 5 {
		return peakFit{Residual: 1}
	}

	peak := 0.0
	for _, v := range profile {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return peakFit{Residual: 1}
	}

	// Weighted normal equations for [a b c].
	var s [5]float64 // sums of w*x^k for k=0..4
	var t [3]float64 // sums of w*x^k*ln(y) for k=0..2
	centre := float64(n-1) / 2
	used := 0
	for i, y := range profile {
		if y < peak*0.05 || y <= 0 {
			continue
		}
		x := float64(i) - centre
		w := y * y
		ln := math.Log(y)
		xp := 1.0
		for k := 0; k < 5; k++ {
			s[k] += w * xp
			if k < 3 {
				t[k] += w * xp * ln
			}
			xp *= x
		}
		used++
	}
	if used < 4 {
		return peakFit{Residual: 1}
	}

	a := mat.NewDense(3, 3, []float64{
		s[0], s[1], s[2],
		s[1], s[2], s[3],
		s[2], s[3], s[4],
	})
	rhs := mat.NewVecDense(3, []float64{t[0], t[1], t[2]})
	var sol mat.VecDense
	if err := sol.SolveVec(a, rhs); err != nil {
		return peakFit{Residual: 1}
	}
	ca, cb, cc := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)
	if cc >= 0 || math.IsNaN(cc) {
		return peakFit{Residual: 1}
	}

	mu := -cb / (2 * cc)
	sigma := math.Sqrt(-1 / (2 * cc))
	amp := math.Exp(ca - cb*cb/(4*cc))
	if math.IsNaN(mu) || math.IsNaN(sigma) || math.IsNaN(amp) || amp <= 0 {
		return peakFit{Residual: 1}
	}

	// Residual over the full profile, normalised by amplitude.
	var sse float64
	for i, y := range profile {
		x := float64(i) - centre
		fitY := amp * math.Exp(-(x-mu)*(x-mu)/(2*sigma*sigma))
		d := y - fitY
		sse += d * d
	}
	res := math.Sqrt(sse/float64(n)) / amp
	if res > 1 {
		res = 1
	}

	return peakFit{Centre: mu, Sigma: sigma, Amplitude: amp, Residual: res, OK: true}
}

// sampleBilinear reads the gray Mat at a fractional position. Positions
// outside the image clamp to the border.
func sampleBilinear(gray gocv.Mat, x, y float64) float64 {
	cols := gray.Cols()
	rows := gray.Rows()
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x > float64(cols-1) {
		x = float64(cols - 1)
	}
	if y > float64(rows-1) {
		y = float64(rows - 1)
	}
	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > cols-1 {
		x1 = cols - 1
	}
	if y1 > rows-1 {
		y1 = rows - 1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := float64(gray.GetUCharAt(y0, x0))
	v01 := float64(gray.GetUCharAt(y0, x1))
	v10 := float64(gray.GetUCharAt(y1, x0))
	v11 := float64(gray.GetUCharAt(y1, x1))
	top := v00*(1-fx) + v01*fx
	bot := v10*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}

// perpendicularProfile samples the mean darkness profile across the wire.
// stations intensity columns are taken along the segment and averaged;
// the profile spans 2*halfWidth+1 samples along the segment normal. The
// wire is darker than the sky, so samples are inverted to make the wire
// a positive peak.
func perpendicularProfile(gray gocv.Mat, x1, y1, x2, y2 float64, halfWidth, stations int) []float64 {
	dx := x2 - x1
	dy := y2 - y1
	length := math.Hypot(dx, dy)
	if length == 0 || stations < 1 || halfWidth < 1 {
		return nil
	}
	// Unit normal to the segment.
	nx := -dy / length
	ny := dx / length

	size := 2*halfWidth + 1
	profile := make([]float64, size)
	for s := 0; s < stations; s++ {
		// Stations spread over the middle of the segment, away from the
		// endpoints where the edge response decays.
		f := (float64(s) + 0.5) / float64(stations)
		px := x1 + dx*f
		py := y1 + dy*f
		for j := -halfWidth; j <= halfWidth; j++ {
			v := sampleBilinear(gray, px+nx*float64(j), py+ny*float64(j))
			profile[j+halfWidth] += 255 - v
		}
	}
	inv := 1 / float64(stations)
	floor := math.Inf(1)
	for i := range profile {
		profile[i] *= inv
		if profile[i] < floor {
			floor = profile[i]
		}
	}
	// Remove the background pedestal so the fit sees the peak only.
	for i := range profile {
		profile[i] -= floor
	}
	return profile
}
