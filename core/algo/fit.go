package algo

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/huangsam/visqa/schema"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Fit tuning constants.
const (
	// HighSNRCut is the median |V|/|sigma| above which regression is attempted.
	HighSNRCut = 3.0

	// FlatSlopeErr is the slope uncertainty reported by the flat fit.
	FlatSlopeErr = 1e6

	// medianErrFactor converts a standard deviation into the standard error of
	// the median, sqrt(pi/2).
	medianErrFactor = 1.2533

	// MaxReducedChi2 is the largest chi^2 per degree of freedom an angular
	// phase fit may leave before it counts as not converged.
	MaxReducedChi2 = 10.0
)

// FitInput is the per-channel time average of one antenna/polarization.
type FitInput struct {
	Freq  []float64    // channel frequencies in Hz
	Vis   []complex128 // averaged visibility
	Sigma []complex128 // real and imaginary uncertainty of Vis
	Mask  []bool       // true = invalid channel
}

// AmpPhaseFit is the outcome of FitAmpPhase. LowSNR marks the flat fit.
type AmpPhaseFit struct {
	Amp    schema.FitResult
	Phase  schema.FitResult
	SNR    float64
	LowSNR bool
}

// channelData holds the valid channels of a FitInput in model coordinates.
type channelData struct {
	x        []float64 // (f - f0) / bw
	vis      []complex128
	sigRe    []float64
	sigIm    []float64
	amp      []float64
	phase    []float64
	ampErr   []float64
	phaseErr []float64
}

// FitAmpPhase fits amplitude and phase against normalized frequency. High S/N
// data gets a weighted linear amplitude fit and a wrap-safe angular phase fit;
// low S/N data, or an angular fit that does not converge, gets the flat fit.
func FitAmpPhase(in FitInput) (AmpPhaseFit, error) {
	cd, err := prepareChannels(in)
	if err != nil {
		return AmpPhaseFit{}, err
	}

	ratio := make([]float64, len(cd.vis))
	for i, v := range cd.vis {
		ratio[i] = cmplx.Abs(v) / math.Hypot(cd.sigRe[i], cd.sigIm[i])
	}
	snr := Median(ratio)

	if snr > HighSNRCut {
		if fit, err := highSNRFit(cd); err == nil {
			fit.SNR = snr
			return fit, nil
		}
	}
	fit := flatFit(cd)
	fit.SNR = snr
	return fit, nil
}

func prepareChannels(in FitInput) (channelData, error) {
	n := len(in.Vis)
	if len(in.Freq) != n || len(in.Sigma) != n || (in.Mask != nil && len(in.Mask) != n) {
		return channelData{}, fmt.Errorf("%w: fit input lengths freq=%d vis=%d sigma=%d mask=%d",
			schema.ErrInvalidConfiguration, len(in.Freq), n, len(in.Sigma), len(in.Mask))
	}
	if n == 0 {
		return channelData{}, fmt.Errorf("no channels: %w", schema.ErrInsufficientData)
	}

	lo, hi := floats.Min(in.Freq), floats.Max(in.Freq)
	f0 := 0.5 * (lo + hi)
	bw := hi - lo
	if bw == 0 {
		bw = 1
	}

	var cd channelData
	for c, v := range in.Vis {
		if in.Mask != nil && in.Mask[c] {
			continue
		}
		amp := cmplx.Abs(v)
		sr, si := real(in.Sigma[c]), imag(in.Sigma[c])
		if amp == 0 || cmplx.IsNaN(v) || cmplx.IsInf(v) || !(sr > 0) || !(si > 0) {
			continue
		}
		re, im := real(v), imag(v)
		cd.x = append(cd.x, (in.Freq[c]-f0)/bw)
		cd.vis = append(cd.vis, v)
		cd.sigRe = append(cd.sigRe, sr)
		cd.sigIm = append(cd.sigIm, si)
		cd.amp = append(cd.amp, amp)
		cd.phase = append(cd.phase, cmplx.Phase(v))
		cd.ampErr = append(cd.ampErr, math.Hypot(re*sr, im*si)/amp)
		cd.phaseErr = append(cd.phaseErr, math.Hypot(im*sr, re*si)/(amp*amp))
	}
	if len(cd.vis) == 0 {
		return channelData{}, fmt.Errorf("all %d channels masked: %w", n, schema.ErrInsufficientData)
	}
	return cd, nil
}

func highSNRFit(cd channelData) (AmpPhaseFit, error) {
	ampSlope, ampIntercept, err := weightedLinearFit(cd.x, cd.amp, cd.ampErr)
	if err != nil {
		return AmpPhaseFit{}, fmt.Errorf("amplitude fit: %w", err)
	}
	phase, err := angularFit(cd)
	if err != nil {
		return AmpPhaseFit{}, err
	}
	return AmpPhaseFit{
		Amp:   schema.FitResult{Slope: ampSlope, Intercept: ampIntercept},
		Phase: phase,
	}, nil
}

// flatFit reports the median with its standard error as the intercept and an
// unconstrained slope.
func flatFit(cd channelData) AmpPhaseFit {
	flat := func(values []float64) schema.FitResult {
		_, std := stat.PopMeanStdDev(values, nil)
		return schema.FitResult{
			Slope:     schema.Measurement{Value: 0, Err: FlatSlopeErr},
			Intercept: schema.Measurement{Value: Median(values), Err: medianErrFactor * std / math.Sqrt(float64(len(values)))},
		}
	}
	return AmpPhaseFit{Amp: flat(cd.amp), Phase: flat(cd.phase), LowSNR: true}
}

// weightedLinearFit fits y = slope*x + intercept with weights 1/sigma^2 and
// returns absolute-sigma uncertainties from (J^T W J)^-1.
func weightedLinearFit(x, y, sigma []float64) (slope, intercept schema.Measurement, err error) {
	n := len(x)
	if n < 2 {
		return slope, intercept, fmt.Errorf("linear fit over %d points: %w", n, schema.ErrInsufficientData)
	}
	j := mat.NewDense(n, 2, nil)
	wj := mat.NewDense(n, 2, nil)
	wy := mat.NewVecDense(n, nil)
	for i := range x {
		w := 1 / (sigma[i] * sigma[i])
		j.Set(i, 0, x[i])
		j.Set(i, 1, 1)
		wj.Set(i, 0, w*x[i])
		wj.Set(i, 1, w)
		wy.SetVec(i, w*y[i])
	}

	var normal, cov mat.Dense
	normal.Mul(j.T(), wj)
	if err := cov.Inverse(&normal); err != nil {
		return slope, intercept, fmt.Errorf("singular normal equations: %v: %w", err, schema.ErrFitConvergence)
	}
	var rhs, params mat.VecDense
	rhs.MulVec(j.T(), wy)
	params.MulVec(&cov, &rhs)

	slope = schema.Measurement{Value: params.AtVec(0), Err: math.Sqrt(cov.At(0, 0))}
	intercept = schema.Measurement{Value: params.AtVec(1), Err: math.Sqrt(cov.At(1, 1))}
	if math.IsNaN(slope.Value) || math.IsNaN(intercept.Value) {
		return slope, intercept, fmt.Errorf("non-finite linear fit: %w", schema.ErrFitConvergence)
	}
	return slope, intercept, nil
}

// angularFit fits exp(i(slope*x + intercept)) to V/|V| by L-BFGS on chi^2, then
// refits the residual phase linearly to get the corrections and uncertainties.
func angularFit(cd channelData) (schema.FitResult, error) {
	n := len(cd.vis)
	unit := make([]complex128, n)
	sr := make([]float64, n)
	si := make([]float64, n)
	for i, v := range cd.vis {
		unit[i] = v / complex(cd.amp[i], 0)
		sr[i] = cd.sigRe[i] / cd.amp[i]
		si[i] = cd.sigIm[i] / cd.amp[i]
	}

	chi2 := func(p []float64) float64 {
		var sum float64
		for i, x := range cd.x {
			s, c := math.Sincos(p[0]*x + p[1])
			dr := (c - real(unit[i])) / sr[i]
			di := (s - imag(unit[i])) / si[i]
			sum += dr*dr + di*di
		}
		return sum
	}
	grad := func(g, p []float64) {
		g[0], g[1] = 0, 0
		for i, x := range cd.x {
			s, c := math.Sincos(p[0]*x + p[1])
			dr := (c - real(unit[i])) / (sr[i] * sr[i])
			di := (s - imag(unit[i])) / (si[i] * si[i])
			d := 2 * (-dr*s + di*c)
			g[0] += d * x
			g[1] += d
		}
	}

	x0 := initialPhaseModel(cd.x, unit)
	res, err := optimize.Minimize(
		optimize.Problem{Func: chi2, Grad: grad},
		x0,
		&optimize.Settings{MajorIterations: 200, GradientThreshold: 1e-8},
		&optimize.LBFGS{},
	)
	// ErrNoProgress means the line search stalled at the current point; the
	// chi^2 gate below decides whether that point is usable.
	if err != nil && !errors.Is(err, optimize.ErrNoProgress) {
		return schema.FitResult{}, fmt.Errorf("angular phase fit: %v: %w", err, schema.ErrFitConvergence)
	}
	if res == nil || math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return schema.FitResult{}, fmt.Errorf("angular phase fit: %w", schema.ErrFitConvergence)
	}
	if dof := n - 2; dof > 0 && res.F/float64(dof) > MaxReducedChi2 {
		return schema.FitResult{}, fmt.Errorf("angular phase fit: reduced chi^2 %.3g over %d channels: %w",
			res.F/float64(dof), n, schema.ErrFitConvergence)
	}
	slope0, intercept0 := res.X[0], res.X[1]

	resid := make([]float64, n)
	for i, x := range cd.x {
		resid[i] = cmplx.Phase(cd.vis[i] * cmplx.Exp(complex(0, -(slope0*x+intercept0))))
	}
	ds, di, err := weightedLinearFit(cd.x, resid, cd.phaseErr)
	if err != nil {
		return schema.FitResult{}, fmt.Errorf("phase residual fit: %w", err)
	}
	return schema.FitResult{
		Slope:     schema.Measurement{Value: slope0 + ds.Value, Err: ds.Err},
		Intercept: schema.Measurement{Value: WrapPhase(intercept0 + di.Value), Err: di.Err},
	}, nil
}

// initialPhaseModel estimates slope and intercept of the unit phasors. The
// slope is the median wrapped phase step between neighbouring channels; the
// intercept is the phase of the derotated vector sum.
func initialPhaseModel(x []float64, unit []complex128) []float64 {
	var steps []float64
	for i := 1; i < len(x); i++ {
		dx := x[i] - x[i-1]
		if dx == 0 {
			continue
		}
		steps = append(steps, WrapPhase(cmplx.Phase(unit[i]*cmplx.Conj(unit[i-1])))/dx)
	}
	var slope float64
	if len(steps) > 0 {
		slope = Median(steps)
	}
	var sum complex128
	for i, v := range unit {
		sum += v * cmplx.Exp(complex(0, -slope*x[i]))
	}
	return []float64{slope, cmplx.Phase(sum)}
}

// WrapPhase maps an angle in radians onto (-pi, pi].
func WrapPhase(phi float64) float64 {
	w := math.Mod(phi+math.Pi, 2*math.Pi)
	if w <= 0 {
		w += 2 * math.Pi
	}
	return w - math.Pi
}

// ChannelAverage is the per-channel time average of one polarization.
type ChannelAverage struct {
	Vis   []complex128
	Sigma []complex128
	Mask  []bool
}

// FitInput pairs the average with its channel frequencies.
func (c ChannelAverage) FitInput(freq []float64) FitInput {
	return FitInput{Freq: freq, Vis: c.Vis, Sigma: c.Sigma, Mask: c.Mask}
}

// TimeAverage averages polarization pol of cube over time. The sigma of each
// channel is the population standard deviation of the real and imaginary parts
// over sqrt(n). Channels flagged in chanMask or with fewer than two unflagged
// integrations are masked.
func TimeAverage(cube schema.VisibilityCube, pol int, chanMask []bool) (ChannelAverage, error) {
	if pol < 0 || pol >= cube.NumPols() {
		return ChannelAverage{}, fmt.Errorf("%w: polarization index %d of %d", schema.ErrInvalidConfiguration, pol, cube.NumPols())
	}
	nchan := cube.NumChans()
	if chanMask != nil && len(chanMask) != nchan {
		return ChannelAverage{}, fmt.Errorf("%w: channel mask length %d != %d", schema.ErrInvalidConfiguration, len(chanMask), nchan)
	}

	out := ChannelAverage{
		Vis:   make([]complex128, nchan),
		Sigma: make([]complex128, nchan),
		Mask:  make([]bool, nchan),
	}
	re := make([]float64, 0, cube.NumTimes())
	im := make([]float64, 0, cube.NumTimes())
	for ch := range nchan {
		if chanMask != nil && chanMask[ch] {
			out.Mask[ch] = true
			continue
		}
		re, im = re[:0], im[:0]
		for t, v := range cube.Data[pol][ch] {
			if cube.Flagged(pol, ch, t) {
				continue
			}
			re = append(re, real(v))
			im = append(im, imag(v))
		}
		if len(re) < 2 {
			out.Mask[ch] = true
			continue
		}
		sqrtN := math.Sqrt(float64(len(re)))
		meanRe, stdRe := stat.PopMeanStdDev(re, nil)
		meanIm, stdIm := stat.PopMeanStdDev(im, nil)
		out.Vis[ch] = complex(meanRe, meanIm)
		out.Sigma[ch] = complex(stdRe/sqrtN, stdIm/sqrtN)
	}
	return out, nil
}
