package filter

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// NotchSection designs a second-order notch at f0 Hz with quality factor q
// for sample rate fs. The -3 dB bandwidth is f0/q.
func NotchSection(f0, q, fs float64) Section {
	w0 := 2 * math.Pi * f0 / fs
	bw := w0 / q
	beta := math.Tan(bw / 2)
	gain := 1 / (1 + beta)
	c := math.Cos(w0)
	return Section{
		B0: gain,
		B1: -2 * gain * c,
		B2: gain,
		A1: -2 * gain * c,
		A2: 2*gain - 1,
	}
}

// Butterworth designs a digital Butterworth filter of the given order as a
// cascade of second-order sections using the bilinear transform with
// frequency pre-warping. Low-pass uses lowHz, high-pass uses highHz and
// band-pass uses [lowHz, highHz]. Band-pass yields 2*order poles.
func Butterworth(t Type, order int, lowHz, highHz, fs float64) (Cascade, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: order %d must be >= 1", ErrDesign, order)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("%w: sample rate %.2f", ErrSampleRate, fs)
	}

	poles := prototype(order)
	fs2 := 2 * fs
	warp := func(f float64) float64 { return fs2 * math.Tan(math.Pi*f/fs) }

	var zeros []complex128
	var gain float64

	switch t {
	case LowPass:
		wo := warp(lowHz)
		for i := range poles {
			poles[i] *= complex(wo, 0)
		}
		gain = math.Pow(wo, float64(order))
	case HighPass:
		wo := warp(highHz)
		prod := complex(1, 0)
		for i, p := range poles {
			prod *= -p
			poles[i] = complex(wo, 0) / p
		}
		zeros = make([]complex128, order)
		gain = real(1 / prod)
	case BandPass:
		lo, hi := warp(lowHz), warp(highHz)
		bw := hi - lo
		wo2 := complex(lo*hi, 0)
		bp := make([]complex128, 0, 2*order)
		for _, p := range poles {
			pl := p * complex(bw/2, 0)
			d := cmplx.Sqrt(pl*pl - wo2)
			bp = append(bp, pl+d)
		}
		for _, p := range poles {
			pl := p * complex(bw/2, 0)
			d := cmplx.Sqrt(pl*pl - wo2)
			bp = append(bp, pl-d)
		}
		poles = bp
		zeros = make([]complex128, order)
		gain = math.Pow(bw, float64(order))
	default:
		return nil, fmt.Errorf("%w: no main filter for type %s", ErrDesign, t)
	}

	z, p, k := bilinear(zeros, poles, gain, fs2)
	c, err := zpkToSOS(z, p, k)
	if err != nil {
		return nil, err
	}
	for i, s := range c {
		if !finite(s) {
			return nil, fmt.Errorf("%w: section %d has non-finite coefficients", ErrDesign, i)
		}
	}
	return c, nil
}

// prototype returns the poles of the unity-cutoff analog Butterworth filter.
func prototype(order int) []complex128 {
	poles := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		theta := math.Pi * float64(m) / float64(2*order)
		poles = append(poles, -cmplx.Exp(complex(0, theta)))
	}
	return poles
}

// bilinear maps analog zeros/poles/gain to the z-plane. Zeros at infinity
// land at z = -1.
func bilinear(z, p []complex128, k, fs2 float64) ([]complex128, []complex128, float64) {
	f := complex(fs2, 0)
	num, den := complex(1, 0), complex(1, 0)

	zd := make([]complex128, 0, len(p))
	for _, v := range z {
		zd = append(zd, (f+v)/(f-v))
		num *= f - v
	}
	pd := make([]complex128, 0, len(p))
	for _, v := range p {
		pd = append(pd, (f+v)/(f-v))
		den *= f - v
	}
	for len(zd) < len(pd) {
		zd = append(zd, -1)
	}
	return zd, pd, k * real(num/den)
}

// zpkToSOS groups conjugate pairs and real roots into second-order sections.
// The overall gain goes into the first section.
func zpkToSOS(z, p []complex128, k float64) (Cascade, error) {
	if len(z) != len(p) {
		return nil, fmt.Errorf("%w: %d zeros for %d poles", ErrDesign, len(z), len(p))
	}
	num, err := quadratics(z)
	if err != nil {
		return nil, err
	}
	den, err := quadratics(p)
	if err != nil {
		return nil, err
	}
	if len(num) != len(den) {
		return nil, fmt.Errorf("%w: cannot pair %d numerator with %d denominator sections", ErrDesign, len(num), len(den))
	}

	c := make(Cascade, len(den))
	for i := range den {
		c[i] = Section{
			B0: num[i][0],
			B1: num[i][1],
			B2: num[i][2],
			A1: den[i][1],
			A2: den[i][2],
		}
	}
	if len(c) > 0 {
		c[0].B0 *= k
		c[0].B1 *= k
		c[0].B2 *= k
	}
	return c, nil
}

// quadratics returns monic polynomials [1, c1, c2] whose roots are the given
// roots: conjugate pairs first, then real roots in pairs, then one leftover
// real root as a first-order term.
func quadratics(roots []complex128) ([][3]float64, error) {
	var upper []complex128
	var lower int
	var reals []float64
	for _, r := range roots {
		tol := 1e-10 * math.Max(1, cmplx.Abs(r))
		switch {
		case imag(r) > tol:
			upper = append(upper, r)
		case imag(r) < -tol:
			lower++
		default:
			reals = append(reals, real(r))
		}
	}
	if len(upper) != lower {
		return nil, fmt.Errorf("%w: roots are not in conjugate pairs", ErrDesign)
	}
	sort.Float64s(reals)

	out := make([][3]float64, 0, (len(roots)+1)/2)
	for _, r := range upper {
		out = append(out, [3]float64{1, -2 * real(r), real(r)*real(r) + imag(r)*imag(r)})
	}
	i := 0
	for ; i+1 < len(reals); i += 2 {
		out = append(out, [3]float64{1, -(reals[i] + reals[i+1]), reals[i] * reals[i+1]})
	}
	if i < len(reals) {
		out = append(out, [3]float64{1, -reals[i], 0})
	}
	return out, nil
}

func finite(s Section) bool {
	for _, v := range []float64{s.B0, s.B1, s.B2, s.A1, s.A2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
