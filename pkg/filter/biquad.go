package filter

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Section is one second-order IIR stage with a0 normalised to 1:
//
//	H(z) = (B0 + B1 z^-1 + B2 z^-2) / (1 + A1 z^-1 + A2 z^-2)
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Cascade is a series of sections applied in order.
type Cascade []Section

// State is the transposed direct form II delay line of each section.
type State [][2]float64

// NewState returns a zeroed state for c.
func (c Cascade) NewState() State {
	return make(State, len(c))
}

// Clone returns a copy of s.
func (s State) Clone() State {
	return append(State(nil), s...)
}

// Scale returns s multiplied by k.
func (s State) Scale(k float64) State {
	out := make(State, len(s))
	for i, z := range s {
		out[i] = [2]float64{z[0] * k, z[1] * k}
	}
	return out
}

// Filter runs x through the cascade starting from zi and returns the output
// and the final state. x and zi are not modified. A nil zi starts from rest.
func (c Cascade) Filter(x []float64, zi State) ([]float64, State) {
	y := append([]float64(nil), x...)
	zf := make(State, len(c))
	if zi != nil {
		copy(zf, zi)
	}

	for s, sec := range c {
		z0, z1 := zf[s][0], zf[s][1]
		for n, xn := range y {
			out := sec.B0*xn + z0
			z0 = sec.B1*xn - sec.A1*out + z1
			z1 = sec.B2*xn - sec.A2*out
			y[n] = out
		}
		zf[s] = [2]float64{z0, z1}
	}
	return y, zf
}

// Response returns the complex frequency response at f for sample rate fs.
func (c Cascade) Response(f, fs float64) complex128 {
	w := 2 * math.Pi * f / fs
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	h := complex(1, 0)
	for _, s := range c {
		num := complex(s.B0, 0) + complex(s.B1, 0)*z1 + complex(s.B2, 0)*z2
		den := 1 + complex(s.A1, 0)*z1 + complex(s.A2, 0)*z2
		h *= num / den
	}
	return h
}

// SteadyState returns the state of each section after an infinitely long
// unit-step input, so that filtering a constant x from SteadyState().Scale(x)
// produces no transient.
func (c Cascade) SteadyState() (State, error) {
	zi := make(State, len(c))
	scale := 1.0
	for i, s := range c {
		// (I - companion(a)^T) zi = b[1:] - a[1:] * b0
		a := mat.NewDense(2, 2, []float64{
			1 + s.A1, -1,
			s.A2, 1,
		})
		b := mat.NewVecDense(2, []float64{
			s.B1 - s.A1*s.B0,
			s.B2 - s.A2*s.B0,
		})
		var z mat.VecDense
		if err := z.SolveVec(a, b); err != nil {
			return nil, fmt.Errorf("%w: section %d steady state: %v", ErrDesign, i, err)
		}
		zi[i] = [2]float64{scale * z.AtVec(0), scale * z.AtVec(1)}

		den := 1 + s.A1 + s.A2
		if den == 0 {
			return nil, fmt.Errorf("%w: section %d has a pole at DC", ErrDesign, i)
		}
		scale *= (s.B0 + s.B1 + s.B2) / den
	}
	return zi, nil
}
