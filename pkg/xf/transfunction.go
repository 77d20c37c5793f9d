package xf

import "github.com/i5heu/geomodel-db/pkg/trf"

// TransFunction maps a copy index to a placement transform.
type TransFunction interface {
	Eval(x float64) trf.Transform3D
	encode(e *encoder)
}

// XFPow is T raised to F(x): rotation angle and translation of T scaled by F(x).
type XFPow struct {
	T trf.Transform3D
	F GenFunc
}

// XFProduct is A(x) * B(x).
type XFProduct struct{ A, B TransFunction }

// PreMult is T * A(x).
type PreMult struct {
	T trf.Transform3D
	A TransFunction
}

// PostMult is A(x) * T.
type PostMult struct {
	A TransFunction
	T trf.Transform3D
}

func (f XFPow) Eval(x float64) trf.Transform3D { return f.T.Pow(f.F.Eval(x)) }
func (f XFProduct) Eval(x float64) trf.Transform3D { return f.A.Eval(x).Mul(f.B.Eval(x)) }
func (f PreMult) Eval(x float64) trf.Transform3D { return f.T.Mul(f.A.Eval(x)) }
func (f PostMult) Eval(x float64) trf.Transform3D { return f.A.Eval(x).Mul(f.T) }

// Placements evaluates f at 0..copies-1.
func Placements(f TransFunction, copies uint32) []trf.Transform3D {
	out := make([]trf.Transform3D, copies)
	for i := range out {
		out[i] = f.Eval(float64(i))
	}
	return out
}
