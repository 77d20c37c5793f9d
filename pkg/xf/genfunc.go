// Package xf holds the placement functions used by serial transformers: scalar
// functions of the copy index and transform-valued functions built from them.
package xf

import "math"

// GenFunc is a real function of one variable.
type GenFunc interface {
	Eval(x float64) float64
	encode(e *encoder)
}

type UnaryOp string

const (
	OpSin    UnaryOp = "Sin"
	OpCos    UnaryOp = "Cos"
	OpTan    UnaryOp = "Tan"
	OpSqrt   UnaryOp = "Sqrt"
	OpAbs    UnaryOp = "Abs"
	OpExp    UnaryOp = "Exp"
	OpLog    UnaryOp = "Log"
	OpSquare UnaryOp = "Square"
)

var unaryOps = map[UnaryOp]func(float64) float64{
	OpSin:    math.Sin,
	OpCos:    math.Cos,
	OpTan:    math.Tan,
	OpSqrt:   math.Sqrt,
	OpAbs:    math.Abs,
	OpExp:    math.Exp,
	OpLog:    math.Log,
	OpSquare: func(v float64) float64 { return v * v },
}

// Var is the identity function x.
type Var struct{}

type Const struct{ C float64 }

type Sum struct{ A, B GenFunc }

type Diff struct{ A, B GenFunc }

type Prod struct{ A, B GenFunc }

type Quot struct{ A, B GenFunc }

type Neg struct{ F GenFunc }

type ConstTimes struct {
	C float64
	F GenFunc
}

type ConstPlus struct {
	C float64
	F GenFunc
}

// ConstMinus is C - F.
type ConstMinus struct {
	C float64
	F GenFunc
}

// ConstOver is C / F.
type ConstOver struct {
	C float64
	F GenFunc
}

// Compose is F(G(x)).
type Compose struct{ F, G GenFunc }

type Unary struct {
	Op UnaryOp
	F  GenFunc
}

// Power is F(x) raised to E.
type Power struct {
	F GenFunc
	E float64
}

// Mod is F(x) modulo M, with the sign of M.
type Mod struct {
	F GenFunc
	M float64
}

func (Var) Eval(x float64) float64 { return x }
func (c Const) Eval(float64) float64 { return c.C }
func (f Sum) Eval(x float64) float64 { return f.A.Eval(x) + f.B.Eval(x) }
func (f Diff) Eval(x float64) float64 { return f.A.Eval(x) - f.B.Eval(x) }
func (f Prod) Eval(x float64) float64 { return f.A.Eval(x) * f.B.Eval(x) }
func (f Quot) Eval(x float64) float64 { return f.A.Eval(x) / f.B.Eval(x) }
func (f Neg) Eval(x float64) float64 { return -f.F.Eval(x) }
func (f ConstTimes) Eval(x float64) float64 { return f.C * f.F.Eval(x) }
func (f ConstPlus) Eval(x float64) float64 { return f.C + f.F.Eval(x) }
func (f ConstMinus) Eval(x float64) float64 { return f.C - f.F.Eval(x) }
func (f ConstOver) Eval(x float64) float64 { return f.C / f.F.Eval(x) }
func (f Compose) Eval(x float64) float64 { return f.F.Eval(f.G.Eval(x)) }
func (f Power) Eval(x float64) float64 { return math.Pow(f.F.Eval(x), f.E) }

func (f Unary) Eval(x float64) float64 {
	op, ok := unaryOps[f.Op]
	if !ok {
		return math.NaN()
	}
	return op(f.F.Eval(x))
}

func (f Mod) Eval(x float64) float64 {
	v := f.F.Eval(x)
	return v - f.M*math.Floor(v/f.M)
}

// Linear returns a + b*x, the most common copy-index function.
func Linear(a, b float64) GenFunc {
	return ConstPlus{C: a, F: ConstTimes{C: b, F: Var{}}}
}
