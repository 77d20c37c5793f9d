package xf

import (
	"strings"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/trf"
)

// Token names of the persisted function expression. Every "REAL" consumes one literal,
// every "Transform" consumes twelve, always in prefix order.
const (
	tokVar        = "X"
	tokConst      = "Const"
	tokSum        = "Sum"
	tokDiff       = "Difference"
	tokProd       = "Product"
	tokQuot       = "Quotient"
	tokNeg        = "Negation"
	tokConstTimes = "ConstTimes"
	tokConstPlus  = "ConstPlus"
	tokConstMinus = "ConstMinus"
	tokConstOver  = "ConstOver"
	tokCompose    = "Composition"
	tokPow        = "Pow"
	tokMod        = "Mod"
	tokReal       = "REAL"
	tokTransform  = "Transform"
	tokXFPow      = "XF::Pow"
	tokXFProduct  = "XF::Product"
	tokXFPreMult  = "XF::PreMult"
	tokXFPostMult = "XF::PostMult"
)

type encoder struct {
	tokens   []string
	literals []float64
}

func (e *encoder) token(t string) { e.tokens = append(e.tokens, t) }

func (e *encoder) real(v float64) {
	e.tokens = append(e.tokens, tokReal)
	e.literals = append(e.literals, v)
}

func (e *encoder) transform(t trf.Transform3D) {
	e.tokens = append(e.tokens, tokTransform)
	el := t.Elements()
	e.literals = append(e.literals, el[:]...)
}

func (Var) encode(e *encoder) { e.token(tokVar) }

func (c Const) encode(e *encoder) {
	e.token(tokConst)
	e.real(c.C)
}

func (f Sum) encode(e *encoder) { e.binary(tokSum, f.A, f.B) }
func (f Diff) encode(e *encoder) { e.binary(tokDiff, f.A, f.B) }
func (f Prod) encode(e *encoder) { e.binary(tokProd, f.A, f.B) }
func (f Quot) encode(e *encoder) { e.binary(tokQuot, f.A, f.B) }
func (f Compose) encode(e *encoder) {
	e.binary(tokCompose, f.F, f.G)
}

func (f Neg) encode(e *encoder) {
	e.token(tokNeg)
	f.F.encode(e)
}

func (f Unary) encode(e *encoder) {
	e.token(string(f.Op))
	f.F.encode(e)
}

func (f ConstTimes) encode(e *encoder) { e.scaled(tokConstTimes, f.C, f.F) }
func (f ConstPlus) encode(e *encoder) { e.scaled(tokConstPlus, f.C, f.F) }
func (f ConstMinus) encode(e *encoder) { e.scaled(tokConstMinus, f.C, f.F) }
func (f ConstOver) encode(e *encoder) { e.scaled(tokConstOver, f.C, f.F) }
func (f Power) encode(e *encoder) { e.scaled(tokPow, f.E, f.F) }
func (f Mod) encode(e *encoder) { e.scaled(tokMod, f.M, f.F) }

func (e *encoder) binary(tok string, a, b GenFunc) {
	e.token(tok)
	a.encode(e)
	b.encode(e)
}

func (e *encoder) scaled(tok string, c float64, f GenFunc) {
	e.token(tok)
	e.real(c)
	f.encode(e)
}

func (f XFPow) encode(e *encoder) {
	e.token(tokXFPow)
	e.transform(f.T)
	f.F.encode(e)
}

func (f XFProduct) encode(e *encoder) {
	e.token(tokXFProduct)
	f.A.encode(e)
	f.B.encode(e)
}

func (f PreMult) encode(e *encoder) {
	e.token(tokXFPreMult)
	e.transform(f.T)
	f.A.encode(e)
}

func (f PostMult) encode(e *encoder) {
	e.token(tokXFPostMult)
	f.A.encode(e)
	e.transform(f.T)
}

// Encode flattens f into prefix tokens and the literal queue they consume.
func Encode(f TransFunction) ([]string, []float64) {
	e := &encoder{}
	f.encode(e)
	return e.tokens, e.literals
}

// EncodeGenFunc is Encode for a scalar function.
func EncodeGenFunc(f GenFunc) ([]string, []float64) {
	e := &encoder{}
	f.encode(e)
	return e.tokens, e.literals
}

// Expression joins tokens into the text stored in the Functions table.
func Expression(tokens []string) string {
	return strings.Join(tokens, " ")
}

func ParseExpression(s string) []string {
	return strings.Fields(s)
}

type decoder struct {
	tokens   []string
	literals []float64
	pos      int
	lit      int
}

func (d *decoder) next() (string, error) {
	if d.pos >= len(d.tokens) {
		return "", dberrors.Corrupt("function expression ends early after %d tokens", d.pos)
	}
	t := d.tokens[d.pos]
	d.pos++
	return t, nil
}

func (d *decoder) real() (float64, error) {
	t, err := d.next()
	if err != nil {
		return 0, err
	}
	if t != tokReal {
		return 0, dberrors.Corrupt("expected %s at token %d, got %q", tokReal, d.pos-1, t)
	}
	if d.lit >= len(d.literals) {
		return 0, dberrors.Corrupt("function literal queue exhausted at token %d", d.pos-1)
	}
	v := d.literals[d.lit]
	d.lit++
	return v, nil
}

func (d *decoder) transform() (trf.Transform3D, error) {
	t, err := d.next()
	if err != nil {
		return trf.Transform3D{}, err
	}
	if t != tokTransform {
		return trf.Transform3D{}, dberrors.Corrupt("expected %s at token %d, got %q", tokTransform, d.pos-1, t)
	}
	if d.lit+12 > len(d.literals) {
		return trf.Transform3D{}, dberrors.Corrupt("function literal queue exhausted at token %d", d.pos-1)
	}
	var el [12]float64
	copy(el[:], d.literals[d.lit:d.lit+12])
	d.lit += 12
	return trf.FromElements(el), nil
}

func (d *decoder) genFunc() (GenFunc, error) {
	t, err := d.next()
	if err != nil {
		return nil, err
	}
	switch t {
	case tokVar:
		return Var{}, nil
	case tokConst:
		c, err := d.real()
		if err != nil {
			return nil, err
		}
		return Const{C: c}, nil
	case tokSum, tokDiff, tokProd, tokQuot, tokCompose:
		a, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		b, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		switch t {
		case tokSum:
			return Sum{A: a, B: b}, nil
		case tokDiff:
			return Diff{A: a, B: b}, nil
		case tokProd:
			return Prod{A: a, B: b}, nil
		case tokQuot:
			return Quot{A: a, B: b}, nil
		}
		return Compose{F: a, G: b}, nil
	case tokNeg:
		f, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		return Neg{F: f}, nil
	case tokConstTimes, tokConstPlus, tokConstMinus, tokConstOver, tokPow, tokMod:
		c, err := d.real()
		if err != nil {
			return nil, err
		}
		f, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		switch t {
		case tokConstTimes:
			return ConstTimes{C: c, F: f}, nil
		case tokConstPlus:
			return ConstPlus{C: c, F: f}, nil
		case tokConstMinus:
			return ConstMinus{C: c, F: f}, nil
		case tokConstOver:
			return ConstOver{C: c, F: f}, nil
		case tokPow:
			return Power{F: f, E: c}, nil
		}
		return Mod{F: f, M: c}, nil
	}
	if _, ok := unaryOps[UnaryOp(t)]; ok {
		f, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		return Unary{Op: UnaryOp(t), F: f}, nil
	}
	return nil, dberrors.Corrupt("unknown function token %q at %d", t, d.pos-1)
}

func (d *decoder) transFunction() (TransFunction, error) {
	t, err := d.next()
	if err != nil {
		return nil, err
	}
	switch t {
	case tokXFPow:
		x, err := d.transform()
		if err != nil {
			return nil, err
		}
		f, err := d.genFunc()
		if err != nil {
			return nil, err
		}
		return XFPow{T: x, F: f}, nil
	case tokXFProduct:
		a, err := d.transFunction()
		if err != nil {
			return nil, err
		}
		b, err := d.transFunction()
		if err != nil {
			return nil, err
		}
		return XFProduct{A: a, B: b}, nil
	case tokXFPreMult:
		x, err := d.transform()
		if err != nil {
			return nil, err
		}
		a, err := d.transFunction()
		if err != nil {
			return nil, err
		}
		return PreMult{T: x, A: a}, nil
	case tokXFPostMult:
		a, err := d.transFunction()
		if err != nil {
			return nil, err
		}
		x, err := d.transform()
		if err != nil {
			return nil, err
		}
		return PostMult{A: a, T: x}, nil
	}
	return nil, dberrors.Corrupt("unknown transform function token %q at %d", t, d.pos-1)
}

func (d *decoder) finish() error {
	if d.pos != len(d.tokens) {
		return dberrors.Corrupt("%d trailing function tokens", len(d.tokens)-d.pos)
	}
	if d.lit != len(d.literals) {
		return dberrors.Corrupt("%d unused function literals", len(d.literals)-d.lit)
	}
	return nil
}

// Decode rebuilds a transform function from its tokens and literal queue.
// Every token and literal must be consumed.
func Decode(tokens []string, literals []float64) (TransFunction, error) {
	d := &decoder{tokens: tokens, literals: literals}
	f, err := d.transFunction()
	if err != nil {
		return nil, err
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return f, nil
}

func DecodeGenFunc(tokens []string, literals []float64) (GenFunc, error) {
	d := &decoder{tokens: tokens, literals: literals}
	f, err := d.genFunc()
	if err != nil {
		return nil, err
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return f, nil
}
