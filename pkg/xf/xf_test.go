package xf

import (
	"math"
	"testing"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func everyGenFunc() GenFunc {
	x := Var{}
	return Sum{
		A: Diff{A: Prod{A: x, B: Const{C: 2}}, B: Quot{A: x, B: Const{C: 4}}},
		B: Sum{
			A: Neg{F: ConstTimes{C: 3, F: ConstPlus{C: 1, F: ConstMinus{C: 5, F: ConstOver{C: 8, F: ConstPlus{C: 1, F: x}}}}}},
			B: Sum{
				A: Compose{F: Unary{Op: OpSin, F: x}, G: Unary{Op: OpSquare, F: x}},
				B: Sum{
					A: Power{F: Unary{Op: OpAbs, F: x}, E: 1.5},
					B: Mod{F: Unary{Op: OpExp, F: Unary{Op: OpLog, F: ConstPlus{C: 2, F: x}}}, M: 0.75},
				},
			},
		},
	}
}

func TestGenFunc_Eval(t *testing.T) {
	assert.Equal(t, 7.0, Linear(1, 2).Eval(3))
	assert.Equal(t, -2.0, Neg{F: Var{}}.Eval(2))
	assert.Equal(t, 3.0, ConstMinus{C: 5, F: Var{}}.Eval(2))
	assert.Equal(t, 2.5, ConstOver{C: 5, F: Var{}}.Eval(2))
	assert.InDelta(t, math.Sin(4), Compose{F: Unary{Op: OpSin, F: Var{}}, G: Unary{Op: OpSquare, F: Var{}}}.Eval(2), 1e-12)
	assert.InDelta(t, 0.5, Mod{F: Var{}, M: 2}.Eval(4.5), 1e-12)
	assert.InDelta(t, 1.5, Mod{F: Var{}, M: 2}.Eval(-0.5), 1e-12)
	assert.Equal(t, 8.0, Power{F: Var{}, E: 3}.Eval(2))
	assert.True(t, math.IsNaN(Unary{Op: "Cosh", F: Var{}}.Eval(1)))
}

func TestGenFunc_RoundTrip(t *testing.T) {
	f := everyGenFunc()
	tokens, lits := EncodeGenFunc(f)

	back, err := DecodeGenFunc(ParseExpression(Expression(tokens)), lits)
	require.NoError(t, err)
	assert.Equal(t, f, back)
	for _, x := range []float64{0, 1, 2.5, 7} {
		assert.Equal(t, f.Eval(x), back.Eval(x))
	}
}

func TestTransFunction_RoundTrip(t *testing.T) {
	step := trf.RotateZ(math.Pi / 8).Mul(trf.Translate(0, 0, 10))
	f := XFProduct{
		A: PreMult{T: trf.Translate(1, 2, 3), A: XFPow{T: step, F: Linear(0.5, 1)}},
		B: PostMult{A: XFPow{T: trf.RotateX(0.2), F: Var{}}, T: trf.Translate(-1, 0, 0)},
	}

	tokens, lits := Encode(f)
	assert.Equal(t, "XF::Product", tokens[0])
	assert.Equal(t, 4*12+2, len(lits))

	back, err := Decode(tokens, lits)
	require.NoError(t, err)
	assert.Equal(t, f, back)

	for i, p := range Placements(back, 5) {
		assert.True(t, p.ApproxEqual(f.Eval(float64(i)), 1e-12), "placement %d", i)
	}
}

func TestXFPow_Eval(t *testing.T) {
	f := XFPow{T: trf.Translate(0, 0, 2), F: Var{}}
	ps := Placements(f, 3)
	assert.InDelta(t, 0, ps[0].D[2], 1e-12)
	assert.InDelta(t, 2, ps[1].D[2], 1e-12)
	assert.InDelta(t, 4, ps[2].D[2], 1e-12)
}

func TestDecode_Corrupt(t *testing.T) {
	tokens, lits := Encode(XFPow{T: trf.Identity(), F: Const{C: 1}})

	cases := map[string]struct {
		tokens []string
		lits   []float64
	}{
		"unknown token":     {[]string{"XF::Twist"}, nil},
		"literal underflow": {tokens, lits[:5]},
		"token underflow":   {tokens[:2], lits[:12]},
		"trailing tokens":   {append(append([]string{}, tokens...), "X"), lits},
		"unused literals":   {tokens, append(append([]float64{}, lits...), 9)},
		"missing REAL":      {[]string{"XF::Pow", "Transform", "Const", "X"}, lits[:12]},
	}
	for name, c := range cases {
		_, err := Decode(c.tokens, c.lits)
		if assert.Error(t, err, name) {
			assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), name)
		}
	}
}
