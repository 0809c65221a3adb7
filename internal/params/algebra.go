package params

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/num/hyperdual"
)

// Kind names the element representation of a parameters instance.
type Kind int

const (
	KindFloat Kind = iota
	KindDual
	KindHyperDual
	KindComplex
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float64"
	case KindDual:
		return "dual"
	case KindHyperDual:
		return "hyperdual"
	case KindComplex:
		return "complex128"
	default:
		return "unknown"
	}
}

// Algebra is the arithmetic a field element type must provide. Any numeric
// representation, including ones carrying derivative parts, can back a
// parameters instance through an Algebra.
type Algebra[T any] interface {
	Kind() Kind
	Zero() T
	FromFloat(v float64) T
	// Real returns the value part, dropping any perturbation.
	Real(v T) float64
	Add(a, b T) T
	Sub(a, b T) T
	Mul(a, b T) T
	Div(a, b T) T
	Scale(f float64, v T) T
	Exp(v T) T
	Log(v T) T
	PowReal(v T, p float64) T
	// Components returns the value part followed by every perturbation part.
	Components(v T) []float64
}

// Float64 is the plain float64 algebra.
type Float64 struct{}

func (Float64) Kind() Kind                     { return KindFloat }
func (Float64) Zero() float64                  { return 0 }
func (Float64) FromFloat(v float64) float64    { return v }
func (Float64) Real(v float64) float64         { return v }
func (Float64) Add(a, b float64) float64       { return a + b }
func (Float64) Sub(a, b float64) float64       { return a - b }
func (Float64) Mul(a, b float64) float64       { return a * b }
func (Float64) Div(a, b float64) float64       { return a / b }
func (Float64) Scale(f, v float64) float64     { return f * v }
func (Float64) Exp(v float64) float64          { return math.Exp(v) }
func (Float64) Log(v float64) float64          { return math.Log(v) }
func (Float64) PowReal(v, p float64) float64   { return math.Pow(v, p) }
func (Float64) Components(v float64) []float64 { return []float64{v} }

// Dual is forward-mode first derivatives using gonum dual numbers.
type Dual struct{}

func (Dual) Kind() Kind                                 { return KindDual }
func (Dual) Zero() dual.Number                          { return dual.Number{} }
func (Dual) FromFloat(v float64) dual.Number            { return dual.Number{Real: v} }
func (Dual) Real(v dual.Number) float64                 { return v.Real }
func (Dual) Add(a, b dual.Number) dual.Number           { return dual.Add(a, b) }
func (Dual) Sub(a, b dual.Number) dual.Number           { return dual.Sub(a, b) }
func (Dual) Mul(a, b dual.Number) dual.Number           { return dual.Mul(a, b) }
func (Dual) Div(a, b dual.Number) dual.Number           { return dual.Mul(a, dual.Inv(b)) }
func (Dual) Scale(f float64, v dual.Number) dual.Number { return dual.Scale(f, v) }
func (Dual) Exp(v dual.Number) dual.Number              { return dual.Exp(v) }
func (Dual) Log(v dual.Number) dual.Number              { return dual.Log(v) }
func (Dual) PowReal(v dual.Number, p float64) dual.Number {
	return dual.PowReal(v, p)
}
func (Dual) Components(v dual.Number) []float64 { return []float64{v.Real, v.Emag} }

// Seed returns v carrying a unit perturbation.
func (Dual) Seed(v float64) dual.Number { return dual.Number{Real: v, Emag: 1} }

// HyperDual carries first and mixed second derivatives using gonum
// hyperdual numbers.
type HyperDual struct{}

func (HyperDual) Kind() Kind             { return KindHyperDual }
func (HyperDual) Zero() hyperdual.Number { return hyperdual.Number{} }
func (HyperDual) FromFloat(v float64) hyperdual.Number {
	return hyperdual.Number{Real: v}
}
func (HyperDual) Real(v hyperdual.Number) float64 { return v.Real }
func (HyperDual) Add(a, b hyperdual.Number) hyperdual.Number {
	return hyperdual.Add(a, b)
}
func (HyperDual) Sub(a, b hyperdual.Number) hyperdual.Number {
	return hyperdual.Sub(a, b)
}
func (HyperDual) Mul(a, b hyperdual.Number) hyperdual.Number {
	return hyperdual.Mul(a, b)
}
func (HyperDual) Div(a, b hyperdual.Number) hyperdual.Number {
	return hyperdual.Mul(a, hyperdual.Inv(b))
}
func (HyperDual) Scale(f float64, v hyperdual.Number) hyperdual.Number {
	return hyperdual.Scale(f, v)
}
func (HyperDual) Exp(v hyperdual.Number) hyperdual.Number { return hyperdual.Exp(v) }
func (HyperDual) Log(v hyperdual.Number) hyperdual.Number { return hyperdual.Log(v) }
func (HyperDual) PowReal(v hyperdual.Number, p float64) hyperdual.Number {
	return hyperdual.PowReal(v, p)
}
func (HyperDual) Components(v hyperdual.Number) []float64 {
	return []float64{v.Real, v.E1mag, v.E2mag, v.E1E2mag}
}

// Complex supports complex-step differentiation: f(x+ih) ≈ f(x) + ih f'(x).
type Complex struct{}

func (Complex) Kind() Kind                     { return KindComplex }
func (Complex) Zero() complex128               { return 0 }
func (Complex) FromFloat(v float64) complex128 { return complex(v, 0) }
func (Complex) Real(v complex128) float64      { return real(v) }
func (Complex) Add(a, b complex128) complex128 { return a + b }
func (Complex) Sub(a, b complex128) complex128 { return a - b }
func (Complex) Mul(a, b complex128) complex128 { return a * b }
func (Complex) Div(a, b complex128) complex128 { return a / b }
func (Complex) Scale(f float64, v complex128) complex128 {
	return complex(f, 0) * v
}
func (Complex) Exp(v complex128) complex128 { return cmplx.Exp(v) }
func (Complex) Log(v complex128) complex128 { return cmplx.Log(v) }
func (Complex) PowReal(v complex128, p float64) complex128 {
	return cmplx.Pow(v, complex(p, 0))
}
func (Complex) Components(v complex128) []float64 { return []float64{real(v), imag(v)} }
