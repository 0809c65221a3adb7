package dynamo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/transport"
	"github.com/san-kum/tracersim/internal/units"
)

// reactionSource converts A into B at rate k·A², decays B at rate r and
// restores A to 1 at the surface.
func reactionSource[T any](out, x []T, p *params.Params[T], c Cell) {
	alg := p.Algebra()
	k, r := p.MustField("k"), p.MustField("r")
	reaction := alg.Mul(k, alg.Mul(x[0], x[0]))
	out[0] = alg.Sub(out[0], reaction)
	out[1] = alg.Sub(alg.Add(out[1], reaction), alg.Mul(r, x[1]))
	if c.Surface {
		out[0] = alg.Add(out[0], alg.Mul(r, alg.Sub(alg.FromFloat(1), x[0])))
	}
}

func sinkingB(c *transport.Circulation, p *params.Params[float64]) *transport.Operator {
	return c.T.Add(transport.Sinking(c.Grid, p.MustField("w")))
}

func reactionModel(t *testing.T) Model {
	t.Helper()
	tbl := params.NewTable()
	add := func(name string, q units.Quantity, opts ...params.AddOption) {
		if err := tbl.Add(name, q, opts...); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	add("k", units.Q(0.5, "1/yr"), params.Optimizable(true))
	add("r", units.Q(0.1, "1/yr"))
	add("w", units.Q(100, "m/d"), params.Optimizable(true))
	s, err := params.Generate(tbl, "ReactionParameters")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return Model{
		Name: "reaction",
		Tracers: []Tracer{
			{Name: "A", Unit: "mol/m^3"},
			{Name: "B", Unit: "mol/m^3", Transport: sinkingB},
		},
		Schema: s,
		Float:  reactionSource[float64],
		Dual:   reactionSource[dual.Number],
	}
}

func column(t *testing.T) *transport.Circulation {
	t.Helper()
	c, err := transport.DefaultColumn().Load(context.Background())
	if err != nil {
		t.Fatalf("load column: %v", err)
	}
	return c
}

func testState(n int) State {
	x := make(State, n)
	for i := range x {
		x[i] = 0.5 + 0.4*math.Sin(float64(i))
	}
	return x
}

func maxAbs(m mat.Matrix) float64 {
	r, c := m.Dims()
	var out float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = math.Max(out, math.Abs(m.At(i, j)))
		}
	}
	return out
}

func assertClose(t *testing.T, name string, got, want mat.Matrix, rel float64) {
	t.Helper()
	tol := rel * maxAbs(want)
	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d := math.Abs(got.At(i, j) - want.At(i, j)); d > tol {
				t.Fatalf("%s[%d,%d] = %g, want %g (tol %g)", name, i, j, got.At(i, j), want.At(i, j), tol)
			}
		}
	}
}

func TestStateFunctionMatchesManual(t *testing.T) {
	m := reactionModel(t)
	c := column(t)
	f, err := Assemble(m, c)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if f.Dim() != 2*c.Grid.NumBoxes() {
		t.Fatalf("Dim = %d", f.Dim())
	}

	p := params.Default(m.Schema)
	x := testState(f.Dim())
	got := f.F(x, p)

	nb := f.Boxes()
	fields := x.Split(2)
	ta := c.T.MulVec(fields[0])
	tb := sinkingB(c, p).MulVec(fields[1])
	k, r := p.MustField("k"), p.MustField("r")
	surface := c.Grid.SurfaceMask()
	for b := 0; b < nb; b++ {
		a, bb := fields[0][b], fields[1][b]
		wantA := -ta[b] - k*a*a
		if surface[b] {
			wantA += r * (1 - a)
		}
		wantB := -tb[b] + k*a*a - r*bb
		tol := 1e-12 * (math.Abs(ta[b]) + math.Abs(tb[b]) + k*a*a + r)
		if d := math.Abs(got[b] - wantA); d > tol {
			t.Errorf("A[%d] = %g, want %g", b, got[b], wantA)
		}
		if d := math.Abs(got[nb+b] - wantB); d > tol {
			t.Errorf("B[%d] = %g, want %g", b, got[nb+b], wantB)
		}
	}
}

func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	m := reactionModel(t)
	f, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	p := params.Default(m.Schema)
	x := testState(f.Dim())

	n := f.Dim()
	want := mat.NewDense(n, n, nil)
	fdJacobian(want, func(y, xs []float64) {
		copy(y, f.F(xs, p))
	}, x)

	assertClose(t, "J", f.J(x, p), want, 1e-6)
}

func TestJacobianWithoutDualSource(t *testing.T) {
	m := reactionModel(t)
	ad, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	m.Dual = nil
	num, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	p := params.Default(m.Schema)
	x := testState(ad.Dim())

	assertClose(t, "J", num.J(x, p), ad.J(x, p), 1e-6)
	assertClose(t, "∂F/∂p", num.ParamJacobian(x, p), ad.ParamJacobian(x, p), 1e-6)
}

func TestParamJacobianMatchesFiniteDifferences(t *testing.T) {
	m := reactionModel(t)
	f, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	p := params.Default(m.Schema)
	x := testState(f.Dim())

	got := f.ParamJacobian(x, p)
	if r, c := got.Dims(); r != f.Dim() || c != p.Len() {
		t.Fatalf("ParamJacobian is %dx%d, want %dx%d", r, c, f.Dim(), p.Len())
	}

	want := mat.NewDense(f.Dim(), p.Len(), nil)
	fdJacobian(want, func(y, v []float64) {
		q, err := p.Reconstruct(v)
		if err != nil {
			t.Fatal(err)
		}
		copy(y, f.F(x, q))
	}, p.OptVec())

	assertClose(t, "∂F/∂p", got, want, 1e-6)

	// r is fixed, so no column may respond to it.
	for j, name := range m.Schema.OptimizableNames() {
		if name == "r" {
			t.Fatalf("fixed parameter r in column %d", j)
		}
	}
}

func TestParamJacobianNoOptimizable(t *testing.T) {
	m := reactionModel(t)
	tbl := m.Schema.Table()
	for _, name := range tbl.OptimizableNames() {
		if err := tbl.SetOptimizable(name, false); err != nil {
			t.Fatal(err)
		}
	}
	s, err := params.Generate(tbl, "Fixed")
	if err != nil {
		t.Fatal(err)
	}
	m.Schema = s
	f, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.ParamJacobian(testState(f.Dim()), params.Default(s)); got != nil {
		t.Errorf("ParamJacobian = %v, want nil", got)
	}
}

func TestTransportConservesInventory(t *testing.T) {
	m := reactionModel(t)
	m.Float = func(out, x []float64, p *params.Params[float64], c Cell) {}
	m.Dual = nil
	for _, name := range transport.Builtins() {
		t.Run(name, func(t *testing.T) {
			loader, err := transport.Builtin(name)
			if err != nil {
				t.Fatal(err)
			}
			c, err := loader.Load(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			f, err := Assemble(m, c)
			if err != nil {
				t.Fatal(err)
			}
			x := testState(f.Dim())
			dx := f.F(x, params.Default(m.Schema))
			for k, field := range dx.Split(2) {
				var total, scale float64
				for b, v := range field {
					total += v * c.Grid.Volume[b]
					scale += math.Abs(v * c.Grid.Volume[b])
				}
				if math.Abs(total) > 1e-10*scale {
					t.Errorf("tracer %d: inventory changes at %g (scale %g)", k, total, scale)
				}
			}
		})
	}
}

func TestBoundSystem(t *testing.T) {
	m := reactionModel(t)
	f, err := Assemble(m, column(t))
	if err != nil {
		t.Fatal(err)
	}
	p := params.Default(m.Schema)
	x := testState(f.Dim())

	var sys JacobianSystem = f.At(p)
	if sys.StateDim() != f.Dim() {
		t.Fatalf("StateDim = %d, want %d", sys.StateDim(), f.Dim())
	}
	want := f.F(x, p)
	got := sys.Derive(x, 0)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Derive[%d] = %g, want %g", i, got[i], want[i])
		}
	}
	assertClose(t, "J", sys.Jacobian(x, 0), f.J(x, p), 1e-12)
}

func TestAssembleErrors(t *testing.T) {
	m := reactionModel(t)
	c := column(t)

	noTracers := m
	noTracers.Tracers = nil
	if _, err := Assemble(noTracers, c); !errors.Is(err, ErrNoTracers) {
		t.Errorf("no tracers: err = %v, want ErrNoTracers", err)
	}
	if _, err := Assemble(m, nil); err == nil {
		t.Error("nil circulation: expected error")
	}
	noSchema := m
	noSchema.Schema = nil
	if _, err := Assemble(noSchema, c); err == nil {
		t.Error("nil schema: expected error")
	}

	f, err := Assemble(m, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Check(make(State, 3), nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Check: err = %v, want ErrDimensionMismatch", err)
	}
	other, err := params.Generate(m.Schema.Table(), "Other")
	if err != nil {
		t.Fatal(err)
	}
	var mismatch *params.SchemaMismatchError
	if err := f.Check(make(State, f.Dim()), params.Default(other)); !errors.As(err, &mismatch) {
		t.Errorf("Check: err = %v, want SchemaMismatchError", err)
	}
}

func TestSplitJoin(t *testing.T) {
	x := State{1, 2, 3, 4, 5, 6}
	fields := x.Split(3)
	if len(fields) != 3 || fields[1][0] != 3 || fields[2][1] != 6 {
		t.Fatalf("Split = %v", fields)
	}
	fields[0][0] = 10
	if x[0] != 10 {
		t.Error("Split should alias the state")
	}
	y := Join(fields...)
	for i := range x {
		if y[i] != x[i] {
			t.Fatalf("Join = %v, want %v", y, x)
		}
	}
}

func TestParallelForCoversRange(t *testing.T) {
	tests := []struct{ n, chunk int }{{0, 4}, {1, 4}, {10, 3}, {1000, 7}, {1025, 256}}
	for _, tt := range tests {
		hits := make([]int32, tt.n)
		ParallelFor(tt.n, tt.chunk, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d chunk=%d: index %d visited %d times", tt.n, tt.chunk, i, h)
			}
		}
	}
}
