package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/tracersim/internal/dynamo"
)

var volume = []float64{1, 2, 3}

func TestInventory(t *testing.T) {
	m := NewInventory("inv", 1, volume)
	// two tracers on three boxes
	x := dynamo.State{9, 9, 9, 1, 2, 3}
	m.Observe(x, 0)
	if got, want := m.Value(), 1*1.0+2*2.0+3*3.0; got != want {
		t.Errorf("inventory = %g, want %g", got, want)
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero inventory after reset")
	}
}

func TestMeanConcentration(t *testing.T) {
	m := NewMeanConcentration("mean", 0, volume)
	m.Observe(dynamo.State{2, 2, 2}, 0)
	if got := m.Value(); math.Abs(got-2) > 1e-15 {
		t.Errorf("mean = %g, want 2", got)
	}
}

func TestInventoryDrift(t *testing.T) {
	m := NewInventoryDrift("drift", 0, volume)
	m.Observe(dynamo.State{1, 1, 1}, 0)
	m.Observe(dynamo.State{1, 1, 1.5}, 1)
	m.Observe(dynamo.State{1, 1, 1.1}, 2)
	if got, want := m.Value(), 1.5/6; math.Abs(got-want) > 1e-15 {
		t.Errorf("drift = %g, want %g", got, want)
	}
}

func TestObservations(t *testing.T) {
	obs := Observations{Tracer: 0, Values: []float64{1, math.NaN(), 3}, Sigma: 0.5}
	x := dynamo.State{2, 100, 3}
	// residuals (2-1)/0.5 = 2 with weight 1/4, and 0 with weight 3/4
	if got := obs.Cost(x, volume); math.Abs(got-0.5) > 1e-15 {
		t.Errorf("cost = %g, want 0.5", got)
	}
	if got := obs.RMS(x, volume); math.Abs(got-0.5) > 1e-15 {
		t.Errorf("rms = %g, want 0.5", got)
	}

	tests := []struct {
		name string
		obs  Observations
		ok   bool
	}{
		{"valid", obs, true},
		{"bad tracer", Observations{Tracer: 2, Values: obs.Values}, false},
		{"short", Observations{Values: []float64{1}}, false},
		{"empty", Observations{Values: []float64{math.NaN(), math.NaN(), math.NaN()}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate(3, 1)
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

type decay struct{}

func (decay) Derive(x dynamo.State, _ float64) dynamo.State { return x.Scale(-2) }
func (decay) StateDim() int                                 { return 2 }

func TestResidual(t *testing.T) {
	m := NewResidual(decay{})
	m.Observe(dynamo.State{1, -3}, 0)
	if m.Value() != 6 {
		t.Errorf("residual = %g, want 6", m.Value())
	}
}

func TestPositivity(t *testing.T) {
	m := NewPositivity(1e-9)
	m.Observe(dynamo.State{1, 0}, 0)
	m.Observe(dynamo.State{1, -1}, 1)
	if m.Value() != 0.5 {
		t.Errorf("positivity = %g, want 0.5", m.Value())
	}
	if m.Min() != -1 {
		t.Errorf("Min = %g, want -1", m.Min())
	}
	m.Reset()
	if m.Value() != 1 || !math.IsInf(m.Min(), 1) {
		t.Error("expected 1 and +Inf after reset")
	}
}

func TestObservationsGradient(t *testing.T) {
	obs := Observations{Tracer: 1, Values: []float64{1, math.NaN(), 3}, Sigma: 0.5}
	x := dynamo.State{0, 0, 0, 2, 7, 2}
	g := obs.Gradient(x, volume)
	const h = 1e-6
	for i := range x {
		xp, xm := x.Clone(), x.Clone()
		xp[i] += h
		xm[i] -= h
		want := (obs.Cost(xp, volume) - obs.Cost(xm, volume)) / (2 * h)
		if math.Abs(g[i]-want) > 1e-6 {
			t.Errorf("gradient[%d] = %g, want %g", i, g[i], want)
		}
	}
}
