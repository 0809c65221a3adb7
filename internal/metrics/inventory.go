package metrics

import (
	"math"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// Inventory is the volume-integrated amount of one tracer at the last
// observed state.
type Inventory struct {
	name    string
	tracer  int
	volume  []float64
	current float64
	samples int
}

// NewInventory watches tracer k (0-based) over boxes of the given volumes.
func NewInventory(name string, k int, volume []float64) *Inventory {
	return &Inventory{name: name, tracer: k, volume: volume}
}

func (m *Inventory) Name() string { return m.name }

func (m *Inventory) Observe(x dynamo.State, t float64) {
	m.current = integrate(x, m.tracer, m.volume)
	m.samples++
}

func (m *Inventory) Value() float64 { return m.current }

func (m *Inventory) Reset() {
	m.current = 0
	m.samples = 0
}

// InventoryDrift is the largest relative change of a tracer inventory from
// its first observed value. Tracers without sources should keep it near
// zero; it flags integrators that leak mass.
type InventoryDrift struct {
	name     string
	tracer   int
	volume   []float64
	initial  float64
	maxDrift float64
	samples  int
}

func NewInventoryDrift(name string, k int, volume []float64) *InventoryDrift {
	return &InventoryDrift{name: name, tracer: k, volume: volume}
}

func (m *InventoryDrift) Name() string { return m.name }

func (m *InventoryDrift) Observe(x dynamo.State, t float64) {
	inv := integrate(x, m.tracer, m.volume)
	if m.samples == 0 {
		m.initial = inv
	}
	m.samples++
	if m.initial != 0 {
		m.maxDrift = math.Max(m.maxDrift, math.Abs(inv-m.initial)/math.Abs(m.initial))
	}
}

func (m *InventoryDrift) Value() float64 { return m.maxDrift }

func (m *InventoryDrift) Reset() {
	m.initial = 0
	m.maxDrift = 0
	m.samples = 0
}

// MeanConcentration is the volume-weighted mean of one tracer.
type MeanConcentration struct {
	inv   Inventory
	total float64
}

func NewMeanConcentration(name string, k int, volume []float64) *MeanConcentration {
	var total float64
	for _, v := range volume {
		total += v
	}
	return &MeanConcentration{inv: Inventory{name: name, tracer: k, volume: volume}, total: total}
}

func (m *MeanConcentration) Name() string { return m.inv.name }

func (m *MeanConcentration) Observe(x dynamo.State, t float64) { m.inv.Observe(x, t) }

func (m *MeanConcentration) Value() float64 {
	if m.total == 0 {
		return 0
	}
	return m.inv.current / m.total
}

func (m *MeanConcentration) Reset() { m.inv.Reset() }

func integrate(x dynamo.State, k int, volume []float64) float64 {
	nb := len(volume)
	var s float64
	for b, v := range volume {
		s += v * x[k*nb+b]
	}
	return s
}
