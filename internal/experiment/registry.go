package experiment

import (
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/integrators"
	"github.com/san-kum/tracersim/internal/metrics"
	"github.com/san-kum/tracersim/internal/models"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/transport"
)

// Registry resolves the names used in run configurations. Parameters types
// are defined in one params.Registry so that redefining a model's table is
// reported.
type Registry struct {
	types *params.Registry
	log   logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{types: params.NewRegistry(log), log: log}
}

// Types returns the parameters type registry.
func (r *Registry) Types() *params.Registry { return r.types }

func (r *Registry) GetModel(name string) (models.Definition, error) {
	return models.Lookup(name)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	return integrators.New(name)
}

// GetCirculation resolves a built-in circulation name or a circulation
// file path.
func (r *Registry) GetCirculation(name string) (transport.Loader, error) {
	if l, err := transport.Builtin(name); err == nil {
		return l, nil
	}
	if _, err := os.Stat(name); err == nil {
		return transport.File{Path: name, Log: r.log}, nil
	}
	return nil, fmt.Errorf("unknown circulation: %s (available: %v or a file path)", name, transport.Builtins())
}

func (r *Registry) ListModels() []string       { return models.Names() }
func (r *Registry) ListIntegrators() []string  { return integrators.Names() }
func (r *Registry) ListCirculations() []string { return transport.Builtins() }

// DefaultMetrics tracks the inventory and mean of every tracer plus the
// positivity of the state.
func (r *Registry) DefaultMetrics(f *dynamo.StateFunction) []dynamo.Metric {
	volume := f.Circulation().Grid.Volume
	tracers := f.Model().TracerNames()
	out := make([]dynamo.Metric, 0, 2*len(tracers)+1)
	for k, name := range tracers {
		out = append(out,
			metrics.NewInventory("inventory_"+name, k, volume),
			metrics.NewMeanConcentration("mean_"+name, k, volume),
		)
	}
	out = append(out, metrics.NewPositivity(0))
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
