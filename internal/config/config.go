// Package config reads run configurations and parameter table files.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

const (
	DefaultModel       = "radiocarbon"
	DefaultCirculation = "column"
	DefaultIntegrator  = "backward-euler"
	DefaultDt          = "10 yr"
	DefaultDuration    = "5000 yr"
	DefaultTolerance   = 1e-6
	DefaultDataDir     = ".tracersim"
)

var seconds = units.Must("s")

// Config is a run configuration. Times are quantity expressions such as
// "10 yr"; bare numbers are seconds.
type Config struct {
	Model string `yaml:"model"`
	// Circulation is a built-in name or the path of a circulation file.
	Circulation string  `yaml:"circulation"`
	Integrator  string  `yaml:"integrator"`
	Dt          string  `yaml:"dt"`
	Duration    string  `yaml:"duration"`
	Tolerance   float64 `yaml:"tolerance"`
	Adaptive    bool    `yaml:"adaptive"`
	SaveEvery   int     `yaml:"save_every"`
	// ParamFile replaces the model's default parameter table.
	ParamFile string `yaml:"param_file,omitempty"`
	// Params overrides single values, e.g. {w: "200 m/d"}. Bare numbers are
	// in the parameter's display unit.
	Params  map[string]any `yaml:"params,omitempty"`
	DataDir string         `yaml:"data_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:       DefaultModel,
		Circulation: DefaultCirculation,
		Integrator:  DefaultIntegrator,
		Dt:          DefaultDt,
		Duration:    DefaultDuration,
		Tolerance:   DefaultTolerance,
		SaveEvery:   1,
		DataDir:     DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}

// SimConfig converts the transient settings to seconds.
func (c *Config) SimConfig() (dynamo.Config, error) {
	sc := dynamo.DefaultConfig()
	var err error
	if sc.Dt, err = units.ParseQuantityIn(c.Dt, seconds); err != nil {
		return sc, fmt.Errorf("config: dt: %w", err)
	}
	if sc.Duration, err = units.ParseQuantityIn(c.Duration, seconds); err != nil {
		return sc, fmt.Errorf("config: duration: %w", err)
	}
	if sc.Dt <= 0 || sc.Duration <= 0 {
		return sc, fmt.Errorf("config: dt and duration must be positive")
	}
	if c.Tolerance > 0 {
		sc.Tolerance = c.Tolerance
	}
	sc.Adaptive = c.Adaptive
	sc.SaveEvery = c.SaveEvery
	if sc.MaxDt < sc.Dt {
		sc.MaxDt = sc.Dt
	}
	return sc, nil
}

// Table returns def's parameter table, or the table in ParamFile, with the
// overrides of Params applied.
func (c *Config) Table(def func() (*params.Table, error)) (*params.Table, error) {
	var (
		t   *params.Table
		err error
	)
	if c.ParamFile != "" {
		t, err = LoadTable(c.ParamFile)
	} else {
		t, err = def()
	}
	if err != nil {
		return nil, err
	}
	if err := ApplyOverrides(t, c.Params); err != nil {
		return nil, err
	}
	return t, nil
}

// ApplyOverrides sets each named value in t. Values are quantity
// expressions or numbers; bare numbers are in the display unit.
func ApplyOverrides(t *params.Table, overrides map[string]any) error {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := cast.ToStringE(overrides[name])
		if err != nil {
			return fmt.Errorf("config: parameter %s: %w", name, err)
		}
		q, err := units.ParseQuantity(s)
		if err != nil {
			return fmt.Errorf("config: parameter %s: %w", name, err)
		}
		if err := t.SetValue(name, q); err != nil {
			return err
		}
	}
	return nil
}
