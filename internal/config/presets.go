package config

import "sort"

var Presets = map[string]map[string]*Config{
	"radiocarbon": {
		"column": {
			Model: "radiocarbon", Circulation: "column", Integrator: "backward-euler",
			Dt: "10 yr", Duration: "5000 yr", SaveEvery: 10,
		},
		"boxes": {
			Model: "radiocarbon", Circulation: "boxes", Integrator: "crank-nicolson",
			Dt: "5 yr", Duration: "3000 yr", SaveEvery: 20,
		},
		"bomb-spike": {
			Model: "radiocarbon", Circulation: "boxes", Integrator: "rk45",
			Dt: "1 yr", Duration: "200 yr", Adaptive: true, Tolerance: 1e-8,
			Params: map[string]any{"R_atm": 1.2},
		},
	},
	"age": {
		"column": {
			Model: "age", Circulation: "column", Integrator: "backward-euler",
			Dt: "10 yr", Duration: "3000 yr", SaveEvery: 10,
		},
		"boxes": {
			Model: "age", Circulation: "boxes", Integrator: "backward-euler",
			Dt: "10 yr", Duration: "3000 yr", SaveEvery: 10,
		},
	},
	"phosphate": {
		"boxes": {
			Model: "phosphate", Circulation: "boxes", Integrator: "backward-euler",
			Dt: "1 yr", Duration: "2000 yr", SaveEvery: 20,
		},
		"fast-sinking": {
			Model: "phosphate", Circulation: "column", Integrator: "backward-euler",
			Dt: "1 yr", Duration: "2000 yr", SaveEvery: 20,
			Params: map[string]any{"w": "200 m/d"},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	out := cfg.Clone()
	if out.Tolerance == 0 {
		out.Tolerance = DefaultTolerance
	}
	if out.DataDir == "" {
		out.DataDir = DefaultDataDir
	}
	return out
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
