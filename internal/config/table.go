package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

// tableFile is the on-disk form of a parameter table:
//
//	[[params]]
//	name = "τ"
//	value = "5730/log(2) yr"
//
//	[[params]]
//	name = "w"
//	value = "100 m/d"
//	optimizable = true
//
// The same layout is accepted in YAML. Means and variances are in SI units.
type tableFile struct {
	Params []tableRow `yaml:"params" toml:"params"`
}

type tableRow struct {
	Name        string   `yaml:"name" toml:"name"`
	Value       any      `yaml:"value" toml:"value"`
	Optimizable bool     `yaml:"optimizable,omitempty" toml:"optimizable,omitempty"`
	Mean        *float64 `yaml:"mean,omitempty" toml:"mean,omitempty"`
	Variance    *float64 `yaml:"variance,omitempty" toml:"variance,omitempty"`
	Description string   `yaml:"description,omitempty" toml:"description,omitempty"`
	LaTeX       string   `yaml:"latex,omitempty" toml:"latex,omitempty"`
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadTable reads a parameter table from a YAML or TOML file, chosen by
// extension.
func LoadTable(path string) (*params.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f tableFile
	if isTOML(path) {
		err = toml.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	t, err := f.table()
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	return t, nil
}

func (f tableFile) table() (*params.Table, error) {
	t := params.NewTable()
	for _, r := range f.Params {
		s, err := cast.ToStringE(r.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", r.Name, err)
		}
		q, err := units.ParseQuantity(s)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", r.Name, err)
		}
		opts := []params.AddOption{params.Optimizable(r.Optimizable)}
		if r.Mean != nil {
			opts = append(opts, params.WithMean(*r.Mean))
		}
		if r.Variance != nil {
			opts = append(opts, params.WithVariance(*r.Variance))
		}
		if r.Description != "" {
			opts = append(opts, params.WithDescription(r.Description))
		}
		if r.LaTeX != "" {
			opts = append(opts, params.WithLaTeX(r.LaTeX))
		}
		if err := t.Add(r.Name, q, opts...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SaveTable writes t to path with values in their display units.
func SaveTable(path string, t *params.Table) error {
	var f tableFile
	for _, r := range t.Rows() {
		row := tableRow{
			Name:        r.Name,
			Value:       units.Quantity{Value: units.ToDisplay(r.Value, r.DisplayUnit), Unit: r.DisplayUnit}.String(),
			Optimizable: r.Optimizable,
			Description: r.Description,
			LaTeX:       r.LaTeX,
		}
		if r.Optimizable {
			mean, variance := r.ObsMean, r.ObsVariance
			row.Mean, row.Variance = &mean, &variance
		}
		f.Params = append(f.Params, row)
	}

	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return err
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
