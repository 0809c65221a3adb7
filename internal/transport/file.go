package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/tracersim/internal/units"
)

// File loads a circulation described in YAML:
//
//	name: two-layer
//	shape: [2, 1, 1]
//	boxes:
//	  - {k: 0, depth: 50 m, thickness: 100 m, area: 1e12 m^2}
//	  - {k: 1, depth: 2050 m, thickness: 3900 m, area: 1e12 m^2}
//	flows:
//	  - {from: 1, to: 0, rate: 2 Sv}
//	  - {from: 0, to: 1, rate: 2 Sv}
//	mixing:
//	  - {a: 0, b: 1, rate: 10 Sv}
//
// Quantities may carry any compatible unit; bare numbers are SI.
type File struct {
	Path string
	Log  logrus.FieldLogger
}

type fileBox struct {
	K         int `yaml:"k"`
	J         int `yaml:"j"`
	I         int `yaml:"i"`
	Depth     any `yaml:"depth"`
	Thickness any `yaml:"thickness"`
	Area      any `yaml:"area"`
}

type fileFlow struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
	Rate any `yaml:"rate"`
}

type fileMixing struct {
	A    int `yaml:"a"`
	B    int `yaml:"b"`
	Rate any `yaml:"rate"`
}

type fileCirculation struct {
	Name   string       `yaml:"name"`
	Shape  []int        `yaml:"shape"`
	Boxes  []fileBox    `yaml:"boxes"`
	Flows  []fileFlow   `yaml:"flows"`
	Mixing []fileMixing `yaml:"mixing"`
}

var (
	meters     = units.Must("m")
	squareM    = units.Must("m^2")
	volumeFlux = units.Must("m^3/s")
)

func (f File) Load(ctx context.Context) (*Circulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("transport: read circulation: %w", err)
	}
	var fc fileCirculation
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("transport: parse %s: %w", f.Path, err)
	}
	if len(fc.Shape) != 3 {
		return nil, fmt.Errorf("%w: shape must be [nz, ny, nx], got %v", ErrBadGeometry, fc.Shape)
	}
	if fc.Name == "" {
		fc.Name = strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
	}

	boxes := make([]Box, len(fc.Boxes))
	for i, b := range fc.Boxes {
		box := Box{K: b.K, J: b.J, I: b.I}
		if box.Depth, err = quantity(b.Depth, meters); err != nil {
			return nil, fmt.Errorf("transport: box %d depth: %w", i, err)
		}
		if box.Thickness, err = quantity(b.Thickness, meters); err != nil {
			return nil, fmt.Errorf("transport: box %d thickness: %w", i, err)
		}
		if box.Area, err = quantity(b.Area, squareM); err != nil {
			return nil, fmt.Errorf("transport: box %d area: %w", i, err)
		}
		boxes[i] = box
	}
	g, err := NewGrid(fc.Shape[0], fc.Shape[1], fc.Shape[2], boxes)
	if err != nil {
		return nil, err
	}

	n := g.NumBoxes()
	check := func(i int) error {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: box index %d out of range [0, %d)", ErrBadGeometry, i, n)
		}
		return nil
	}

	bld := NewBuilder(n)
	for k, fl := range fc.Flows {
		if err := errors.Join(check(fl.From), check(fl.To)); err != nil {
			return nil, fmt.Errorf("transport: flow %d: %w", k, err)
		}
		q, err := quantity(fl.Rate, volumeFlux)
		if err != nil {
			return nil, fmt.Errorf("transport: flow %d rate: %w", k, err)
		}
		bld.Flux(g, fl.From, fl.To, q)
	}
	for k, m := range fc.Mixing {
		if err := errors.Join(check(m.A), check(m.B)); err != nil {
			return nil, fmt.Errorf("transport: mixing %d: %w", k, err)
		}
		q, err := quantity(m.Rate, volumeFlux)
		if err != nil {
			return nil, fmt.Errorf("transport: mixing %d rate: %w", k, err)
		}
		bld.Mix(g, m.A, m.B, q)
	}

	c := &Circulation{Name: fc.Name, Grid: g, T: bld.Build()}
	log.WithFields(logrus.Fields{
		"circulation": c.Name,
		"boxes":       n,
		"nnz":         c.T.NNZ(),
	}).Debug("loaded circulation file")
	return c, nil
}

// quantity converts a YAML scalar to SI in unit want. Numbers are taken as
// already in want; strings may carry a unit.
func quantity(v any, want units.Unit) (float64, error) {
	if v == nil {
		return 0, errors.New("missing value")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0, err
	}
	x, err := units.ParseQuantityIn(s, want)
	if err != nil {
		return 0, err
	}
	return units.FromDisplay(x, want), nil
}
