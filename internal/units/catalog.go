package units

import (
	"sort"

	"gonum.org/v1/gonum/unit"
)

type entry struct {
	scale      float64
	dims       unit.Dimensions
	prefixable bool
}

const (
	secondsPerDay  = 86400.0
	secondsPerYear = 365.25 * secondsPerDay
)

var catalog = map[string]entry{
	// SI base units
	"m":   {1, unit.Dimensions{unit.LengthDim: 1}, true},
	"g":   {1e-3, unit.Dimensions{unit.MassDim: 1}, true},
	"s":   {1, unit.Dimensions{unit.TimeDim: 1}, true},
	"K":   {1, unit.Dimensions{unit.TemperatureDim: 1}, true},
	"mol": {1, unit.Dimensions{unit.MoleDim: 1}, true},
	"A":   {1, unit.Dimensions{unit.CurrentDim: 1}, true},
	"cd":  {1, unit.Dimensions{unit.LuminousIntensityDim: 1}, true},
	"rad": {1, unit.Dimensions{unit.AngleDim: 1}, true},

	// time
	"min":   {60, unit.Dimensions{unit.TimeDim: 1}, false},
	"h":     {3600, unit.Dimensions{unit.TimeDim: 1}, false},
	"hr":    {3600, unit.Dimensions{unit.TimeDim: 1}, false},
	"d":     {secondsPerDay, unit.Dimensions{unit.TimeDim: 1}, false},
	"day":   {secondsPerDay, unit.Dimensions{unit.TimeDim: 1}, false},
	"days":  {secondsPerDay, unit.Dimensions{unit.TimeDim: 1}, false},
	"wk":    {7 * secondsPerDay, unit.Dimensions{unit.TimeDim: 1}, false},
	"week":  {7 * secondsPerDay, unit.Dimensions{unit.TimeDim: 1}, false},
	"yr":    {secondsPerYear, unit.Dimensions{unit.TimeDim: 1}, true},
	"year":  {secondsPerYear, unit.Dimensions{unit.TimeDim: 1}, false},
	"years": {secondsPerYear, unit.Dimensions{unit.TimeDim: 1}, false},
	"a":     {secondsPerYear, unit.Dimensions{unit.TimeDim: 1}, true},

	// derived and customary
	"L":   {1e-3, unit.Dimensions{unit.LengthDim: 3}, true},
	"l":   {1e-3, unit.Dimensions{unit.LengthDim: 3}, true},
	"t":   {1e3, unit.Dimensions{unit.MassDim: 1}, true},
	"M":   {1e3, unit.Dimensions{unit.MoleDim: 1, unit.LengthDim: -3}, true},
	"Hz":  {1, unit.Dimensions{unit.TimeDim: -1}, true},
	"N":   {1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 1, unit.TimeDim: -2}, true},
	"Pa":  {1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}, true},
	"bar": {1e5, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}, true},
	"atm": {101325, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2}, false},
	"J":   {1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2}, true},
	"W":   {1, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3}, true},
	"Sv":  {1e6, unit.Dimensions{unit.LengthDim: 3, unit.TimeDim: -1}, false},

	// dimensionless
	"unitless": {1, unit.Dimensions{}, false},
	"NoUnits":  {1, unit.Dimensions{}, false},
	"percent":  {1e-2, unit.Dimensions{}, false},
	"%":        {1e-2, unit.Dimensions{}, false},
	"permil":   {1e-3, unit.Dimensions{}, false},
	"‰":        {1e-3, unit.Dimensions{}, false},
	"ppm":      {1e-6, unit.Dimensions{}, false},
}

var prefixes = map[string]float64{
	"Y": 1e24, "Z": 1e21, "E": 1e18, "P": 1e15, "T": 1e12, "G": 1e9,
	"M": 1e6, "k": 1e3, "h": 1e2, "da": 1e1, "d": 1e-1, "c": 1e-2,
	"m": 1e-3, "μ": 1e-6, "µ": 1e-6, "u": 1e-6, "n": 1e-9, "p": 1e-12,
	"f": 1e-15, "a": 1e-18, "z": 1e-21, "y": 1e-24,
}

// prefixOrder lists prefixes longest first so "da" is tried before "d".
var prefixOrder = func() []string {
	keys := make([]string, 0, len(prefixes))
	for k := range prefixes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// lookup resolves a single symbol, trying exact matches before prefixed ones.
func lookup(sym string) (Unit, bool) {
	if e, ok := catalog[sym]; ok {
		return Unit{Scale: e.scale, Dims: clone(e.dims)}, true
	}
	for _, p := range prefixOrder {
		if len(sym) <= len(p) || sym[:len(p)] != p {
			continue
		}
		e, ok := catalog[sym[len(p):]]
		if !ok || !e.prefixable {
			continue
		}
		return Unit{Scale: prefixes[p] * e.scale, Dims: clone(e.dims)}, true
	}
	return Unit{}, false
}

func clone(d unit.Dimensions) unit.Dimensions {
	c := make(unit.Dimensions, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}
