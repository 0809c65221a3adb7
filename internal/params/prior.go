package params

import "math"

// PriorCost returns ½ Σ (p_k − μ_k)² / σ²_k over the optimizable fields of p,
// using the observation statistics recorded in the schema. Fields with a
// missing or non-positive variance do not contribute.
func (s *Schema) PriorCost(p *Params[float64]) float64 {
	var c float64
	for _, i := range s.opt {
		f := s.fields[i]
		if !usable(f) {
			continue
		}
		d := p.vals[i] - f.ObsMean
		c += 0.5 * d * d / f.ObsVariance
	}
	return c
}

// PriorGradient returns the gradient of PriorCost over the vector view.
func (s *Schema) PriorGradient(p *Params[float64]) []float64 {
	g := make([]float64, len(s.opt))
	for k, i := range s.opt {
		f := s.fields[i]
		if !usable(f) {
			continue
		}
		g[k] = (p.vals[i] - f.ObsMean) / f.ObsVariance
	}
	return g
}

func usable(f Field) bool {
	return !math.IsNaN(f.ObsMean) && !math.IsNaN(f.ObsVariance) && f.ObsVariance > 0
}
