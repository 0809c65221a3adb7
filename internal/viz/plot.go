package viz

import (
	"sort"

	"github.com/guptarohit/asciigraph"
)

// DepthOrder returns box indices sorted from shallow to deep.
func DepthOrder(depth []float64) []int {
	order := make([]int, len(depth))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return depth[order[a]] < depth[order[b]] })
	return order
}

// Profile plots field against box depth rank, shallowest box first.
func Profile(field, depth []float64, caption string) string {
	if len(field) == 0 {
		return ""
	}
	data := make([]float64, len(field))
	for i, b := range DepthOrder(depth) {
		data[i] = field[b]
	}
	if len(data) == 1 {
		data = append(data, data[0])
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

// Series plots a time series.
func Series(values []float64, caption string) string {
	if len(values) == 0 {
		return ""
	}
	if len(values) == 1 {
		values = []float64{values[0], values[0]}
	}
	return asciigraph.Plot(values,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}
