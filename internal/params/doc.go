// Package params holds parameter tables and the parameters types generated
// from them.
//
// A [Table] is built row by row with unit-tagged quantities. [Generate] (or
// [Registry.Define]) freezes it into a [Schema], and [New] creates instances
// of that type over any element representation with an [Algebra]: float64,
// gonum dual and hyperdual numbers, or complex128 for complex-step
// derivatives.
//
// Instances have a named view over all fields and a vector view over the
// optimizable fields only:
//
//	t := params.NewTable()
//	t.Add("k", units.Q(2, "1/d"), params.Optimizable(true))
//	t.Add("h", units.Q(50, "m"))
//	s, _ := params.Generate(t, "Uptake")
//	p := params.Default(s)
//	v := p.OptVec()              // [k] in 1/s
//	q, _ := p.Reconstruct(v)     // h copied from p
//
// Equality compares every field, fixed ones included, and requires both
// instances to share a schema.
package params
