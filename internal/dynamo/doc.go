// Package dynamo assembles tracer models into state functions.
//
// The package defines the fundamental types shared by solvers, integrators
// and the command line:
//
//   - [State]: flattened tracer field, tracer-major
//   - [Model]: tracers, parameters type and local source function
//   - [StateFunction]: F(x, p) = -T(p) x + G(x, p) with its Jacobians
//   - [System]: interface consumed by integrators (dx/dt = f(x, t))
//
// # Example
//
//	f, _ := dynamo.Assemble(model, circ)
//	p := params.Default(model.Schema)
//	dxdt := f.F(x, p)
//	jac := f.J(x, p)
//	sys := f.At(p) // for integrators
//
// # Thread Safety
//
// A StateFunction is read-only after Assemble and may be evaluated from
// several goroutines. Source functions are called concurrently for
// disjoint boxes.
package dynamo
