package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/tracersim/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"euler":          func() dynamo.Integrator { return NewEuler() },
	"heun":           func() dynamo.Integrator { return NewHeun() },
	"rk4":            func() dynamo.Integrator { return NewRK4() },
	"rk45":           func() dynamo.Integrator { return NewRK45() },
	"backward-euler": func() dynamo.Integrator { return NewBackwardEuler() },
	"crank-nicolson": func() dynamo.Integrator { return NewCrankNicolson() },
}

// New returns the integrator registered under name.
func New(name string) (dynamo.Integrator, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s (available: %v)", name, Names())
	}
	return f(), nil
}

// Names lists the registered integrators.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
