package params

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry binds type names to schemas. It replaces a process-wide namespace:
// callers own a registry and look generated types up through it.
//
// Lookups are safe for concurrent use. Define must not be called
// concurrently for the same name.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Schema
	warnings []*TypeRedefinitionWarning
	log      logrus.FieldLogger
}

// NewRegistry returns an empty registry logging to log, or to the standard
// logger when log is nil.
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		types: make(map[string]*Schema),
		log:   log,
	}
}

// Define generates a schema from t and binds it to name. Rebinding an
// existing name succeeds but logs and records a TypeRedefinitionWarning.
func (r *Registry) Define(t *Table, name string) (*Schema, error) {
	s, err := Generate(t, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s.generation = 1
	if prev, ok := r.types[name]; ok {
		s.generation = prev.generation + 1
		w := &TypeRedefinitionWarning{
			Name:       name,
			Previous:   prev.Names(),
			Current:    s.Names(),
			Generation: s.generation,
		}
		r.warnings = append(r.warnings, w)
		r.log.WithFields(logrus.Fields{
			"type":           name,
			"generation":     s.generation,
			"fields_changed": w.FieldsChanged(),
		}).Warn(w.Error())
	}
	r.types[name] = s
	r.log.WithFields(logrus.Fields{
		"type":        name,
		"fields":      s.NumFields(),
		"optimizable": s.Len(),
	}).Debug("defined parameters type")
	return s, nil
}

// Lookup returns the schema currently bound to name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.types[name]
	return s, ok
}

// IsCurrent reports whether s is still the schema bound to its name.
func (r *Registry) IsCurrent(s *Schema) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return s != nil && r.types[s.name] == s
}

// Names returns the bound type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Warnings returns the redefinition warnings recorded so far.
func (r *Registry) Warnings() []*TypeRedefinitionWarning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeRedefinitionWarning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
