package signal

import "fmt"

// Registry is an immutable, ordered signal catalog.
type Registry struct {
	signals []Signal
	byID    map[string]int
}

// NewRegistry validates and indexes signals in the order given.
// Registration order is significant: it breaks score ties.
func NewRegistry(signals ...Signal) (*Registry, error) {
	r := &Registry{
		signals: make([]Signal, 0, len(signals)),
		byID:    make(map[string]int, len(signals)),
	}
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		r.byID[s.ID] = len(r.signals)
		r.signals = append(r.signals, s)
	}
	return r, nil
}

// Default returns a registry holding the built-in catalog.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		// Builtin is static; a failure here is a programming error
		panic(fmt.Sprintf("signal: invalid builtin catalog: %v", err))
	}
	return r
}

// With returns a new registry with extra signals appended after the
// existing ones.
func (r *Registry) With(extra ...Signal) (*Registry, error) {
	all := make([]Signal, 0, len(r.signals)+len(extra))
	all = append(all, r.signals...)
	all = append(all, extra...)
	return NewRegistry(all...)
}

// All returns every signal in registration order.
func (r *Registry) All() []Signal {
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Runnable returns the signals allowed to run. Production builds only get
// production-safe probes; fingerprinting-heavy or fragile probes are kept to
// development.
func (r *Registry) Runnable(production bool) []Signal {
	out := make([]Signal, 0, len(r.signals))
	for _, s := range r.signals {
		if production && !s.ProductionSafe {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Lookup returns the signal with the given id.
func (r *Registry) Lookup(id string) (Signal, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Signal{}, false
	}
	return r.signals[i], true
}

// Len returns the number of registered signals.
func (r *Registry) Len() int {
	return len(r.signals)
}
