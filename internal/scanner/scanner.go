package scanner

import (
	"fmt"

	"ContentCurator/internal/ports"
)

// Set keeps source adapters in registration order; discovery results are
// merged in that order.
type Set struct {
	sources []ports.Source
	index   map[string]int
}

// NewSet builds a set from the given sources.
func NewSet(sources ...ports.Source) (*Set, error) {
	s := &Set{index: map[string]int{}}
	for _, src := range sources {
		if err := s.Register(src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register appends a source. Names must be unique.
func (s *Set) Register(source ports.Source) error {
	if source == nil {
		return fmt.Errorf("scanner: nil source")
	}
	if s.index == nil {
		s.index = map[string]int{}
	}
	name := source.Name()
	if _, ok := s.index[name]; ok {
		return fmt.Errorf("scanner: source %s is already registered", name)
	}
	s.index[name] = len(s.sources)
	s.sources = append(s.sources, source)
	return nil
}

// Resolve returns a source by name or an error if it is absent.
func (s *Set) Resolve(name string) (ports.Source, error) {
	if i, ok := s.index[name]; ok {
		return s.sources[i], nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Sources returns the adapters in registration order.
func (s *Set) Sources() []ports.Source {
	if s == nil {
		return nil
	}
	out := make([]ports.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Len reports the number of registered sources.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sources)
}
