package app

import (
	"github.com/fd1az/arb-engine/business/venues/domain"
)

// Service is the venue registry other contexts query for adapters.
type Service struct {
	byName  map[string]Adapter
	ordered []Adapter
}

// NewService indexes the adapters by venue name, preserving
// registration order for deterministic fan-out.
func NewService(adapters []Adapter) *Service {
	s := &Service{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		name := a.Venue().Name
		if _, dup := s.byName[name]; dup {
			continue
		}
		s.byName[name] = a
		s.ordered = append(s.ordered, a)
	}
	return s
}

// Adapters returns every registered adapter in registration order.
func (s *Service) Adapters() []Adapter {
	return s.ordered
}

// Adapter looks up an adapter by venue name.
func (s *Service) Adapter(name string) (Adapter, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// AdaptersForPair returns the adapters whose venue lists a pool for
// the pair.
func (s *Service) AdaptersForPair(pair domain.Pair) []Adapter {
	var out []Adapter
	for _, a := range s.ordered {
		if len(a.Venue().PoolsFor(pair)) > 0 {
			out = append(out, a)
		}
	}
	return out
}
