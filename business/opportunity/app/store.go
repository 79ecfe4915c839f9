package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fd1az/arb-engine/business/opportunity/domain"
	"github.com/fd1az/arb-engine/internal/apperror"
)

// Store is the in-memory opportunity book. It keeps at most one active
// candidate per pair (a newer one supersedes the old), purges expired
// entries lazily on read and eagerly via PurgeExpired, and enforces at
// most one in-flight execution per pair.
type Store struct {
	mu sync.Mutex

	active   map[string]*domain.Opportunity // pair key -> live candidate
	inflight map[string]string              // pair key -> executing opportunity ID
	byID     map[string]*domain.Opportunity

	// history holds terminal opportunities, newest last, bounded.
	history    []*domain.Opportunity
	maxHistory int
}

// NewStore creates an empty store retaining up to maxHistory terminal
// opportunities for reporting.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 256
	}
	return &Store{
		active:     make(map[string]*domain.Opportunity),
		inflight:   make(map[string]string),
		byID:       make(map[string]*domain.Opportunity),
		maxHistory: maxHistory,
	}
}

// Put admits a freshly detected opportunity. An existing active
// candidate for the same pair is marked superseded and returned. An
// opportunity whose pair is mid-execution is still stored; it simply
// cannot start executing until the in-flight one resolves.
func (s *Store) Put(o *domain.Opportunity) (superseded *domain.Opportunity, err error) {
	if o == nil || o.Status != domain.StatusDetected {
		return nil, fmt.Errorf("store admits only detected opportunities")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := o.Pair.Key()
	if prev, ok := s.active[key]; ok && prev.ID != o.ID {
		if prev.Status == domain.StatusDetected {
			_ = prev.Transition(domain.StatusSuperseded, "newer candidate for pair")
			s.retire(prev)
			superseded = prev
		}
	}
	s.active[key] = o
	s.byID[o.ID] = o
	return superseded, nil
}

// Get returns an opportunity by ID, expiring it lazily first.
func (s *Store) Get(id string, now time.Time) (*domain.Opportunity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	s.expireLocked(o, now)
	return o, true
}

// Active returns the live candidates, expired ones purged, sorted by
// descending net profit. A pair mid-execution contributes both the
// executing opportunity and any newer detected candidate waiting
// behind it.
func (s *Store) Active(now time.Time) []*domain.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Opportunity
	seen := make(map[string]bool)
	for _, o := range s.active {
		s.expireLocked(o, now)
		if o.Status == domain.StatusDetected || o.Status == domain.StatusExecuting {
			out = append(out, o)
			seen[o.ID] = true
		}
	}
	for _, id := range s.inflight {
		if seen[id] {
			continue
		}
		if o, ok := s.byID[id]; ok && o.Status == domain.StatusExecuting {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NetProfit.Raw().Cmp(out[j].NetProfit.Raw()) > 0
	})
	return out
}

// BeginExecution transitions a detected opportunity to executing,
// enforcing expiry and the one-in-flight-per-pair rule.
func (s *Store) BeginExecution(id string, now time.Time) (*domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound,
			apperror.WithContext(fmt.Sprintf("opportunity %s", id)))
	}

	s.expireLocked(o, now)
	if o.Status != domain.StatusDetected {
		if o.Status == domain.StatusExpired {
			return nil, apperror.New(apperror.CodeOpportunityExpired,
				apperror.WithContext(fmt.Sprintf("opportunity %s expired at %s", id, o.ExpiresAt.Format(time.RFC3339))))
		}
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("opportunity %s is %s", id, o.Status)))
	}

	key := o.Pair.Key()
	if holder, busy := s.inflight[key]; busy {
		return nil, apperror.New(apperror.CodePairBusy,
			apperror.WithContext(fmt.Sprintf("pair %s is executing opportunity %s", key, holder)))
	}

	if err := o.Transition(domain.StatusExecuting, ""); err != nil {
		return nil, err
	}
	s.inflight[key] = o.ID
	return o, nil
}

// FinishExecution resolves an executing opportunity to a terminal
// status and releases the pair.
func (s *Store) FinishExecution(id string, final domain.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return apperror.New(apperror.CodeNotFound,
			apperror.WithContext(fmt.Sprintf("opportunity %s", id)))
	}
	if o.Status != domain.StatusExecuting {
		return fmt.Errorf("opportunity %s is %s, not executing", id, o.Status)
	}
	if err := o.Transition(final, reason); err != nil {
		return err
	}

	key := o.Pair.Key()
	if s.inflight[key] == id {
		delete(s.inflight, key)
	}
	s.retire(o)
	return nil
}

// Skip resolves a detected opportunity the risk assessor rejected.
func (s *Store) Skip(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return apperror.New(apperror.CodeNotFound,
			apperror.WithContext(fmt.Sprintf("opportunity %s", id)))
	}
	if err := o.Transition(domain.StatusSkipped, reason); err != nil {
		return err
	}
	s.retire(o)
	return nil
}

// PurgeExpired eagerly expires stale candidates, returning how many
// were retired. The engine calls this every tick.
func (s *Store) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.active {
		if o.Status == domain.StatusDetected && o.Expired(now) {
			s.expireLocked(o, now)
			n++
		}
	}
	return n
}

// History returns the retained terminal opportunities, newest first.
func (s *Store) History() []*domain.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Opportunity, len(s.history))
	for i, o := range s.history {
		out[len(out)-1-i] = o
	}
	return out
}

// InFlight reports whether the pair currently has an executing
// opportunity.
func (s *Store) InFlight(pairKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[pairKey]
	return busy
}

// expireLocked lazily retires a detected candidate past its deadline.
func (s *Store) expireLocked(o *domain.Opportunity, now time.Time) {
	if o.Status == domain.StatusDetected && o.Expired(now) {
		_ = o.Transition(domain.StatusExpired, "validity window elapsed")
		s.retire(o)
	}
}

// retire moves a terminal opportunity out of the active index into the
// bounded history.
func (s *Store) retire(o *domain.Opportunity) {
	key := o.Pair.Key()
	if cur, ok := s.active[key]; ok && cur.ID == o.ID {
		delete(s.active, key)
	}
	s.history = append(s.history, o)
	if len(s.history) > s.maxHistory {
		drop := s.history[0]
		s.history = s.history[1:]
		delete(s.byID, drop.ID)
	}
}
