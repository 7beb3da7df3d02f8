// Package memory provides an in-memory Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/project"
	humanizerstore "github.com/veritext/humanizer/store"
)

// compile-time interface check
var _ humanizerstore.Store = (*Store)(nil)

// Store keeps all entities in process memory. Records are copied on the way
// in and out so callers never share mutable state with the store.
type Store struct {
	mu sync.RWMutex

	// Accounts keyed by user ID
	accounts map[string]*credit.Account

	// Reservations keyed by reservation ID
	reservations map[string]*credit.Reservation

	// Usage events in ingestion order
	usageEvents []credit.UsageEvent

	// Projects keyed by project ID
	projects map[string]*project.Project
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]*credit.Account),
		reservations: make(map[string]*credit.Reservation),
		usageEvents:  make([]credit.UsageEvent, 0),
		projects:     make(map[string]*project.Project),
	}
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, a *credit.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.UserID]; exists {
		return humanizer.ErrAlreadyExists
	}
	clone := *a
	s.accounts[a.UserID] = &clone
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*credit.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[userID]; ok {
		clone := *a
		return &clone, nil
	}
	return nil, humanizer.ErrAccountNotFound
}

func (s *Store) UpdateAccount(_ context.Context, a *credit.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.UserID]; !exists {
		return humanizer.ErrAccountNotFound
	}
	clone := *a
	s.accounts[a.UserID] = &clone
	return nil
}

// Reservation Store implementation

func (s *Store) CreateReservation(_ context.Context, r *credit.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[r.ID.String()]; exists {
		return humanizer.ErrAlreadyExists
	}
	clone := *r
	s.reservations[r.ID.String()] = &clone
	return nil
}

func (s *Store) GetReservation(_ context.Context, resID id.ReservationID) (*credit.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reservations[resID.String()]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, humanizer.ErrUnknownReservation
}

func (s *Store) UpdateReservation(_ context.Context, r *credit.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[r.ID.String()]; !exists {
		return humanizer.ErrUnknownReservation
	}
	clone := *r
	s.reservations[r.ID.String()] = &clone
	return nil
}

func (s *Store) ListExpiredReservations(_ context.Context, before time.Time) ([]*credit.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Reservation, 0)
	for _, r := range s.reservations {
		if r.State == credit.StateHeld && r.ExpiresAt.Before(before) {
			clone := *r
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	return result, nil
}

// Usage Store implementation

func (s *Store) IngestUsage(_ context.Context, events []*credit.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.usageEvents = append(s.usageEvents, *e)
	}
	return nil
}

func (s *Store) QueryUsage(_ context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*credit.UsageEvent, 0)
	for i := range s.usageEvents {
		e := s.usageEvents[i]
		if e.UserID != userID {
			continue
		}
		if opts.Level != "" && e.Level != opts.Level {
			continue
		}
		if !opts.Start.IsZero() && e.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && e.Timestamp.After(opts.End) {
			continue
		}
		clone := e
		matched = append(matched, &clone)
	}

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) UsageTotal(_ context.Context, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for i := range s.usageEvents {
		e := &s.usageEvents[i]
		if e.UserID == userID && e.Timestamp.After(since) {
			total += e.CreditsCharged
		}
	}
	return total, nil
}

func (s *Store) PurgeUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]credit.UsageEvent, 0, len(s.usageEvents))
	for _, e := range s.usageEvents {
		if e.Timestamp.Before(before) {
			count++
		} else {
			kept = append(kept, e)
		}
	}
	s.usageEvents = kept
	return count, nil
}

// Project Store implementation

func (s *Store) CreateProject(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[p.ID.String()]; exists {
		return humanizer.ErrAlreadyExists
	}
	clone := *p
	s.projects[p.ID.String()] = &clone
	return nil
}

func (s *Store) GetProject(_ context.Context, projID id.ProjectID) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.projects[projID.String()]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, humanizer.ErrProjectNotFound
}

func (s *Store) ListProjects(_ context.Context, userID string, opts project.ListOpts) ([]*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(opts.Search)
	matched := make([]*project.Project, 0)
	for _, p := range s.projects {
		if p.UserID != userID {
			continue
		}
		if opts.FavoritesOnly && !p.Favorite {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Excerpt), search) {
			continue
		}
		clone := *p
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *Store) UpdateProject(_ context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[p.ID.String()]; !exists {
		return humanizer.ErrProjectNotFound
	}
	clone := *p
	s.projects[p.ID.String()] = &clone
	return nil
}

func (s *Store) DeleteProject(_ context.Context, projID id.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[projID.String()]; !exists {
		return humanizer.ErrProjectNotFound
	}
	delete(s.projects, projID.String())
	return nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
