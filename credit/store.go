package credit

import (
	"context"
	"time"

	"github.com/veritext/humanizer/id"
)

// AccountStore persists credit accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, userID string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
}

// ReservationStore persists reservations.
type ReservationStore interface {
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, resID id.ReservationID) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	ListExpiredReservations(ctx context.Context, before time.Time) ([]*Reservation, error)
}

// UsageStore persists usage events.
type UsageStore interface {
	IngestUsage(ctx context.Context, events []*UsageEvent) error
	QueryUsage(ctx context.Context, userID string, opts QueryOpts) ([]*UsageEvent, error)
	UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)
}
