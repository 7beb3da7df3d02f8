// Package credit defines the credit ledger entities: accounts, reservations,
// and usage events.
package credit

import (
	"math"
	"time"

	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/types"
)

// Account holds a user's metering state. Invariant: 0 <= Balance <= Ceiling
// at every observable point. Accounts are created lazily on first access,
// seeded to the ceiling of their plan tier.
type Account struct {
	types.Entity
	ID      id.AccountID `json:"id"`
	UserID  string       `json:"user_id"`
	Tier    plan.Tier    `json:"tier"`
	Balance int64        `json:"balance"`
	Ceiling int64        `json:"ceiling"`
}

// NewAccount creates an account for a user, seeded to the full ceiling.
func NewAccount(userID string, tier plan.Tier, ceiling int64) *Account {
	return &Account{
		Entity:  types.NewEntity(),
		ID:      id.NewAccountID(),
		UserID:  userID,
		Tier:    tier,
		Balance: ceiling,
		Ceiling: ceiling,
	}
}

// PercentUsed reports how much of the allotment has been spent, rounded to
// the nearest whole percent.
func (a *Account) PercentUsed() int {
	if a.Ceiling <= 0 {
		return 0
	}
	return int(math.Round(float64(a.Ceiling-a.Balance) / float64(a.Ceiling) * 100))
}

// ReservationState describes the lifecycle of a reservation.
type ReservationState string

// Reservation states. A reservation starts held and is terminated by
// exactly one commit or release.
const (
	StateHeld      ReservationState = "held"
	StateCommitted ReservationState = "committed"
	StateReleased  ReservationState = "released"
)

// Terminal reports whether the state ends the reservation lifecycle.
func (s ReservationState) Terminal() bool {
	return s == StateCommitted || s == StateReleased
}

// Reservation is an in-flight claim against an account's balance. The
// amount is subtracted from the balance at reservation time; commit forfeits
// it permanently, release restores it.
type Reservation struct {
	types.Entity
	ID           id.ReservationID `json:"id"`
	UserID       string           `json:"user_id"`
	Amount       int64            `json:"amount"`
	State        ReservationState `json:"state"`
	ExpiresAt    time.Time        `json:"expires_at"`
	TerminatedAt *time.Time       `json:"terminated_at,omitempty"`
}

// NewReservation creates a held reservation expiring after ttl.
func NewReservation(userID string, amount int64, ttl time.Duration) *Reservation {
	return &Reservation{
		Entity:    types.NewEntity(),
		ID:        id.NewReservationID(),
		UserID:    userID,
		Amount:    amount,
		State:     StateHeld,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
}

// Expired reports whether a held reservation has outlived its window.
func (r *Reservation) Expired(now time.Time) bool {
	return r.State == StateHeld && now.After(r.ExpiresAt)
}

// UsageEvent records one completed humanize request for the usage history.
type UsageEvent struct {
	ID             id.UsageEventID `json:"id"`
	UserID         string          `json:"user_id"`
	Level          string          `json:"level"`
	CreditsCharged int64           `json:"credits_charged"`
	WordCount      int             `json:"word_count"`
	Timestamp      time.Time       `json:"timestamp"`
}

// QueryOpts filters usage event queries.
type QueryOpts struct {
	Level  string
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
