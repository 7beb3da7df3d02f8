package mongo

import (
	"time"

	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/project"
	"github.com/veritext/humanizer/types"
)

// Document types mirror the domain entities with IDs flattened to strings
// so BSON round-trips without custom codecs.

type accountDoc struct {
	UserID    string    `bson:"_id"`
	ID        string    `bson:"account_id"`
	Tier      string    `bson:"tier"`
	Balance   int64     `bson:"balance"`
	Ceiling   int64     `bson:"ceiling"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toAccountDoc(a *credit.Account) *accountDoc {
	return &accountDoc{
		UserID:    a.UserID,
		ID:        a.ID.String(),
		Tier:      string(a.Tier),
		Balance:   a.Balance,
		Ceiling:   a.Ceiling,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d *accountDoc) toDomain() (*credit.Account, error) {
	aid, err := id.ParseAccountID(d.ID)
	if err != nil {
		return nil, err
	}
	return &credit.Account{
		Entity:  types.Entity{CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		ID:      aid,
		UserID:  d.UserID,
		Tier:    plan.Tier(d.Tier),
		Balance: d.Balance,
		Ceiling: d.Ceiling,
	}, nil
}

type reservationDoc struct {
	ID           string     `bson:"_id"`
	UserID       string     `bson:"user_id"`
	Amount       int64      `bson:"amount"`
	State        string     `bson:"state"`
	ExpiresAt    time.Time  `bson:"expires_at"`
	TerminatedAt *time.Time `bson:"terminated_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toReservationDoc(r *credit.Reservation) *reservationDoc {
	return &reservationDoc{
		ID:           r.ID.String(),
		UserID:       r.UserID,
		Amount:       r.Amount,
		State:        string(r.State),
		ExpiresAt:    r.ExpiresAt,
		TerminatedAt: r.TerminatedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (d *reservationDoc) toDomain() (*credit.Reservation, error) {
	rid, err := id.ParseReservationID(d.ID)
	if err != nil {
		return nil, err
	}
	return &credit.Reservation{
		Entity:       types.Entity{CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		ID:           rid,
		UserID:       d.UserID,
		Amount:       d.Amount,
		State:        credit.ReservationState(d.State),
		ExpiresAt:    d.ExpiresAt,
		TerminatedAt: d.TerminatedAt,
	}, nil
}

type usageEventDoc struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"user_id"`
	Level          string    `bson:"level"`
	CreditsCharged int64     `bson:"credits_charged"`
	WordCount      int       `bson:"word_count"`
	Timestamp      time.Time `bson:"timestamp"`
}

func toUsageEventDoc(e *credit.UsageEvent) *usageEventDoc {
	return &usageEventDoc{
		ID:             e.ID.String(),
		UserID:         e.UserID,
		Level:          e.Level,
		CreditsCharged: e.CreditsCharged,
		WordCount:      e.WordCount,
		Timestamp:      e.Timestamp,
	}
}

func (d *usageEventDoc) toDomain() (*credit.UsageEvent, error) {
	eid, err := id.ParseUsageEventID(d.ID)
	if err != nil {
		return nil, err
	}
	return &credit.UsageEvent{
		ID:             eid,
		UserID:         d.UserID,
		Level:          d.Level,
		CreditsCharged: d.CreditsCharged,
		WordCount:      d.WordCount,
		Timestamp:      d.Timestamp,
	}, nil
}

type projectDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Excerpt   string    `bson:"excerpt"`
	Result    string    `bson:"result"`
	Favorite  bool      `bson:"favorite"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toProjectDoc(p *project.Project) *projectDoc {
	return &projectDoc{
		ID:        p.ID.String(),
		UserID:    p.UserID,
		Title:     p.Title,
		Excerpt:   p.Excerpt,
		Result:    p.Result,
		Favorite:  p.Favorite,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d *projectDoc) toDomain() (*project.Project, error) {
	pid, err := id.ParseProjectID(d.ID)
	if err != nil {
		return nil, err
	}
	return &project.Project{
		Entity:   types.Entity{CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		ID:       pid,
		UserID:   d.UserID,
		Title:    d.Title,
		Excerpt:  d.Excerpt,
		Result:   d.Result,
		Favorite: d.Favorite,
	}, nil
}
