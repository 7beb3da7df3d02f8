// Package store defines the unified storage interface for all Humanizer
// entities. Drivers live in the subpackages memory, sqlite, redis, and mongo.
package store

import (
	"context"
	"time"

	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/project"
)

// Store is the unified storage interface for all Humanizer entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every mutation must be durably applied before the call returns
// (write-through); the engine relies on this for crash recovery of held
// reservations.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *credit.Account) error
	GetAccount(ctx context.Context, userID string) (*credit.Account, error)
	UpdateAccount(ctx context.Context, a *credit.Account) error

	// Reservation methods
	CreateReservation(ctx context.Context, r *credit.Reservation) error
	GetReservation(ctx context.Context, resID id.ReservationID) (*credit.Reservation, error)
	UpdateReservation(ctx context.Context, r *credit.Reservation) error
	ListExpiredReservations(ctx context.Context, before time.Time) ([]*credit.Reservation, error)

	// Usage methods
	IngestUsage(ctx context.Context, events []*credit.UsageEvent) error
	QueryUsage(ctx context.Context, userID string, opts credit.QueryOpts) ([]*credit.UsageEvent, error)
	UsageTotal(ctx context.Context, userID string, since time.Time) (int64, error)
	PurgeUsage(ctx context.Context, before time.Time) (int64, error)

	// Project methods
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, projID id.ProjectID) (*project.Project, error)
	ListProjects(ctx context.Context, userID string, opts project.ListOpts) ([]*project.Project, error)
	UpdateProject(ctx context.Context, p *project.Project) error
	DeleteProject(ctx context.Context, projID id.ProjectID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
