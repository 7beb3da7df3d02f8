// Package plugin provides an extensible plugin system for Humanizer.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when an account is lazily created on first access.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, account interface{}) error
}

// OnPlanChanged is called when an account moves to a different plan tier.
type OnPlanChanged interface {
	Plugin
	OnPlanChanged(ctx context.Context, userID, oldTier, newTier string) error
}

// OnCreditsGranted is called when credits are added to an account.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, userID string, amount, balance int64) error
}

// OnCreditsExhausted is called when a reserve attempt fails for lack of credits.
type OnCreditsExhausted interface {
	Plugin
	OnCreditsExhausted(ctx context.Context, userID string, balance, requested int64) error
}

// OnCycleRenewed is called when a billing cycle renewal refills an account.
type OnCycleRenewed interface {
	Plugin
	OnCycleRenewed(ctx context.Context, userID string, balance int64) error
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationHeld is called when a reservation is placed against a balance.
type OnReservationHeld interface {
	Plugin
	OnReservationHeld(ctx context.Context, reservation interface{}) error
}

// OnReservationCommitted is called when a reservation is committed.
type OnReservationCommitted interface {
	Plugin
	OnReservationCommitted(ctx context.Context, reservation interface{}) error
}

// OnReservationReleased is called when a reservation is released and its
// amount restored.
type OnReservationReleased interface {
	Plugin
	OnReservationReleased(ctx context.Context, reservation interface{}) error
}

// OnReservationExpired is called when the sweep worker releases a
// reservation that outlived its window.
type OnReservationExpired interface {
	Plugin
	OnReservationExpired(ctx context.Context, reservation interface{}) error
}

// ──────────────────────────────────────────────────
// Request hooks
// ──────────────────────────────────────────────────

// OnHumanizeCompleted is called when a humanize request completes and is charged.
type OnHumanizeCompleted interface {
	Plugin
	OnHumanizeCompleted(ctx context.Context, userID, level string, creditsCharged int64) error
}

// OnUsageFlushed is called when buffered usage events are flushed to the store.
type OnUsageFlushed interface {
	Plugin
	OnUsageFlushed(ctx context.Context, count int, elapsed time.Duration) error
}

// OnProjectSaved is called when a humanization result is saved as a project.
type OnProjectSaved interface {
	Plugin
	OnProjectSaved(ctx context.Context, proj interface{}) error
}
