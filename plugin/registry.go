package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// Interfaces are cached at registration time so emitting an event is a
// slice walk, not a type assertion per plugin per call.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onAccountCreated       []OnAccountCreated
	onPlanChanged          []OnPlanChanged
	onCreditsGranted       []OnCreditsGranted
	onCreditsExhausted     []OnCreditsExhausted
	onCycleRenewed         []OnCycleRenewed
	onReservationHeld      []OnReservationHeld
	onReservationCommitted []OnReservationCommitted
	onReservationReleased  []OnReservationReleased
	onReservationExpired   []OnReservationExpired
	onHumanizeCompleted    []OnHumanizeCompleted
	onUsageFlushed         []OnUsageFlushed
	onProjectSaved         []OnProjectSaved
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnPlanChanged); ok {
		r.onPlanChanged = append(r.onPlanChanged, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnCreditsExhausted); ok {
		r.onCreditsExhausted = append(r.onCreditsExhausted, v)
	}
	if v, ok := p.(OnCycleRenewed); ok {
		r.onCycleRenewed = append(r.onCycleRenewed, v)
	}
	if v, ok := p.(OnReservationHeld); ok {
		r.onReservationHeld = append(r.onReservationHeld, v)
	}
	if v, ok := p.(OnReservationCommitted); ok {
		r.onReservationCommitted = append(r.onReservationCommitted, v)
	}
	if v, ok := p.(OnReservationReleased); ok {
		r.onReservationReleased = append(r.onReservationReleased, v)
	}
	if v, ok := p.(OnReservationExpired); ok {
		r.onReservationExpired = append(r.onReservationExpired, v)
	}
	if v, ok := p.(OnHumanizeCompleted); ok {
		r.onHumanizeCompleted = append(r.onHumanizeCompleted, v)
	}
	if v, ok := p.(OnUsageFlushed); ok {
		r.onUsageFlushed = append(r.onUsageFlushed, v)
	}
	if v, ok := p.(OnProjectSaved); ok {
		r.onProjectSaved = append(r.onProjectSaved, v)
	}

	return nil
}

// Plugins returns the names of all registered plugins.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

// hookErr logs a plugin hook failure. Hooks are observational: a failing
// plugin never fails the operation that triggered it.
func (r *Registry) hookErr(hook, name string, err error) {
	if err != nil {
		r.logger.Error("plugin hook failed", "hook", hook, "plugin", name, "error", err)
	}
}

// EmitInit dispatches the init event.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onInit {
		r.hookErr("on_init", p.Name(), p.OnInit(ctx, engine))
	}
}

// EmitShutdown dispatches the shutdown event.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onShutdown {
		r.hookErr("on_shutdown", p.Name(), p.OnShutdown(ctx))
	}
}

// EmitAccountCreated dispatches the account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, account interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onAccountCreated {
		r.hookErr("on_account_created", p.Name(), p.OnAccountCreated(ctx, account))
	}
}

// EmitPlanChanged dispatches the plan changed event.
func (r *Registry) EmitPlanChanged(ctx context.Context, userID, oldTier, newTier string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onPlanChanged {
		r.hookErr("on_plan_changed", p.Name(), p.OnPlanChanged(ctx, userID, oldTier, newTier))
	}
}

// EmitCreditsGranted dispatches the credits granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, userID string, amount, balance int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onCreditsGranted {
		r.hookErr("on_credits_granted", p.Name(), p.OnCreditsGranted(ctx, userID, amount, balance))
	}
}

// EmitCreditsExhausted dispatches the credits exhausted event.
func (r *Registry) EmitCreditsExhausted(ctx context.Context, userID string, balance, requested int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onCreditsExhausted {
		r.hookErr("on_credits_exhausted", p.Name(), p.OnCreditsExhausted(ctx, userID, balance, requested))
	}
}

// EmitCycleRenewed dispatches the cycle renewed event.
func (r *Registry) EmitCycleRenewed(ctx context.Context, userID string, balance int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onCycleRenewed {
		r.hookErr("on_cycle_renewed", p.Name(), p.OnCycleRenewed(ctx, userID, balance))
	}
}

// EmitReservationHeld dispatches the reservation held event.
func (r *Registry) EmitReservationHeld(ctx context.Context, reservation interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onReservationHeld {
		r.hookErr("on_reservation_held", p.Name(), p.OnReservationHeld(ctx, reservation))
	}
}

// EmitReservationCommitted dispatches the reservation committed event.
func (r *Registry) EmitReservationCommitted(ctx context.Context, reservation interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onReservationCommitted {
		r.hookErr("on_reservation_committed", p.Name(), p.OnReservationCommitted(ctx, reservation))
	}
}

// EmitReservationReleased dispatches the reservation released event.
func (r *Registry) EmitReservationReleased(ctx context.Context, reservation interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onReservationReleased {
		r.hookErr("on_reservation_released", p.Name(), p.OnReservationReleased(ctx, reservation))
	}
}

// EmitReservationExpired dispatches the reservation expired event.
func (r *Registry) EmitReservationExpired(ctx context.Context, reservation interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onReservationExpired {
		r.hookErr("on_reservation_expired", p.Name(), p.OnReservationExpired(ctx, reservation))
	}
}

// EmitHumanizeCompleted dispatches the humanize completed event.
func (r *Registry) EmitHumanizeCompleted(ctx context.Context, userID, level string, creditsCharged int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onHumanizeCompleted {
		r.hookErr("on_humanize_completed", p.Name(), p.OnHumanizeCompleted(ctx, userID, level, creditsCharged))
	}
}

// EmitUsageFlushed dispatches the usage flushed event.
func (r *Registry) EmitUsageFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onUsageFlushed {
		r.hookErr("on_usage_flushed", p.Name(), p.OnUsageFlushed(ctx, count, elapsed))
	}
}

// EmitProjectSaved dispatches the project saved event.
func (r *Registry) EmitProjectSaved(ctx context.Context, proj interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.onProjectSaved {
		r.hookErr("on_project_saved", p.Name(), p.OnProjectSaved(ctx, proj))
	}
}
