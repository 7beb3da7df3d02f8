// Package observability provides a metrics extension for Humanizer that
// records lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/veritext/humanizer/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated       = (*MetricsExtension)(nil)
	_ plugin.OnPlanChanged          = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted       = (*MetricsExtension)(nil)
	_ plugin.OnCreditsExhausted     = (*MetricsExtension)(nil)
	_ plugin.OnCycleRenewed         = (*MetricsExtension)(nil)
	_ plugin.OnReservationHeld      = (*MetricsExtension)(nil)
	_ plugin.OnReservationCommitted = (*MetricsExtension)(nil)
	_ plugin.OnReservationReleased  = (*MetricsExtension)(nil)
	_ plugin.OnReservationExpired   = (*MetricsExtension)(nil)
	_ plugin.OnHumanizeCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnUsageFlushed         = (*MetricsExtension)(nil)
	_ plugin.OnProjectSaved         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Humanizer plugin to automatically track metering metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	PlanChanged    Counter
	CreditsGranted Counter
	CycleRenewed   Counter

	// Reservation metrics
	ReservationsHeld      Counter
	ReservationsCommitted Counter
	ReservationsReleased  Counter
	ReservationsExpired   Counter
	CreditsExhausted      Counter

	// Request metrics
	HumanizeCompleted Counter
	CreditsCharged    Counter

	// Usage metrics
	UsageBatchSize    Histogram
	UsageFlushLatency Histogram

	// Project metrics
	ProjectsSaved Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountCreated: factory.Counter("humanizer.account.created"),
		PlanChanged:    factory.Counter("humanizer.plan.changed"),
		CreditsGranted: factory.Counter("humanizer.credits.granted"),
		CycleRenewed:   factory.Counter("humanizer.cycle.renewed"),

		// Reservation metrics
		ReservationsHeld:      factory.Counter("humanizer.reservation.held"),
		ReservationsCommitted: factory.Counter("humanizer.reservation.committed"),
		ReservationsReleased:  factory.Counter("humanizer.reservation.released"),
		ReservationsExpired:   factory.Counter("humanizer.reservation.expired"),
		CreditsExhausted:      factory.Counter("humanizer.credits.exhausted"),

		// Request metrics
		HumanizeCompleted: factory.Counter("humanizer.request.completed"),
		CreditsCharged:    factory.Counter("humanizer.credits.charged"),

		// Usage metrics
		UsageBatchSize:    factory.Histogram("humanizer.usage.batch.size"),
		UsageFlushLatency: factory.Histogram("humanizer.usage.flush.latency_ms"),

		// Project metrics
		ProjectsSaved: factory.Counter("humanizer.project.saved"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ interface{}) error {
	m.AccountCreated.Inc()
	return nil
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (m *MetricsExtension) OnPlanChanged(_ context.Context, _, _, _ string) error {
	m.PlanChanged.Inc()
	return nil
}

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, _ string, _, _ int64) error {
	m.CreditsGranted.Inc()
	return nil
}

// OnCreditsExhausted implements plugin.OnCreditsExhausted.
func (m *MetricsExtension) OnCreditsExhausted(_ context.Context, _ string, _, _ int64) error {
	m.CreditsExhausted.Inc()
	return nil
}

// OnCycleRenewed implements plugin.OnCycleRenewed.
func (m *MetricsExtension) OnCycleRenewed(_ context.Context, _ string, _ int64) error {
	m.CycleRenewed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationHeld implements plugin.OnReservationHeld.
func (m *MetricsExtension) OnReservationHeld(_ context.Context, _ interface{}) error {
	m.ReservationsHeld.Inc()
	return nil
}

// OnReservationCommitted implements plugin.OnReservationCommitted.
func (m *MetricsExtension) OnReservationCommitted(_ context.Context, _ interface{}) error {
	m.ReservationsCommitted.Inc()
	return nil
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (m *MetricsExtension) OnReservationReleased(_ context.Context, _ interface{}) error {
	m.ReservationsReleased.Inc()
	return nil
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (m *MetricsExtension) OnReservationExpired(_ context.Context, _ interface{}) error {
	m.ReservationsExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// OnHumanizeCompleted implements plugin.OnHumanizeCompleted.
func (m *MetricsExtension) OnHumanizeCompleted(_ context.Context, _, _ string, creditsCharged int64) error {
	m.HumanizeCompleted.Inc()
	m.CreditsCharged.Add(float64(creditsCharged))
	return nil
}

// OnUsageFlushed implements plugin.OnUsageFlushed.
func (m *MetricsExtension) OnUsageFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.UsageBatchSize.Observe(float64(count))
	m.UsageFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnProjectSaved implements plugin.OnProjectSaved.
func (m *MetricsExtension) OnProjectSaved(_ context.Context, _ interface{}) error {
	m.ProjectsSaved.Inc()
	return nil
}
