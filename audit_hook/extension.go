// Package audithook bridges Humanizer lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/plugin"
	"github.com/veritext/humanizer/project"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnAccountCreated       = (*Extension)(nil)
	_ plugin.OnPlanChanged          = (*Extension)(nil)
	_ plugin.OnCreditsGranted       = (*Extension)(nil)
	_ plugin.OnCreditsExhausted     = (*Extension)(nil)
	_ plugin.OnCycleRenewed         = (*Extension)(nil)
	_ plugin.OnReservationCommitted = (*Extension)(nil)
	_ plugin.OnReservationReleased  = (*Extension)(nil)
	_ plugin.OnReservationExpired   = (*Extension)(nil)
	_ plugin.OnHumanizeCompleted    = (*Extension)(nil)
	_ plugin.OnProjectSaved         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Humanizer lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, account interface{}) error {
	acct, ok := account.(*credit.Account)
	if !ok {
		return nil
	}
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.ID.String(), CategoryBilling, nil,
		"user_id", acct.UserID,
		"tier", string(acct.Tier),
		"ceiling", acct.Ceiling,
	)
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (e *Extension) OnPlanChanged(ctx context.Context, userID, oldTier, newTier string) error {
	return e.record(ctx, ActionPlanChanged, SeverityInfo, OutcomeSuccess,
		ResourceAccount, userID, CategoryBilling, nil,
		"user_id", userID,
		"old_tier", oldTier,
		"new_tier", newTier,
	)
}

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, userID string, amount, balance int64) error {
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceAccount, userID, CategoryBilling, nil,
		"user_id", userID,
		"amount", amount,
		"balance", balance,
	)
}

// OnCreditsExhausted implements plugin.OnCreditsExhausted.
func (e *Extension) OnCreditsExhausted(ctx context.Context, userID string, balance, requested int64) error {
	return e.record(ctx, ActionCreditsExhausted, SeverityWarning, OutcomeFailure,
		ResourceAccount, userID, CategoryMetering, nil,
		"user_id", userID,
		"balance", balance,
		"requested", requested,
	)
}

// OnCycleRenewed implements plugin.OnCycleRenewed.
func (e *Extension) OnCycleRenewed(ctx context.Context, userID string, balance int64) error {
	return e.record(ctx, ActionCycleRenewed, SeverityInfo, OutcomeSuccess,
		ResourceAccount, userID, CategoryBilling, nil,
		"user_id", userID,
		"balance", balance,
	)
}

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationCommitted implements plugin.OnReservationCommitted.
func (e *Extension) OnReservationCommitted(ctx context.Context, reservation interface{}) error {
	return e.recordReservation(ctx, ActionReservationCommitted, SeverityInfo, reservation)
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (e *Extension) OnReservationReleased(ctx context.Context, reservation interface{}) error {
	return e.recordReservation(ctx, ActionReservationReleased, SeverityInfo, reservation)
}

// OnReservationExpired implements plugin.OnReservationExpired.
func (e *Extension) OnReservationExpired(ctx context.Context, reservation interface{}) error {
	return e.recordReservation(ctx, ActionReservationExpired, SeverityWarning, reservation)
}

func (e *Extension) recordReservation(ctx context.Context, action, severity string, reservation interface{}) error {
	res, ok := reservation.(*credit.Reservation)
	if !ok {
		return nil
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceReservation, res.ID.String(), CategoryMetering, nil,
		"user_id", res.UserID,
		"amount", res.Amount,
	)
}

// ──────────────────────────────────────────────────
// Request lifecycle hooks
// ──────────────────────────────────────────────────

// OnHumanizeCompleted implements plugin.OnHumanizeCompleted.
func (e *Extension) OnHumanizeCompleted(ctx context.Context, userID, level string, creditsCharged int64) error {
	return e.record(ctx, ActionHumanizeCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRequest, userID, CategoryMetering, nil,
		"user_id", userID,
		"level", level,
		"credits_charged", creditsCharged,
	)
}

// OnProjectSaved implements plugin.OnProjectSaved.
func (e *Extension) OnProjectSaved(ctx context.Context, proj interface{}) error {
	p, ok := proj.(*project.Project)
	if !ok {
		return nil
	}
	return e.record(ctx, ActionProjectSaved, SeverityInfo, OutcomeSuccess,
		ResourceProject, p.ID.String(), CategoryContent, nil,
		"user_id", p.UserID,
		"title", p.Title,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
