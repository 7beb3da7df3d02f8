package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionPlanChanged    = "plan.changed"
	ActionCreditsGranted = "credits.granted"
	ActionCycleRenewed   = "cycle.renewed"

	// Reservation actions
	ActionReservationHeld      = "reservation.held"
	ActionReservationCommitted = "reservation.committed"
	ActionReservationReleased  = "reservation.released"
	ActionReservationExpired   = "reservation.expired"
	ActionCreditsExhausted     = "credits.exhausted"

	// Request actions
	ActionHumanizeCompleted = "humanize.completed"

	// Project actions
	ActionProjectSaved = "project.saved"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceReservation = "reservation"
	ResourceRequest     = "request"
	ResourceProject     = "project"
)

// Category constants for audit events.
const (
	CategoryBilling  = "billing"
	CategoryMetering = "metering"
	CategoryContent  = "content"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
