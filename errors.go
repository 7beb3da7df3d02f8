package humanizer

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("humanizer: not found")
	ErrAlreadyExists = errors.New("humanizer: already exists")
	ErrInvalidInput  = errors.New("humanizer: invalid input")

	// Request errors
	ErrEmptyInput   = errors.New("humanizer: input text is empty")
	ErrInvalidLevel = errors.New("humanizer: invalid humanization level")

	// Credit ledger errors
	ErrInsufficientCredits   = errors.New("humanizer: insufficient credits")
	ErrAccountNotFound       = errors.New("humanizer: account not found")
	ErrUnknownReservation    = errors.New("humanizer: unknown reservation")
	ErrReservationTerminated = errors.New("humanizer: reservation already terminated")
	ErrInvalidAmount         = errors.New("humanizer: credit amount must be positive")
	ErrUnknownTier           = errors.New("humanizer: unknown plan tier")

	// Pipeline errors
	ErrTransformFault = errors.New("humanizer: transform fault")
	ErrInvalidRuleSet = errors.New("humanizer: invalid rule set")

	// Usage errors
	ErrUsageBufferFull = errors.New("humanizer: usage buffer full")

	// Project errors
	ErrProjectNotFound = errors.New("humanizer: project not found")

	// Store errors
	ErrStoreNotReady     = errors.New("humanizer: store not ready")
	ErrStoreClosed       = errors.New("humanizer: store is closed")
	ErrTransactionFailed = errors.New("humanizer: transaction failed")
	ErrMigrationFailed   = errors.New("humanizer: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("humanizer: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUnknownReservation) ||
		errors.Is(err, ErrProjectNotFound)
}

// IsCreditError returns true if the error is related to credit gating.
// These are expected, user-actionable outcomes rather than faults.
func IsCreditError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// IsClientError returns true for errors caused by the caller's request.
// No account state changes when a client error is returned.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientCredits)
}

// IsIntegrityError returns true for ledger integrity violations. These are
// programming errors: they abort the current request and must be logged,
// never silently ignored.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrUnknownReservation) ||
		errors.Is(err, ErrReservationTerminated)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransformFault) ||
		errors.Is(err, ErrUsageBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
