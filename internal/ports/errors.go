package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Edge Errors
	ErrConnectionFailed     = errors.New("connection to exchange failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimited          = errors.New("rate limited by exchange")
	ErrTimeout              = errors.New("operation timed out")

	// Ledger Specific Errors
	ErrUnbalancedEntry = errors.New("journal entry debit and credit totals do not balance")
	ErrEmptyEntry      = errors.New("journal entry has no lines")
	ErrEntryExists     = errors.New("journal entry already recorded")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	// ErrTxConflict is returned after the store has exhausted its bounded
	// retries on a concurrent write conflict; callers may retry the save.
	ErrTxConflict = errors.New("transaction conflict after retries")
)
