package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidItem wraps every queue item validation failure so callers can
	// match the whole family with a single errors.Is check.
	ErrInvalidItem      = errors.New("invalid queue item")
	ErrInvalidItemID    = errors.New("id must not be empty")
	ErrInvalidOperation = errors.New("op must be insert, update, or delete")
	ErrUnknownTable     = errors.New("table is not a known sync table")
	ErrEmptyPayload     = errors.New("payload must not be empty")
	ErrMissingKey       = errors.New("payload must contain the primary key")
	ErrUnknownColumn    = errors.New("payload contains an unknown column")
	ErrInvalidTimestamp = errors.New("createdAt must be a positive epoch-millisecond timestamp")
	ErrDuplicateItem    = errors.New("an item with this id is already pending")

	// ErrNotRecorded means a mutation never reached durable storage.
	// The caller must not assume it will ever sync.
	ErrNotRecorded = errors.New("mutation not recorded")

	ErrInvalidNickname = errors.New("nickname must be between 1 and 64 characters")
	ErrInvalidPeriodID = errors.New("period id must be positive")
	ErrInvalidChips    = errors.New("chips must not be negative")
	ErrPeriodExists    = errors.New("period already exists")
)
