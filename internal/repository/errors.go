package repository

import "errors"

var (
	// ErrAuthorityNotFound indicates no authority exists with the given ID.
	ErrAuthorityNotFound = errors.New("authority not found")

	// ErrEntryNotFound indicates no entry exists with the given ID, or the
	// entry carries no inventory item where one is required.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrItemUsed indicates the entry's item was already consumed. Only
	// returned when strict consume is enabled.
	ErrItemUsed = errors.New("item already used")
)
