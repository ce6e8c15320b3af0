package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction is returned for an action outside the enumeration
	ErrInvalidAction = errors.New("invalid audit action")

	// ErrInvalidEntityType is returned for an entity type outside the enumeration
	ErrInvalidEntityType = errors.New("invalid audit entity type")

	// ErrInvalidSeverity is returned for a severity outside the enumeration
	ErrInvalidSeverity = errors.New("invalid audit severity")

	// ErrMissingActorEmail is returned when an entry has no actor email
	ErrMissingActorEmail = errors.New("actor email is required")

	// ErrRetentionTooShort is returned when a purge asks to keep less than MinRetentionDays
	ErrRetentionTooShort = fmt.Errorf("daysToKeep must be at least %d", MinRetentionDays)

	// ErrUnboundedDelete is returned by stores when a delete has no upper time bound
	ErrUnboundedDelete = errors.New("refusing to delete audit records without an upper time bound")

	// ErrStorage wraps failures reported by the storage collaborator on the read path
	ErrStorage = errors.New("audit storage failure")
)

func invalidValue(kind error, value string) error {
	return fmt.Errorf("%w: %q", kind, value)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
