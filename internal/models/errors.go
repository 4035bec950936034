package models

import (
	"errors"
	"fmt"
	"time"
)

// Domain error kinds. Concrete failures wrap one of these so callers can branch on
// errors.Is without depending on message text.
var (
	ErrDomain                 = errors.New("domain error")
	ErrInvalidLocation        = fmt.Errorf("%w: invalid location", ErrDomain)
	ErrInvalidPhoneNumber     = fmt.Errorf("%w: invalid phone number", ErrDomain)
	ErrInvalidCategory        = fmt.Errorf("%w: invalid item category", ErrDomain)
	ErrInvalidDescription     = fmt.Errorf("%w: invalid description", ErrDomain)
	ErrInvalidDate            = fmt.Errorf("%w: invalid date", ErrDomain)
	ErrInvalidPoliceReference = fmt.Errorf("%w: invalid police reference", ErrDomain)
	ErrItemNotFound           = fmt.Errorf("%w: item not found", ErrDomain)
	ErrItemAlreadyRecovered   = fmt.Errorf("%w: item already recovered", ErrDomain)
	ErrItemAlreadyVerified    = fmt.Errorf("%w: item already verified", ErrDomain)
	ErrItemAlreadyDeleted     = fmt.Errorf("%w: item already deleted", ErrDomain)
	ErrItemNotActive          = fmt.Errorf("%w: item not active", ErrDomain)
	ErrUnauthorized           = fmt.Errorf("%w: only the reporter can modify this item", ErrDomain)
)

// Transport error kinds, wrapped by the messaging services.
var (
	ErrTransport            = errors.New("messaging transport error")
	ErrTransportRateLimited = fmt.Errorf("%w: rate limited by provider", ErrTransport)
)

// RepositoryError reports a storage failure underneath a domain operation.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError wraps err as a RepositoryError for operation op.
func NewRepositoryError(op string, err error) error {
	return &RepositoryError{Op: op, Err: err}
}

// RateLimitError is returned when a sender exceeds the allowed message rate.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}
