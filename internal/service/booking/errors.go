package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/classbook/internal/service/capacity"
)

var (
	ErrAlreadyBooked          = errors.New("participant already has a confirmed booking for this offering")
	ErrOfferingNotFound       = capacity.ErrOfferingNotFound
	ErrBookingNotFound        = errors.New("booking not found")
	ErrNotFoundOrAccessDenied = errors.New("booking not found or access denied")
	ErrClassPast              = errors.New("class has already started")
	ErrClassFull              = capacity.ErrClassFull
	ErrNotCancelled           = errors.New("booking is not cancelled")
	ErrSystemBusy             = errors.New("system busy, retry later")
	ErrInvalidInput           = errors.New("invalid input")
	ErrRateLimited            = errors.New("rate limited")
)

type OfferingNotFoundError struct {
	OfferingID int64
}

func (e *OfferingNotFoundError) Error() string {
	return fmt.Sprintf("offering not found: %d", e.OfferingID)
}

func (e *OfferingNotFoundError) Unwrap() error {
	return ErrOfferingNotFound
}

// ClassFullError is returned when a seat cannot be counted. BookingID is
// set when the booking row was written anyway and the caller has to decide
// how to compensate for it.
type ClassFullError struct {
	OfferingID int64
	BookingID  uuid.UUID
	Occupancy  int
	Capacity   int
}

func (e *ClassFullError) Error() string {
	if e.BookingID != uuid.Nil {
		return fmt.Sprintf("offering %d is full (%d/%d), booking %s kept uncounted",
			e.OfferingID, e.Occupancy, e.Capacity, e.BookingID)
	}
	return fmt.Sprintf("offering %d is full (%d/%d)", e.OfferingID, e.Occupancy, e.Capacity)
}

func (e *ClassFullError) Unwrap() error {
	return ErrClassFull
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
