package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid payment transition")

// InvalidTransitionError names the rejected move together with the booking
// status it was attempted under.
type InvalidTransitionError struct {
	BookingStatus BookingStatus
	From          PaymentStatus
	To            PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment %s -> %s not allowed for %s booking", e.From, e.To, e.BookingStatus)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

var paymentTransitions = map[BookingStatus]map[PaymentStatus][]PaymentStatus{
	BookingConfirmed: {
		PaymentPending:   {PaymentCompleted, PaymentFailed},
		PaymentCompleted: {PaymentRefunded},
		PaymentFailed:    {PaymentPending, PaymentCompleted},
	},
	BookingCancelled: {
		PaymentPending:   {PaymentFailed, PaymentRefunded},
		PaymentFailed:    {PaymentPending, PaymentRefunded},
		PaymentCompleted: {PaymentRefunded},
	},
}

// CheckPaymentTransition is the only place payment moves are validated.
func CheckPaymentTransition(status BookingStatus, from, to PaymentStatus) error {
	for _, next := range paymentTransitions[status][from] {
		if next == to {
			return nil
		}
	}

	return &InvalidTransitionError{BookingStatus: status, From: from, To: to}
}

// AllowedPaymentTransitions lists the legal targets from a payment state.
func AllowedPaymentTransitions(status BookingStatus, from PaymentStatus) []PaymentStatus {
	next := paymentTransitions[status][from]
	out := make([]PaymentStatus, len(next))
	copy(out, next)
	return out
}

// CounterEffect is the change a status move makes to offering occupancy.
type CounterEffect int

const (
	CounterNone      CounterEffect = 0
	CounterIncrement CounterEffect = 1
	CounterDecrement CounterEffect = -1
)

// EffectOf returns the occupancy change between two booking states.
// Only confirmed+completed bookings are counted, so any move into or out of
// that pair yields exactly one increment or decrement.
func EffectOf(prev, next Booking) CounterEffect {
	switch {
	case !prev.Counted() && next.Counted():
		return CounterIncrement
	case prev.Counted() && !next.Counted():
		return CounterDecrement
	default:
		return CounterNone
	}
}

// RefundOnCancel returns the payment status a booking takes when cancelled.
// Only a completed payment is refunded.
func RefundOnCancel(p PaymentStatus) PaymentStatus {
	if p == PaymentCompleted {
		return PaymentRefunded
	}
	return p
}
