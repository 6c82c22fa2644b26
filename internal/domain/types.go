package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingConfirmed, BookingCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type AuditAction string

const (
	AuditIncrement  AuditAction = "increment"
	AuditDecrement  AuditAction = "decrement"
	AuditSync       AuditAction = "sync"
	AuditValidation AuditAction = "validation"
)

type Offering struct {
	ID        int64     `json:"id"`
	Capacity  int       `json:"capacity"`
	Occupancy int       `json:"occupancy"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o Offering) SpotsLeft() int {
	if left := o.Capacity - o.Occupancy; left > 0 {
		return left
	}
	return 0
}

type Booking struct {
	ID            uuid.UUID     `json:"id"`
	ParticipantID int64         `json:"participant_id"`
	OfferingID    int64         `json:"offering_id"`
	Status        BookingStatus `json:"status"`
	Payment       PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Counted reports whether the booking occupies a seat.
func (b Booking) Counted() bool {
	return b.Status == BookingConfirmed && b.Payment == PaymentCompleted
}

// AuditRecord is one immutable entry describing a counter mutation or a
// rejected attempt. ParticipantID and BookingID are nil for sync entries.
type AuditRecord struct {
	ID            int64       `json:"id"`
	OfferingID    int64       `json:"offering_id"`
	ParticipantID *int64      `json:"participant_id,omitempty"`
	BookingID     *uuid.UUID  `json:"booking_id,omitempty"`
	Action        AuditAction `json:"action"`
	OldCount      int         `json:"old_count"`
	NewCount      int         `json:"new_count"`
	Reason        string      `json:"reason"`
	CreatedAt     time.Time   `json:"created_at"`
}

type DecisionCode string

const (
	DecisionAlreadyBooked DecisionCode = "already_booked"
	DecisionNotFound      DecisionCode = "class_not_found"
	DecisionPast          DecisionCode = "class_past"
	DecisionFull          DecisionCode = "class_full"
	DecisionAvailable     DecisionCode = "available"
)

// BookingDecision is the answer to "can this participant book this offering
// right now". Occupancy fields are only set for full and available decisions.
type BookingDecision struct {
	Code      DecisionCode `json:"code"`
	Current   int          `json:"current,omitempty"`
	Max       int          `json:"max,omitempty"`
	SpotsLeft int          `json:"spots_left,omitempty"`
}

func (d BookingDecision) Available() bool {
	return d.Code == DecisionAvailable
}

type SyncResult struct {
	OfferingID int64  `json:"offering_id"`
	OldCount   int    `json:"old_count"`
	NewCount   int    `json:"new_count"`
	WasFixed   bool   `json:"was_fixed"`
	Overbooked bool   `json:"overbooked,omitempty"`
	Error      string `json:"error,omitempty"`
}
