package query

import (
	"errors"
)

var (
	ErrOfferingNotFound = errors.New("offering not found")
	ErrBookingNotFound  = errors.New("booking not found")
)
