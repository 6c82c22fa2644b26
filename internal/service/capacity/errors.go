package capacity

import (
	"errors"
	"fmt"
)

var (
	ErrClassFull        = errors.New("class is full")
	ErrOfferingNotFound = errors.New("offering not found")
)

type ClassFullError struct {
	OfferingID int64
	Occupancy  int
	Capacity   int
}

func (e *ClassFullError) Error() string {
	return fmt.Sprintf("offering %d is full: %d/%d", e.OfferingID, e.Occupancy, e.Capacity)
}

func (e *ClassFullError) Unwrap() error {
	return ErrClassFull
}
