package reconcile

import (
	"errors"
)

var (
	ErrOfferingNotFound = errors.New("offering not found")
	ErrSystemBusy       = errors.New("system busy, retry later")
)
