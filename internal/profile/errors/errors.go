// Package errors defines the sentinel errors shared by the profile packages.
// Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
package errors

import (
	"fmt"
)

var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicateID  = fmt.Errorf("duplicate id")
	ErrInvalidInput = fmt.Errorf("invalid input")

	// ErrPersistenceRead is recovered inside the store and only logged.
	ErrPersistenceRead = fmt.Errorf("persistence read failed")
	// ErrPersistenceWrite is the only storage failure surfaced to callers.
	ErrPersistenceWrite = fmt.Errorf("persistence write failed")
	// ErrBridgeSync is logged by the store and never returned.
	ErrBridgeSync = fmt.Errorf("autofill bridge sync failed")

	ErrQueueFull = fmt.Errorf("queue full")
	ErrClosed    = fmt.Errorf("closed")
)
