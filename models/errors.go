package models

import (
	"errors"
	"fmt"
	"strconv"
)

// ValidationError reports missing or malformed input. Nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DuplicateError reports a conflicting pending application or client email.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists for %s", e.Entity, e.Key)
}

// NotFoundError reports a missing Land, Lot, Client, Agent, Application,
// Reservation or Contract.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// InventoryConsistencyError reports a write that would break the inventory
// counters or find a lot in an unexpected state.
type InventoryConsistencyError struct {
	LandID string
	LotID  string
	Reason string
}

func (e *InventoryConsistencyError) Error() string {
	switch {
	case e.LotID != "":
		return fmt.Sprintf("inventory conflict on lot %s: %s", e.LotID, e.Reason)
	case e.LandID != "":
		return fmt.Sprintf("inventory conflict on land %s: %s", e.LandID, e.Reason)
	}
	return "inventory conflict: " + e.Reason
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err wraps a DuplicateError.
func IsDuplicate(err error) bool {
	var target *DuplicateError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInventoryConflict reports whether err wraps an InventoryConsistencyError.
func IsInventoryConflict(err error) bool {
	var target *InventoryConsistencyError
	return errors.As(err, &target)
}

// IsDomain reports whether err belongs to the domain taxonomy, i.e. its
// message is safe to show to a caller.
func IsDomain(err error) bool {
	return IsValidation(err) || IsDuplicate(err) || IsNotFound(err) || IsInventoryConflict(err)
}

func quote(s string) string { return strconv.Quote(s) }
