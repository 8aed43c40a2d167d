package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationPending      ReservationStatus = "pending"
	ReservationCancellation ReservationStatus = "cancellation"
	ReservationOnContract   ReservationStatus = "on_contract"
	ReservationNoShow       ReservationStatus = "no_show"
)

// Terminal reports whether no further transition is possible from s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCancellation, ReservationOnContract, ReservationNoShow:
		return true
	}
	return false
}

// CanTransition reports whether a reservation may move from s to next.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	return s == ReservationPending && next.Terminal()
}

// Reservation is created exactly once per approved application
type Reservation struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	ApplicationID   uuid.NullUUID     `json:"application_id" db:"application_id"` // nulled when the application is deleted
	ClientName      string            `json:"client_name" db:"client_name"`
	Status          ReservationStatus `json:"status" db:"status"`
	Notes           *string           `json:"notes" db:"notes"`
	AppointmentDate time.Time         `json:"appointment_date" db:"appointment_date"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// ReservationOutcome is how a pending reservation ends without a contract.
type ReservationOutcome int

const (
	OutcomeCancellation ReservationOutcome = iota + 1
	OutcomeNoShow
)

// Status returns the reservation status the outcome leads to.
func (o ReservationOutcome) Status() ReservationStatus {
	switch o {
	case OutcomeCancellation:
		return ReservationCancellation
	case OutcomeNoShow:
		return ReservationNoShow
	}
	return ""
}

func (o ReservationOutcome) String() string { return string(o.Status()) }

// ParseReservationOutcome accepts "cancellation" or "no_show".
func ParseReservationOutcome(s string) (ReservationOutcome, error) {
	switch ReservationStatus(s) {
	case ReservationCancellation:
		return OutcomeCancellation, nil
	case ReservationNoShow:
		return OutcomeNoShow, nil
	}
	return 0, &ValidationError{Field: "status", Message: "reservation decision must be cancellation or no_show, got " + quote(s)}
}
