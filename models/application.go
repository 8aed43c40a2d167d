package models

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// applicationTransitions lists every allowed status change. approved ->
// rejected only happens when a reservation is cancelled or marked no-show.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:  {ApplicationApproved, ApplicationRejected},
	ApplicationApproved: {ApplicationRejected},
	ApplicationRejected: nil,
}

// CanTransition reports whether an application may move from s to next.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	for _, allowed := range applicationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Application is a buyer's claim against an ordered set of lots in one Land
type Application struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	LandID          uuid.UUID         `json:"land_id" db:"land_id"`
	ClientID        uuid.UUID         `json:"client_id" db:"client_id"`
	LotIDs          []uuid.UUID       `json:"lot_ids"`
	AgentDealerID   uuid.UUID         `json:"agent_dealer_id" db:"agent_dealer_id"`
	OtherAgentIDs   []uuid.UUID       `json:"other_agent_ids"`
	AppointmentDate time.Time         `json:"appointment_date" db:"appointment_date"`
	Status          ApplicationStatus `json:"status" db:"status"`
	RejectionNote   *string           `json:"rejection_note" db:"rejection_note"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// AgentIDs returns the dealer followed by the other agents, without duplicates.
func (a *Application) AgentIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a.OtherAgentIDs)+1)
	ids := make([]uuid.UUID, 0, len(a.OtherAgentIDs)+1)
	for _, id := range append([]uuid.UUID{a.AgentDealerID}, a.OtherAgentIDs...) {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ApplicationPatch carries the fields an application update may change.
// Nil fields are left alone. Status is not patchable; it only moves through
// the lifecycle decisions.
type ApplicationPatch struct {
	LandID          *uuid.UUID  `json:"land_id,omitempty"`
	ClientID        *uuid.UUID  `json:"client_id,omitempty"`
	LotIDs          []uuid.UUID `json:"lot_ids,omitempty"`
	AgentDealerID   *uuid.UUID  `json:"agent_dealer_id,omitempty"`
	OtherAgentIDs   []uuid.UUID `json:"other_agent_ids,omitempty"`
	AppointmentDate *time.Time  `json:"appointment_date,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p ApplicationPatch) Empty() bool {
	return p.LandID == nil && p.ClientID == nil && p.LotIDs == nil &&
		p.AgentDealerID == nil && p.OtherAgentIDs == nil && p.AppointmentDate == nil
}

// TouchesInventory reports whether the patch changes which lots are claimed.
func (p ApplicationPatch) TouchesInventory() bool {
	return p.LandID != nil || p.LotIDs != nil
}

// ApplicationDecision is the closed set of decisions on a pending
// application. Only Approve and Reject implement it.
type ApplicationDecision interface {
	applicationDecision()
}

// Approve reserves the application's lots and opens a reservation.
// ClientName overrides the name snapshotted onto the reservation.
type Approve struct {
	ClientName string
	Note       string
}

// Reject closes the application without touching inventory
type Reject struct {
	Note string
}

func (Approve) applicationDecision() {}
func (Reject) applicationDecision()  {}

// ParseApplicationDecision maps the wire value used by callers onto a decision.
func ParseApplicationDecision(status, clientName, note string) (ApplicationDecision, error) {
	switch ApplicationStatus(status) {
	case ApplicationApproved:
		return Approve{ClientName: clientName, Note: note}, nil
	case ApplicationRejected:
		return Reject{Note: note}, nil
	}
	return nil, &ValidationError{Field: "status", Message: "decision must be approved or rejected, got " + quote(status)}
}
