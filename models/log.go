package models

import "time"

// Activity actions recorded alongside each lifecycle event
const (
	ActionSubmitted   = "submitted"
	ActionApproved    = "approved"
	ActionRejected    = "rejected"
	ActionUpdated     = "updated"
	ActionReserved    = "reserved"
	ActionCancelled   = "cancelled"
	ActionNoShow      = "no_show"
	ActionContracted  = "contracted"
	ActionRecounted   = "recounted"
	ActionLotsAdded   = "lots_added"
	ActionLandCreated = "land_created"
	ActionLandDeleted = "land_deleted"
)

type ActivityLog struct {
	ID        int64     `json:"id" db:"id"`
	Entity    string    `json:"entity" db:"entity"` // land, application, reservation, contract
	EntityID  string    `json:"entity_id" db:"entity_id"`
	Action    string    `json:"action" db:"action"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
