package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxDocumentAttempts bounds how often the document worker retries a contract.
const MaxDocumentAttempts = 3

// DocumentClaimTTL is how long a document attempt holds its contract before
// another worker may take it over.
const DocumentClaimTTL = 10 * time.Minute

// Contract is the terminal record of a sale
type Contract struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	ClientID         uuid.UUID   `json:"client_id" db:"client_id"`
	AgentIDs         []uuid.UUID `json:"agents_ids"`
	ApplicationID    uuid.UUID   `json:"application_id" db:"application_id"`
	ReservationID    uuid.UUID   `json:"reservation_id" db:"reservation_id"`
	DocumentRef      *string     `json:"contract_document_ref" db:"document_ref"`
	DocumentError    *string     `json:"document_error,omitempty" db:"document_error"`
	DocumentAttempts int         `json:"document_attempts" db:"document_attempts"`
	Term             string      `json:"term" db:"term"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// NeedsDocument reports whether the document worker should pick the contract up.
func (c *Contract) NeedsDocument() bool {
	return c.DocumentRef == nil && c.DocumentAttempts < MaxDocumentAttempts
}
