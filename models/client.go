package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// Client is a prospective buyer
type Client struct {
	ID            uuid.UUID `json:"id" db:"id"`
	FirstName     string    `json:"first_name" db:"first_name"`
	MiddleName    string    `json:"middle_name" db:"middle_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Email         string    `json:"email" db:"email"`
	Contact       string    `json:"contact" db:"contact"`
	Address       string    `json:"address" db:"address"`
	MaritalStatus string    `json:"marital_status" db:"marital_status"`
	Status        string    `json:"status" db:"status"`
	PhotoRef      *string   `json:"photo_ref" db:"photo_ref"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins the non-empty name parts.
func (c *Client) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.FirstName, c.MiddleName, c.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type AgentRole string

const (
	AgentRoleDealer AgentRole = "dealer"
	AgentRoleAgent  AgentRole = "agent"
)

// Agent is a sales agent or dealer credited on applications and contracts
type Agent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Role      AgentRole `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
