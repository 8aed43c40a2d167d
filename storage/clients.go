package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"landsale/models"
)

const clientColumns = `id, first_name, middle_name, last_name, email, contact, address, marital_status, status, photo_ref, created_at, updated_at`

func scanClient(row Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.FirstName, &c.MiddleName, &c.LastName, &c.Email, &c.Contact,
		&c.Address, &c.MaritalStatus, &c.Status, &c.PhotoRef, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *Queries) InsertClient(ctx context.Context, c *models.Client) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.FirstName, c.MiddleName, c.LastName, c.Email, c.Contact,
		c.Address, c.MaritalStatus, c.Status, c.PhotoRef, c.CreatedAt, c.UpdatedAt)
	return err
}

func (q *Queries) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	c, err := scanClient(q.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// GetClientByEmail matches on the normalized (lowercased) address.
func (q *Queries) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	c, err := scanClient(q.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// =============================================================================
// Agents
// =============================================================================

const agentColumns = `id, full_name, email, phone, role, created_at`

func scanAgent(row Row) (*models.Agent, error) {
	var a models.Agent
	var role string
	if err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.Phone, &role, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Role = models.AgentRole(role)
	return &a, nil
}

func (q *Queries) InsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.FullName, a.Email, a.Phone, string(a.Role), a.CreatedAt)
	return err
}

func (q *Queries) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	a, err := scanAgent(q.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetAgents returns the agents in the order of ids. Missing ids are skipped.
func (q *Queries) GetAgents(ctx context.Context, ids []uuid.UUID) ([]models.Agent, error) {
	agents := make([]models.Agent, 0, len(ids))
	for _, id := range ids {
		a, err := q.GetAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			agents = append(agents, *a)
		}
	}
	return agents, nil
}
