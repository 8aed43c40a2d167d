package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"landsale/models"
)

const contractColumns = `id, client_id, application_id, reservation_id, document_ref, document_error, document_attempts, term, created_at`

func scanContract(row Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.ClientID, &c.ApplicationID, &c.ReservationID, &c.DocumentRef,
		&c.DocumentError, &c.DocumentAttempts, &c.Term, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *Queries) InsertContract(ctx context.Context, c *models.Contract) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.ClientID, c.ApplicationID, c.ReservationID, c.DocumentRef,
		c.DocumentError, c.DocumentAttempts, c.Term, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	for i, agentID := range c.AgentIDs {
		_, err := q.db.Exec(ctx, `
			INSERT INTO contract_agents (contract_id, agent_id, position) VALUES ($1, $2, $3)`,
			c.ID, agentID, i)
		if err != nil {
			return fmt.Errorf("insert contract agent: %w", err)
		}
	}
	return nil
}

func (q *Queries) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return q.getContract(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
}

func (q *Queries) GetContractByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Contract, error) {
	return q.getContract(ctx, `SELECT `+contractColumns+` FROM contracts WHERE application_id = $1`, applicationID)
}

func (q *Queries) getContract(ctx context.Context, query string, arg any) (*models.Contract, error) {
	c, err := scanContract(q.db.QueryRow(ctx, query, arg))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	agents, err := q.orderedIDs(ctx, `
		SELECT agent_id FROM contract_agents WHERE contract_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load contract agents: %w", err)
	}
	c.AgentIDs = agents
	return c, nil
}

// ListContractsNeedingDocument returns contracts without a document that
// still have attempts left and are not claimed by a running attempt, oldest
// first. A claim older than staleBefore counts as abandoned.
func (q *Queries) ListContractsNeedingDocument(ctx context.Context, staleBefore time.Time, limit int) ([]models.Contract, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE document_ref IS NULL AND document_attempts < $1
		  AND (document_claimed_at IS NULL OR document_claimed_at < $2)
		ORDER BY created_at
		LIMIT $3`, models.MaxDocumentAttempts, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

// ClaimContractDocument takes the document of a contract for one attempt and
// counts that attempt. It returns false when the document already exists, the
// attempts are used up, or another attempt holds a claim newer than
// staleBefore.
func (q *Queries) ClaimContractDocument(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	n, err := q.db.Exec(ctx, `
		UPDATE contracts SET document_attempts = document_attempts + 1, document_claimed_at = $2
		WHERE id = $1 AND document_ref IS NULL AND document_attempts < $3
		  AND (document_claimed_at IS NULL OR document_claimed_at < $4)`,
		id, now, models.MaxDocumentAttempts, staleBefore)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetContractDocument stores the uploaded document key, clears any previous
// failure and releases the claim.
func (q *Queries) SetContractDocument(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE contracts SET document_ref = $2, document_error = NULL, document_claimed_at = NULL
		WHERE id = $1`, id, ref)
	return err
}

// RecordContractDocumentError stores a failed render or upload attempt and
// releases the claim.
func (q *Queries) RecordContractDocumentError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE contracts SET document_error = $2, document_claimed_at = NULL
		WHERE id = $1`, id, msg)
	return err
}
