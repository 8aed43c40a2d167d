package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"landsale/models"
)

const applicationColumns = `id, land_id, client_id, agent_dealer_id, appointment_date, status, rejection_note, created_at, updated_at`

func scanApplication(row Row) (*models.Application, error) {
	var a models.Application
	var status string
	err := row.Scan(&a.ID, &a.LandID, &a.ClientID, &a.AgentDealerID, &a.AppointmentDate,
		&status, &a.RejectionNote, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.ApplicationStatus(status)
	return &a, nil
}

// InsertApplication writes the application row followed by its ordered lot
// and agent rows.
func (q *Queries) InsertApplication(ctx context.Context, a *models.Application) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.LandID, a.ClientID, a.AgentDealerID, a.AppointmentDate,
		string(a.Status), a.RejectionNote, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	if err := q.ReplaceApplicationLots(ctx, a.ID, a.LotIDs); err != nil {
		return err
	}
	return q.ReplaceApplicationAgents(ctx, a.ID, a.OtherAgentIDs)
}

// GetApplication loads the application with its lots and agents in
// submission order.
func (q *Queries) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	a, err := scanApplication(q.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := q.loadApplicationChildren(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// FindPendingApplication returns the pending application of a client on a
// land, if any.
func (q *Queries) FindPendingApplication(ctx context.Context, clientID, landID uuid.UUID) (*models.Application, error) {
	a, err := scanApplication(q.db.QueryRow(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE client_id = $1 AND land_id = $2 AND status = $3
		LIMIT 1`,
		clientID, landID, string(models.ApplicationPending)))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := q.loadApplicationChildren(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListApplications returns applications with the given status, newest first.
// An empty status lists all of them.
func (q *Queries) ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var apps []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		apps = append(apps, *a)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range apps {
		if err := q.loadApplicationChildren(ctx, &apps[i]); err != nil {
			return nil, err
		}
	}
	return apps, nil
}

// TransitionApplication moves an application from one status to another and
// stores the note. It matches no row unless the application is in from.
func (q *Queries) TransitionApplication(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, note *string) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE applications SET status = $3, rejection_note = COALESCE($4, rejection_note), updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), note, now())
}

// UpdateApplicationRow writes the scalar columns of a, leaving status alone.
func (q *Queries) UpdateApplicationRow(ctx context.Context, a *models.Application) error {
	_, err := q.db.Exec(ctx, `
		UPDATE applications SET
			land_id = $2, client_id = $3, agent_dealer_id = $4, appointment_date = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, a.LandID, a.ClientID, a.AgentDealerID, a.AppointmentDate, now())
	return err
}

func (q *Queries) ReplaceApplicationLots(ctx context.Context, applicationID uuid.UUID, lotIDs []uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM application_lots WHERE application_id = $1`, applicationID); err != nil {
		return fmt.Errorf("clear application lots: %w", err)
	}
	for i, lotID := range lotIDs {
		_, err := q.db.Exec(ctx, `
			INSERT INTO application_lots (application_id, lot_id, position) VALUES ($1, $2, $3)`,
			applicationID, lotID, i)
		if err != nil {
			return fmt.Errorf("insert application lot: %w", err)
		}
	}
	return nil
}

func (q *Queries) ReplaceApplicationAgents(ctx context.Context, applicationID uuid.UUID, agentIDs []uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM application_agents WHERE application_id = $1`, applicationID); err != nil {
		return fmt.Errorf("clear application agents: %w", err)
	}
	for i, agentID := range agentIDs {
		_, err := q.db.Exec(ctx, `
			INSERT INTO application_agents (application_id, agent_id, position) VALUES ($1, $2, $3)`,
			applicationID, agentID, i)
		if err != nil {
			return fmt.Errorf("insert application agent: %w", err)
		}
	}
	return nil
}

func (q *Queries) loadApplicationChildren(ctx context.Context, a *models.Application) error {
	lots, err := q.orderedIDs(ctx, `
		SELECT lot_id FROM application_lots WHERE application_id = $1 ORDER BY position`, a.ID)
	if err != nil {
		return fmt.Errorf("load application lots: %w", err)
	}
	agents, err := q.orderedIDs(ctx, `
		SELECT agent_id FROM application_agents WHERE application_id = $1 ORDER BY position`, a.ID)
	if err != nil {
		return fmt.Errorf("load application agents: %w", err)
	}
	a.LotIDs = lots
	a.OtherAgentIDs = agents
	return nil
}

func (q *Queries) orderedIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
