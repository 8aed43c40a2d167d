package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"landsale/models"
)

const reservationColumns = `id, application_id, client_name, status, notes, appointment_date, created_at, updated_at`

func scanReservation(row Row) (*models.Reservation, error) {
	var r models.Reservation
	var status string
	err := row.Scan(&r.ID, &r.ApplicationID, &r.ClientName, &status, &r.Notes,
		&r.AppointmentDate, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)
	return &r, nil
}

func (q *Queries) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.ApplicationID, r.ClientName, string(r.Status), r.Notes,
		r.AppointmentDate, r.CreatedAt, r.UpdatedAt)
	return err
}

func (q *Queries) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	r, err := scanReservation(q.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (q *Queries) GetReservationByApplication(ctx context.Context, applicationID uuid.UUID) (*models.Reservation, error) {
	r, err := scanReservation(q.db.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE application_id = $1`, applicationID))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// TransitionReservation moves a reservation out of from. A nil notes keeps
// the stored notes.
func (q *Queries) TransitionReservation(ctx context.Context, id uuid.UUID, from, to models.ReservationStatus, notes *string) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE reservations SET status = $3, notes = COALESCE($4, notes), updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), notes, now())
}
