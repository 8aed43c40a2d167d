package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"landsale/models"
	"landsale/storage"
)

// Reservations tracks an approved application until it becomes a contract
// or ends as a cancellation or no-show.
type Reservations struct {
	q      *storage.Queries
	ledger *Ledger
}

func NewReservations(q *storage.Queries, ledger *Ledger) *Reservations {
	return &Reservations{q: q, ledger: ledger}
}

func (r *Reservations) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	res, err := r.q.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, &models.NotFoundError{Entity: "reservation", ID: id.String()}
	}
	return res, nil
}

// CreateFromApplication opens the reservation of an approved application.
// An empty clientName falls back to the client's full name.
func (r *Reservations) CreateFromApplication(ctx context.Context, app *models.Application, clientName string, note *string) (*models.Reservation, error) {
	existing, err := r.q.GetReservationByApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if existing != nil {
		return nil, &models.DuplicateError{Entity: "reservation", Key: "application " + app.ID.String()}
	}

	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		client, err := r.q.GetClient(ctx, app.ClientID)
		if err != nil {
			return nil, fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			return nil, &models.NotFoundError{Entity: "client", ID: app.ClientID.String()}
		}
		clientName = client.FullName()
	}

	now := time.Now().UTC()
	res := &models.Reservation{
		ID:              uuid.New(),
		ApplicationID:   uuid.NullUUID{UUID: app.ID, Valid: true},
		ClientName:      clientName,
		Status:          models.ReservationPending,
		Notes:           note,
		AppointmentDate: app.AppointmentDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.q.InsertReservation(ctx, res); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return res, nil
}

// Reject ends a pending reservation without a contract. It releases the
// application's lots and revokes the application with a note naming the
// outcome.
func (r *Reservations) Reject(ctx context.Context, id uuid.UUID, outcome models.ReservationOutcome, notes string, apps *Applications) (*models.Reservation, *models.Application, error) {
	to := outcome.Status()
	if to == "" {
		return nil, nil, &models.ValidationError{Field: "status", Message: "reservation decision must be cancellation or no_show"}
	}

	res, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !res.Status.CanTransition(to) {
		return nil, nil, &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("reservation is already %s and cannot become %s", res.Status, to),
		}
	}
	if !res.ApplicationID.Valid {
		return nil, nil, &models.NotFoundError{Entity: "application", ID: "reservation " + res.ID.String()}
	}

	if err := r.transition(ctx, res, to, optional(notes)); err != nil {
		return nil, nil, err
	}

	app, err := apps.Get(ctx, res.ApplicationID.UUID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.ledger.ReleaseLots(ctx, app.LandID, app.LotIDs); err != nil {
		return nil, nil, err
	}
	if err := apps.Revoke(ctx, app, composeNote(outcome, notes)); err != nil {
		return nil, nil, err
	}
	return res, app, nil
}

// MarkOnContract closes a pending reservation as converted. Only the
// contract finalizer calls it.
func (r *Reservations) MarkOnContract(ctx context.Context, res *models.Reservation) error {
	if !res.Status.CanTransition(models.ReservationOnContract) {
		return &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("reservation is already %s", res.Status),
		}
	}
	return r.transition(ctx, res, models.ReservationOnContract, nil)
}

func (r *Reservations) transition(ctx context.Context, res *models.Reservation, to models.ReservationStatus, notes *string) error {
	n, err := r.q.TransitionReservation(ctx, res.ID, res.Status, to, notes)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if n == 0 {
		return &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("reservation %s changed status concurrently", res.ID),
		}
	}
	res.Status = to
	if notes != nil {
		res.Notes = notes
	}
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func composeNote(outcome models.ReservationOutcome, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return outcome.String()
	}
	return outcome.String() + ": " + notes
}
