package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"landsale/models"
	"landsale/storage"
)

// Applications is the application state machine. Approve and Reject are the
// only ways out of pending; Revoke is the compensation step of a reservation
// that ends without a contract.
type Applications struct {
	q            *storage.Queries
	ledger       *Ledger
	reservations *Reservations
}

func NewApplications(q *storage.Queries, ledger *Ledger, reservations *Reservations) *Applications {
	return &Applications{q: q, ledger: ledger, reservations: reservations}
}

// Get loads an application or returns a NotFoundError.
func (a *Applications) Get(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	app, err := a.q.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return nil, &models.NotFoundError{Entity: "application", ID: id.String()}
	}
	return app, nil
}

// Submit validates and inserts a new pending application.
func (a *Applications) Submit(ctx context.Context, app *models.Application) error {
	if err := validateApplication(app); err != nil {
		return err
	}

	existing, err := a.q.FindPendingApplication(ctx, app.ClientID, app.LandID)
	if err != nil {
		return fmt.Errorf("find pending application: %w", err)
	}
	if existing != nil {
		return &models.DuplicateError{
			Entity: "pending application",
			Key:    fmt.Sprintf("client %s on land %s", app.ClientID, app.LandID),
		}
	}

	if err := a.checkReferences(ctx, app); err != nil {
		return err
	}

	now := time.Now().UTC()
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	app.Status = models.ApplicationPending
	app.RejectionNote = nil
	app.CreatedAt = now
	app.UpdatedAt = now
	if err := a.q.InsertApplication(ctx, app); err != nil {
		return err
	}
	return nil
}

// Approve reserves the application's lots, marks it approved and opens its
// reservation.
func (a *Applications) Approve(ctx context.Context, id uuid.UUID, d models.Approve) (*models.Application, *models.Reservation, error) {
	app, err := a.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if app.Status != models.ApplicationPending {
		return nil, nil, transitionError(app, models.ApplicationApproved)
	}

	if err := a.ledger.ReserveLots(ctx, app.LandID, app.LotIDs); err != nil {
		return nil, nil, err
	}
	if err := a.transition(ctx, app, models.ApplicationApproved, nil); err != nil {
		return nil, nil, err
	}

	res, err := a.reservations.CreateFromApplication(ctx, app, d.ClientName, optional(d.Note))
	if err != nil {
		return nil, nil, err
	}
	return app, res, nil
}

// Reject closes a pending application. Pending applications hold no lots,
// so inventory is untouched.
func (a *Applications) Reject(ctx context.Context, id uuid.UUID, d models.Reject) (*models.Application, error) {
	app, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationPending {
		return nil, transitionError(app, models.ApplicationRejected)
	}
	if err := a.transition(ctx, app, models.ApplicationRejected, optional(d.Note)); err != nil {
		return nil, err
	}
	return app, nil
}

// Revoke moves an approved application to rejected after its reservation
// was cancelled or missed. The caller has already released the lots.
func (a *Applications) Revoke(ctx context.Context, app *models.Application, note string) error {
	if app.Status != models.ApplicationApproved {
		return transitionError(app, models.ApplicationRejected)
	}
	return a.transition(ctx, app, models.ApplicationRejected, &note)
}

// Update applies a field patch. Lots and land can only change while the
// application is pending.
func (a *Applications) Update(ctx context.Context, id uuid.UUID, patch models.ApplicationPatch) (*models.Application, error) {
	if patch.Empty() {
		return nil, &models.ValidationError{Message: "no fields to update"}
	}

	app, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.TouchesInventory() && app.Status != models.ApplicationPending {
		return nil, &models.ValidationError{
			Field:   "lot_ids",
			Message: fmt.Sprintf("application is %s; lots can only change while pending", app.Status),
		}
	}

	next := *app
	if patch.LandID != nil {
		next.LandID = *patch.LandID
	}
	if patch.ClientID != nil {
		next.ClientID = *patch.ClientID
	}
	if patch.LotIDs != nil {
		next.LotIDs = patch.LotIDs
	}
	if patch.AgentDealerID != nil {
		next.AgentDealerID = *patch.AgentDealerID
	}
	if patch.OtherAgentIDs != nil {
		next.OtherAgentIDs = patch.OtherAgentIDs
	}
	if patch.AppointmentDate != nil {
		next.AppointmentDate = *patch.AppointmentDate
	}

	if err := validateApplication(&next); err != nil {
		return nil, err
	}
	if next.Status == models.ApplicationPending && (next.ClientID != app.ClientID || next.LandID != app.LandID) {
		other, err := a.q.FindPendingApplication(ctx, next.ClientID, next.LandID)
		if err != nil {
			return nil, fmt.Errorf("find pending application: %w", err)
		}
		if other != nil && other.ID != app.ID {
			return nil, &models.DuplicateError{
				Entity: "pending application",
				Key:    fmt.Sprintf("client %s on land %s", next.ClientID, next.LandID),
			}
		}
	}

	// lot availability is only re-checked when the claimed lots change
	if next.Status == models.ApplicationPending && patch.TouchesInventory() {
		if err := a.checkReferences(ctx, &next); err != nil {
			return nil, err
		}
	} else if err := a.checkParties(ctx, &next); err != nil {
		return nil, err
	}

	if err := a.q.UpdateApplicationRow(ctx, &next); err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if patch.LotIDs != nil {
		if err := a.q.ReplaceApplicationLots(ctx, next.ID, next.LotIDs); err != nil {
			return nil, err
		}
	}
	if patch.OtherAgentIDs != nil {
		if err := a.q.ReplaceApplicationAgents(ctx, next.ID, next.OtherAgentIDs); err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = time.Now().UTC()
	return &next, nil
}

func (a *Applications) transition(ctx context.Context, app *models.Application, to models.ApplicationStatus, note *string) error {
	if !app.Status.CanTransition(to) {
		return transitionError(app, to)
	}
	n, err := a.q.TransitionApplication(ctx, app.ID, app.Status, to, note)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if n == 0 {
		return &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("application %s changed status concurrently", app.ID),
		}
	}
	app.Status = to
	if note != nil {
		app.RejectionNote = note
	}
	app.UpdatedAt = time.Now().UTC()
	return nil
}

// checkReferences verifies land, client, agents and that every lot belongs
// to the land and is still available.
func (a *Applications) checkReferences(ctx context.Context, app *models.Application) error {
	land, err := a.q.GetLand(ctx, app.LandID)
	if err != nil {
		return fmt.Errorf("get land: %w", err)
	}
	if land == nil {
		return &models.NotFoundError{Entity: "land", ID: app.LandID.String()}
	}
	if err := a.checkParties(ctx, app); err != nil {
		return err
	}

	for _, id := range app.LotIDs {
		lot, err := a.q.GetLot(ctx, id)
		if err != nil {
			return fmt.Errorf("get lot: %w", err)
		}
		if lot == nil {
			return &models.NotFoundError{Entity: "lot", ID: id.String()}
		}
		if lot.LandID != app.LandID {
			return &models.ValidationError{
				Field:   "lot_ids",
				Message: fmt.Sprintf("%s does not belong to %s", lot.Label(), land.Name),
			}
		}
		if lot.Status != models.LotStatusAvailable {
			return &models.InventoryConsistencyError{
				LotID:  id.String(),
				Reason: fmt.Sprintf("%s is %s", lot.Label(), lot.Status),
			}
		}
	}
	return nil
}

func (a *Applications) checkParties(ctx context.Context, app *models.Application) error {
	client, err := a.q.GetClient(ctx, app.ClientID)
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return &models.NotFoundError{Entity: "client", ID: app.ClientID.String()}
	}
	for _, id := range app.AgentIDs() {
		agent, err := a.q.GetAgent(ctx, id)
		if err != nil {
			return fmt.Errorf("get agent: %w", err)
		}
		if agent == nil {
			return &models.NotFoundError{Entity: "agent", ID: id.String()}
		}
	}
	return nil
}

func validateApplication(app *models.Application) error {
	switch {
	case app.LandID == uuid.Nil:
		return &models.ValidationError{Field: "land_id", Message: "land is required"}
	case app.ClientID == uuid.Nil:
		return &models.ValidationError{Field: "client_id", Message: "client is required"}
	case app.AgentDealerID == uuid.Nil:
		return &models.ValidationError{Field: "agent_dealer_id", Message: "dealer is required"}
	case app.AppointmentDate.IsZero():
		return &models.ValidationError{Field: "appointment_date", Message: "appointment date is required"}
	}
	if err := checkAgentIDs("other_agent_ids", app.OtherAgentIDs); err != nil {
		return err
	}
	return checkLotIDs(app.LotIDs)
}

func checkAgentIDs(field string, ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			return &models.ValidationError{Field: field, Message: "agent ids must be set and distinct"}
		}
		seen[id] = true
	}
	return nil
}

func transitionError(app *models.Application, to models.ApplicationStatus) error {
	return &models.ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("application is already %s and cannot become %s", app.Status, to),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
