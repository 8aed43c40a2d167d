package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"landsale/metrics"
	"landsale/models"
	"landsale/storage"
)

// Result is the common part of every lifecycle outcome. Err keeps the typed
// cause for errors.As; Message is safe to show to a caller.
type Result struct {
	Success bool
	Message string
	Err     error
}

type ApplicationResult struct {
	Result
	Application *models.Application
}

type DecisionResult struct {
	Result
	Application *models.Application
	Reservation *models.Reservation // set on approval
}

type ReservationResult struct {
	Result
	Reservation *models.Reservation
	Application *models.Application
}

type ContractResult struct {
	Result
	Contract    *models.Contract
	Application *models.Application
	Reservation *models.Reservation
	// DocumentError is set when the contract committed but its document
	// could not be rendered or uploaded. The document worker retries it.
	DocumentError error
}

// ReservationRequest is the manual path where an agent books lots directly.
// It is recorded as an application that is submitted and approved at once.
type ReservationRequest struct {
	LandID          uuid.UUID
	ClientID        uuid.UUID
	LotIDs          []uuid.UUID
	AgentDealerID   uuid.UUID
	OtherAgentIDs   []uuid.UUID
	AppointmentDate time.Time
	ClientName      string
	Note            string
}

// Lifecycle is the only component that opens units of work for lifecycle
// events. Each method runs one transaction and commits or rolls back as a
// whole.
type Lifecycle struct {
	store storage.Store
	docs  *DocumentService
	log   *zap.Logger
}

// NewLifecycle wires the orchestrator. docs may be nil, in which case
// contract documents are left to the document worker.
func NewLifecycle(store storage.Store, docs *DocumentService, log *zap.Logger) *Lifecycle {
	return &Lifecycle{store: store, docs: docs, log: log}
}

// unit groups the components bound to one transaction.
type unit struct {
	q            *storage.Queries
	ledger       *Ledger
	apps         *Applications
	reservations *Reservations
	contracts    *Contracts
}

func newUnit(q *storage.Queries) *unit {
	ledger := NewLedger(q)
	reservations := NewReservations(q, ledger)
	return &unit{
		q:            q,
		ledger:       ledger,
		apps:         NewApplications(q, ledger, reservations),
		reservations: reservations,
		contracts:    NewContracts(q, ledger, reservations),
	}
}

func (u *unit) record(ctx context.Context, entity string, id uuid.UUID, action, message string) error {
	if err := u.q.InsertActivity(ctx, entity, id.String(), action, message); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (l *Lifecycle) SubmitApplication(ctx context.Context, app *models.Application) ApplicationResult {
	started := time.Now()
	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		if err := u.apps.Submit(ctx, app); err != nil {
			return err
		}
		return u.record(ctx, "application", app.ID, models.ActionSubmitted,
			fmt.Sprintf("%d lot(s) on land %s", len(app.LotIDs), app.LandID))
	})

	res := ApplicationResult{Result: l.finish("submit_application", "submit application", started, err, "application submitted")}
	if err == nil {
		res.Application = app
	}
	return res
}

// DecideApplication approves or rejects a pending application.
func (l *Lifecycle) DecideApplication(ctx context.Context, id uuid.UUID, decision models.ApplicationDecision) DecisionResult {
	started := time.Now()
	var out DecisionResult
	event, action, okMsg := "decide_application", "decide application", ""

	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		switch d := decision.(type) {
		case models.Approve:
			event, action, okMsg = "approve_application", "approve application", "application approved"
			app, res, err := u.apps.Approve(ctx, id, d)
			if err != nil {
				return err
			}
			out.Application, out.Reservation = app, res
			if err := u.record(ctx, "application", app.ID, models.ActionApproved, d.Note); err != nil {
				return err
			}
			return u.record(ctx, "reservation", res.ID, models.ActionReserved,
				fmt.Sprintf("%d lot(s) reserved for %s", len(app.LotIDs), res.ClientName))
		case models.Reject:
			event, action, okMsg = "reject_application", "reject application", "application rejected"
			app, err := u.apps.Reject(ctx, id, d)
			if err != nil {
				return err
			}
			out.Application = app
			return u.record(ctx, "application", app.ID, models.ActionRejected, d.Note)
		default:
			return &models.ValidationError{Field: "status", Message: "decision must be approved or rejected"}
		}
	})

	out.Result = l.finish(event, action, started, err, okMsg)
	if err != nil {
		out.Application, out.Reservation = nil, nil
		return out
	}
	if out.Reservation != nil {
		metrics.LotsMoved.WithLabelValues(string(models.LotStatusReserved)).Add(float64(len(out.Application.LotIDs)))
	}
	return out
}

// CreateReservation books lots directly. The request goes through the same
// submit and approve steps as an application, in one transaction.
func (l *Lifecycle) CreateReservation(ctx context.Context, req ReservationRequest) DecisionResult {
	started := time.Now()
	var out DecisionResult

	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		app := &models.Application{
			LandID:          req.LandID,
			ClientID:        req.ClientID,
			LotIDs:          req.LotIDs,
			AgentDealerID:   req.AgentDealerID,
			OtherAgentIDs:   req.OtherAgentIDs,
			AppointmentDate: req.AppointmentDate,
		}
		if err := u.apps.Submit(ctx, app); err != nil {
			return err
		}
		app, res, err := u.apps.Approve(ctx, app.ID, models.Approve{ClientName: req.ClientName, Note: req.Note})
		if err != nil {
			return err
		}
		out.Application, out.Reservation = app, res
		if err := u.record(ctx, "application", app.ID, models.ActionApproved, "created with a direct reservation"); err != nil {
			return err
		}
		return u.record(ctx, "reservation", res.ID, models.ActionReserved,
			fmt.Sprintf("%d lot(s) reserved for %s", len(app.LotIDs), res.ClientName))
	})

	out.Result = l.finish("create_reservation", "create reservation", started, err, "reservation created")
	if err != nil {
		out.Application, out.Reservation = nil, nil
		return out
	}
	metrics.LotsMoved.WithLabelValues(string(models.LotStatusReserved)).Add(float64(len(out.Application.LotIDs)))
	return out
}

// DecideReservation ends a pending reservation as a cancellation or no-show,
// releasing its lots and rejecting its application.
func (l *Lifecycle) DecideReservation(ctx context.Context, id uuid.UUID, outcome models.ReservationOutcome, notes string) ReservationResult {
	started := time.Now()
	var out ReservationResult
	released := 0

	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		res, app, err := u.reservations.Reject(ctx, id, outcome, notes, u.apps)
		if err != nil {
			return err
		}
		out.Reservation, out.Application = res, app
		released = len(app.LotIDs)

		action := models.ActionCancelled
		if outcome == models.OutcomeNoShow {
			action = models.ActionNoShow
		}
		if err := u.record(ctx, "reservation", res.ID, action, notes); err != nil {
			return err
		}
		return u.record(ctx, "application", app.ID, models.ActionRejected, deref(app.RejectionNote))
	})

	out.Result = l.finish("decide_reservation", "update reservation", started, err, "reservation marked "+outcome.String())
	if err != nil {
		out.Reservation, out.Application = nil, nil
		return out
	}
	metrics.LotsMoved.WithLabelValues(string(models.LotStatusAvailable)).Add(float64(released))
	return out
}

// FinalizeContract converts the pending reservation of an approved
// application into a contract and marks its lots sold. The document is
// rendered after commit; its failure never undoes the contract.
func (l *Lifecycle) FinalizeContract(ctx context.Context, req ContractRequest) ContractResult {
	started := time.Now()
	var out ContractResult

	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		contract, app, res, err := u.contracts.Create(ctx, req, u.apps)
		if err != nil {
			return err
		}
		out.Contract, out.Application, out.Reservation = contract, app, res
		return u.record(ctx, "contract", contract.ID, models.ActionContracted,
			fmt.Sprintf("%d lot(s) sold, term %s", len(app.LotIDs), contract.Term))
	})

	out.Result = l.finish("finalize_contract", "create contract", started, err, "contract created")
	if err != nil {
		out.Contract, out.Application, out.Reservation = nil, nil, nil
		return out
	}
	metrics.LotsMoved.WithLabelValues(string(models.LotStatusSold)).Add(float64(len(out.Application.LotIDs)))

	if l.docs != nil {
		ref, docErr := l.docs.Attach(ctx, out.Contract.ID)
		if !errors.Is(docErr, ErrDocumentBusy) {
			out.Contract.DocumentAttempts++
		}
		if docErr != nil {
			msg := docErr.Error()
			out.Contract.DocumentError = &msg
			out.DocumentError = docErr
			out.Message = "contract created; document pending: " + msg
			l.log.Warn("contract document failed",
				zap.Stringer("contract", out.Contract.ID), zap.Error(docErr))
		} else {
			out.Contract.DocumentRef = &ref
		}
	}
	return out
}

// UpdateApplication patches application fields. Status is not patchable.
func (l *Lifecycle) UpdateApplication(ctx context.Context, id uuid.UUID, patch models.ApplicationPatch) ApplicationResult {
	started := time.Now()
	var out ApplicationResult

	err := storage.InTx(ctx, l.store, func(q *storage.Queries) error {
		u := newUnit(q)
		app, err := u.apps.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		out.Application = app
		return u.record(ctx, "application", app.ID, models.ActionUpdated, patchSummary(patch))
	})

	out.Result = l.finish("update_application", "update application", started, err, "application updated")
	if err != nil {
		out.Application = nil
	}
	return out
}

// finish turns the unit-of-work error into a Result, logs it and records
// metrics. Domain errors keep their message; anything else is hidden
// behind "could not <action>".
func (l *Lifecycle) finish(event, action string, started time.Time, err error, okMsg string) Result {
	metrics.ObserveEvent(event, outcome(err), started)

	if err == nil {
		l.log.Info(okMsg, zap.String("event", event), zap.Duration("took", time.Since(started)))
		return Result{Success: true, Message: okMsg}
	}
	if models.IsDomain(err) {
		l.log.Info("lifecycle event refused", zap.String("event", event), zap.Error(err))
		return Result{Message: err.Error(), Err: err}
	}
	l.log.Error("lifecycle event failed", zap.String("event", event), zap.Error(err))
	return Result{Message: "could not " + action, Err: err}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case models.IsValidation(err):
		return "validation"
	case models.IsDuplicate(err):
		return "duplicate"
	case models.IsNotFound(err):
		return "not_found"
	case models.IsInventoryConflict(err):
		return "inventory"
	}
	return "error"
}

func patchSummary(p models.ApplicationPatch) string {
	var fields []string
	if p.LandID != nil {
		fields = append(fields, "land_id")
	}
	if p.ClientID != nil {
		fields = append(fields, "client_id")
	}
	if p.LotIDs != nil {
		fields = append(fields, "lot_ids")
	}
	if p.AgentDealerID != nil {
		fields = append(fields, "agent_dealer_id")
	}
	if p.OtherAgentIDs != nil {
		fields = append(fields, "other_agent_ids")
	}
	if p.AppointmentDate != nil {
		fields = append(fields, "appointment_date")
	}
	return "changed " + strings.Join(fields, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
