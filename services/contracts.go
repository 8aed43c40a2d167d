package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"landsale/documents"
	"landsale/models"
	"landsale/storage"
)

// ContractRequest is the payload of a contract finalization.
type ContractRequest struct {
	ApplicationID uuid.UUID
	ClientID      uuid.UUID
	Term          string
	AgentIDs      []uuid.UUID // defaults to the application's dealer and agents
}

// Contracts converts a pending reservation into a contract.
type Contracts struct {
	q            *storage.Queries
	ledger       *Ledger
	reservations *Reservations
}

func NewContracts(q *storage.Queries, ledger *Ledger, reservations *Reservations) *Contracts {
	return &Contracts{q: q, ledger: ledger, reservations: reservations}
}

// Create inserts the contract, closes the reservation as on_contract and
// marks the application's lots sold.
func (c *Contracts) Create(ctx context.Context, req ContractRequest, apps *Applications) (*models.Contract, *models.Application, *models.Reservation, error) {
	term := strings.TrimSpace(req.Term)
	if term == "" {
		return nil, nil, nil, &models.ValidationError{Field: "term", Message: "term is required"}
	}
	if err := checkAgentIDs("agents_ids", req.AgentIDs); err != nil {
		return nil, nil, nil, err
	}

	app, err := apps.Get(ctx, req.ApplicationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if app.ClientID != req.ClientID {
		return nil, nil, nil, &models.ValidationError{
			Field:   "client_id",
			Message: fmt.Sprintf("application %s does not belong to client %s", app.ID, req.ClientID),
		}
	}
	if app.Status != models.ApplicationApproved {
		return nil, nil, nil, &models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("application is %s; only approved applications can be contracted", app.Status),
		}
	}

	existing, err := c.q.GetContractByApplication(ctx, app.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get contract: %w", err)
	}
	if existing != nil {
		return nil, nil, nil, &models.DuplicateError{Entity: "contract", Key: "application " + app.ID.String()}
	}

	res, err := c.q.GetReservationByApplication(ctx, app.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil {
		return nil, nil, nil, &models.NotFoundError{Entity: "reservation", ID: "application " + app.ID.String()}
	}

	agentIDs := req.AgentIDs
	if len(agentIDs) == 0 {
		agentIDs = app.AgentIDs()
	}
	for _, id := range agentIDs {
		agent, err := c.q.GetAgent(ctx, id)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get agent: %w", err)
		}
		if agent == nil {
			return nil, nil, nil, &models.NotFoundError{Entity: "agent", ID: id.String()}
		}
	}

	contract := &models.Contract{
		ID:            uuid.New(),
		ClientID:      app.ClientID,
		AgentIDs:      agentIDs,
		ApplicationID: app.ID,
		ReservationID: res.ID,
		Term:          term,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.q.InsertContract(ctx, contract); err != nil {
		return nil, nil, nil, err
	}
	if err := c.reservations.MarkOnContract(ctx, res); err != nil {
		return nil, nil, nil, err
	}
	if err := c.ledger.MarkLotsSold(ctx, app.LotIDs); err != nil {
		return nil, nil, nil, err
	}
	return contract, app, res, nil
}

// Bundle resolves everything a document renderer needs for a contract.
func (c *Contracts) Bundle(ctx context.Context, contractID uuid.UUID) (*documents.Bundle, error) {
	contract, err := c.q.GetContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	if contract == nil {
		return nil, &models.NotFoundError{Entity: "contract", ID: contractID.String()}
	}

	app, err := c.q.GetApplication(ctx, contract.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return nil, &models.NotFoundError{Entity: "application", ID: contract.ApplicationID.String()}
	}
	client, err := c.q.GetClient(ctx, contract.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, &models.NotFoundError{Entity: "client", ID: contract.ClientID.String()}
	}
	land, err := c.q.GetLand(ctx, app.LandID)
	if err != nil {
		return nil, fmt.Errorf("get land: %w", err)
	}
	if land == nil {
		return nil, &models.NotFoundError{Entity: "land", ID: app.LandID.String()}
	}
	lots, err := c.q.GetLots(ctx, app.LotIDs)
	if err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	agents, err := c.q.GetAgents(ctx, contract.AgentIDs)
	if err != nil {
		return nil, fmt.Errorf("get agents: %w", err)
	}

	return &documents.Bundle{
		Contract:    *contract,
		Application: *app,
		Client:      *client,
		Land:        *land,
		Lots:        lots,
		Agents:      agents,
	}, nil
}
