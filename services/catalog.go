package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"landsale/identity"
	"landsale/metrics"
	"landsale/models"
	"landsale/storage"
)

// Catalog manages lands, lots, clients and agents: the records the lifecycle
// reads but never creates.
type Catalog struct {
	store storage.Store
	log   *zap.Logger
}

func NewCatalog(store storage.Store, log *zap.Logger) *Catalog {
	return &Catalog{store: store, log: log}
}

// CreateLand inserts a land with its initial lots. Counters start at zero
// and are raised by the ledger as the lots go in.
func (c *Catalog) CreateLand(ctx context.Context, land *models.Land, lots []models.Lot) (*models.Land, error) {
	land.Name = identity.NormalizeName(land.Name)
	if land.Name == "" {
		return nil, &models.ValidationError{Field: "name", Message: "land name is required"}
	}
	if land.TotalArea.IsNegative() {
		return nil, &models.ValidationError{Field: "total_area", Message: "total area cannot be negative"}
	}

	var created *models.Land
	err := storage.InTx(ctx, c.store, func(q *storage.Queries) error {
		existing, err := q.GetLandByName(ctx, land.Name)
		if err != nil {
			return fmt.Errorf("get land: %w", err)
		}
		if existing != nil {
			return &models.DuplicateError{Entity: "land", Key: land.Name}
		}

		now := time.Now().UTC()
		if land.ID == uuid.Nil {
			land.ID = uuid.New()
		}
		land.TotalLots, land.Available, land.LotsSold = 0, 0, 0
		land.CreatedAt, land.UpdatedAt = now, now
		if err := q.CreateLand(ctx, land); err != nil {
			return fmt.Errorf("create land: %w", err)
		}

		if len(lots) > 0 {
			if _, err := NewLedger(q).AddLots(ctx, land.ID, lots); err != nil {
				return err
			}
		}
		if err := q.InsertActivity(ctx, "land", land.ID.String(), models.ActionLandCreated,
			fmt.Sprintf("%s with %d lot(s)", land.Name, len(lots))); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}

		created, err = q.GetLand(ctx, land.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("land created", zap.String("land", created.Name), zap.Int("lots", created.TotalLots))
	return created, nil
}

// AddLots appends available lots to an existing land.
func (c *Catalog) AddLots(ctx context.Context, landID uuid.UUID, lots []models.Lot) ([]models.Lot, error) {
	var added []models.Lot
	err := storage.InTx(ctx, c.store, func(q *storage.Queries) error {
		var err error
		added, err = NewLedger(q).AddLots(ctx, landID, lots)
		if err != nil {
			return err
		}
		return q.InsertActivity(ctx, "land", landID.String(), models.ActionLotsAdded,
			fmt.Sprintf("%d lot(s) added", len(added)))
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("lots added", zap.Stringer("land", landID), zap.Int("lots", len(added)))
	return added, nil
}

// DeleteLand removes a land and its lots. Lands with applications or with
// lots that are not available cannot be deleted.
func (c *Catalog) DeleteLand(ctx context.Context, landID uuid.UUID) error {
	err := storage.InTx(ctx, c.store, func(q *storage.Queries) error {
		land, err := q.GetLand(ctx, landID)
		if err != nil {
			return fmt.Errorf("get land: %w", err)
		}
		if land == nil {
			return &models.NotFoundError{Entity: "land", ID: landID.String()}
		}
		if land.LotsSold > 0 {
			return &models.InventoryConsistencyError{
				LandID: landID.String(),
				Reason: fmt.Sprintf("%d lot(s) are reserved or sold", land.LotsSold),
			}
		}
		apps, err := q.CountApplicationsOnLand(ctx, landID)
		if err != nil {
			return fmt.Errorf("count applications: %w", err)
		}
		if apps > 0 {
			return &models.InventoryConsistencyError{
				LandID: landID.String(),
				Reason: fmt.Sprintf("%d application(s) reference this land", apps),
			}
		}
		if _, err := q.DeleteLand(ctx, landID); err != nil {
			return fmt.Errorf("delete land: %w", err)
		}
		return q.InsertActivity(ctx, "land", landID.String(), models.ActionLandDeleted, land.Name)
	})
	if err != nil {
		return err
	}
	c.log.Info("land deleted", zap.Stringer("land", landID))
	return nil
}

// RegisterClient inserts a client. Emails are unique ignoring case.
func (c *Catalog) RegisterClient(ctx context.Context, client *models.Client) (*models.Client, error) {
	client.FirstName = identity.NormalizeName(client.FirstName)
	client.MiddleName = identity.NormalizeName(client.MiddleName)
	client.LastName = identity.NormalizeName(client.LastName)
	client.Email = identity.NormalizeEmail(client.Email)
	switch {
	case client.FirstName == "" || client.LastName == "":
		return nil, &models.ValidationError{Field: "name", Message: "first and last name are required"}
	case client.Email == "" || !strings.Contains(client.Email, "@"):
		return nil, &models.ValidationError{Field: "email", Message: "a valid email is required"}
	}

	err := storage.InTx(ctx, c.store, func(q *storage.Queries) error {
		existing, err := q.GetClientByEmail(ctx, client.Email)
		if err != nil {
			return fmt.Errorf("get client: %w", err)
		}
		if existing != nil {
			return &models.DuplicateError{Entity: "client", Key: client.Email}
		}

		now := time.Now().UTC()
		if client.ID == uuid.Nil {
			client.ID = uuid.New()
		}
		if client.Status == "" {
			client.Status = models.ClientStatusActive
		}
		client.CreatedAt, client.UpdatedAt = now, now
		if err := q.InsertClient(ctx, client); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Catalog) RegisterAgent(ctx context.Context, agent *models.Agent) (*models.Agent, error) {
	agent.FullName = identity.NormalizeName(agent.FullName)
	agent.Email = identity.NormalizeEmail(agent.Email)
	if agent.FullName == "" {
		return nil, &models.ValidationError{Field: "full_name", Message: "agent name is required"}
	}
	switch agent.Role {
	case "":
		agent.Role = models.AgentRoleAgent
	case models.AgentRoleAgent, models.AgentRoleDealer:
	default:
		return nil, &models.ValidationError{Field: "role", Message: "role must be dealer or agent"}
	}
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	agent.CreatedAt = time.Now().UTC()

	if err := storage.New(c.store).InsertAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return agent, nil
}

// Audit compares every land's counters with its lot statuses. With repair
// set, drifted counters are rewritten from the lots in the same transaction
// that read them.
func (c *Catalog) Audit(ctx context.Context, repair bool) ([]Drift, error) {
	lands, err := storage.New(c.store).ListLands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lands: %w", err)
	}
	metrics.AuditRuns.Inc()

	var drifted []Drift
	for _, land := range lands {
		var d *Drift
		err := storage.InTx(ctx, c.store, func(q *storage.Queries) error {
			ledger := NewLedger(q)
			var err error
			if !repair {
				d, err = ledger.Audit(ctx, land.ID)
				return err
			}
			d, err = ledger.Recount(ctx, land.ID)
			if err != nil || !d.Drifted() {
				return err
			}
			return q.InsertActivity(ctx, "land", land.ID.String(), models.ActionRecounted, d.String())
		})
		if err != nil {
			return drifted, fmt.Errorf("audit %s: %w", land.Name, err)
		}

		if !d.Drifted() {
			metrics.LandDrift.WithLabelValues(land.Name).Set(0)
			continue
		}
		drifted = append(drifted, *d)
		if repair {
			metrics.LandDrift.WithLabelValues(land.Name).Set(0)
			c.log.Warn("land counters repaired", zap.String("drift", d.String()))
		} else {
			metrics.LandDrift.WithLabelValues(land.Name).Set(1)
			c.log.Warn("land counters drifted", zap.String("drift", d.String()))
		}
	}
	return drifted, nil
}
