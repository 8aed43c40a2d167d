package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"landsale/documents"
	"landsale/models"
	"landsale/storage"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *storage.SQLiteStore
	catalog *Catalog
	life    *Lifecycle
	docsDir string

	land   *models.Land
	lots   []models.Lot
	client *models.Client
	dealer *models.Agent
	agent  *models.Agent
}

func openTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "landsale.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// newFixture builds a store with one land of lotCount lots, one client, a
// dealer and an agent. Contract documents go to a temp directory.
func newFixture(t *testing.T, lotCount int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := openTestStore(t)
	log := zap.NewNop()

	docsDir := t.TempDir()
	disk, err := storage.NewDiskDocumentStore(docsDir)
	require.NoError(t, err)
	docs := NewDocumentService(store, documents.NewSheetRenderer(), disk, log)

	f := &fixture{
		t:       t,
		ctx:     ctx,
		store:   store,
		catalog: NewCatalog(store, log),
		life:    NewLifecycle(store, docs, log),
		docsDir: docsDir,
	}

	lots := make([]models.Lot, lotCount)
	for i := range lots {
		lots[i] = models.Lot{
			BlockNumber: "1",
			LotNumber:   fmt.Sprintf("%02d", i+1),
			Size:        decimal.NewFromInt(150),
			PricePerSqm: decimal.NewFromInt(4500),
			LotType:     "inner",
		}
	}
	f.land, err = f.catalog.CreateLand(ctx, &models.Land{Name: "Green Meadows", Location: "Tanauan"}, lots)
	require.NoError(t, err)
	f.lots, err = storage.New(store).ListLotsByLand(ctx, f.land.ID)
	require.NoError(t, err)
	require.Len(t, f.lots, lotCount)

	f.client = f.newClient("ana@example.com")
	f.dealer, err = f.catalog.RegisterAgent(ctx, &models.Agent{FullName: "Ben Santos", Role: models.AgentRoleDealer})
	require.NoError(t, err)
	f.agent, err = f.catalog.RegisterAgent(ctx, &models.Agent{FullName: "Carla Reyes"})
	require.NoError(t, err)
	return f
}

func (f *fixture) newClient(email string) *models.Client {
	f.t.Helper()
	c, err := f.catalog.RegisterClient(f.ctx, &models.Client{FirstName: "Ana", LastName: "Cruz", Email: email})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) lotIDs(idx ...int) []uuid.UUID {
	ids := make([]uuid.UUID, len(idx))
	for i, n := range idx {
		ids[i] = f.lots[n].ID
	}
	return ids
}

func (f *fixture) application(client *models.Client, lots ...int) *models.Application {
	return &models.Application{
		LandID:          f.land.ID,
		ClientID:        client.ID,
		LotIDs:          f.lotIDs(lots...),
		AgentDealerID:   f.dealer.ID,
		OtherAgentIDs:   []uuid.UUID{f.agent.ID},
		AppointmentDate: time.Now().Add(48 * time.Hour).UTC(),
	}
}

func (f *fixture) submit(client *models.Client, lots ...int) *models.Application {
	f.t.Helper()
	res := f.life.SubmitApplication(f.ctx, f.application(client, lots...))
	require.True(f.t, res.Success, res.Message)
	return res.Application
}

func (f *fixture) approve(app *models.Application) *models.Reservation {
	f.t.Helper()
	res := f.life.DecideApplication(f.ctx, app.ID, models.Approve{})
	require.True(f.t, res.Success, res.Message)
	return res.Reservation
}

func (f *fixture) queries() *storage.Queries {
	return storage.New(f.store)
}

func (f *fixture) reloadLand() *models.Land {
	f.t.Helper()
	land, err := f.queries().GetLand(f.ctx, f.land.ID)
	require.NoError(f.t, err)
	require.NotNil(f.t, land)
	return land
}

func (f *fixture) lotStatus(idx int) models.LotStatus {
	f.t.Helper()
	lot, err := f.queries().GetLot(f.ctx, f.lots[idx].ID)
	require.NoError(f.t, err)
	require.NotNil(f.t, lot)
	return lot.Status
}

func (f *fixture) reloadApplication(id uuid.UUID) *models.Application {
	f.t.Helper()
	app, err := f.queries().GetApplication(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, app)
	return app
}

// requireCounters checks the land counters and that they still add up.
func (f *fixture) requireCounters(available, sold int) {
	f.t.Helper()
	land := f.reloadLand()
	require.Equal(f.t, available, land.Available, "available")
	require.Equal(f.t, sold, land.LotsSold, "lots_sold")
	require.True(f.t, land.Balanced(), "counters balanced")
}

// requireConsistent checks every invariant that holds between committed
// transactions: counters match lot statuses and a lot is sold exactly when
// a contract covers it.
func (f *fixture) requireConsistent() {
	f.t.Helper()
	drift, err := f.catalog.Audit(f.ctx, false)
	require.NoError(f.t, err)
	require.Empty(f.t, drift)

	lots, err := f.queries().ListLotsByLand(f.ctx, f.land.ID)
	require.NoError(f.t, err)
	for _, lot := range lots {
		var n int
		err := f.store.QueryRow(f.ctx, `
			SELECT COUNT(*) FROM contracts c
			JOIN application_lots al ON al.application_id = c.application_id
			WHERE al.lot_id = $1`, lot.ID).Scan(&n)
		require.NoError(f.t, err)
		if lot.Status == models.LotStatusSold {
			require.Equal(f.t, 1, n, "sold %s has no contract", lot.Label())
		} else {
			require.Zero(f.t, n, "%s is %s but has a contract", lot.Label(), lot.Status)
		}
	}
}
