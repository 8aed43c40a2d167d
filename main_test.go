package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"landsale/config"
	"landsale/models"
	"landsale/services"
	"landsale/storage"
)

func TestMaskConnectionString(t *testing.T) {
	tests := map[string]string{
		"postgres://sales:s3cret@db:5432/landsale": "postgres://sales:****@db:5432/landsale",
		"postgres://sales@db/landsale":             "postgres://sales@db/landsale",
		"landsale.db":                              "landsale.db",
	}
	for in, want := range tests {
		assert.Equal(t, want, maskConnectionString(in))
	}
}

func TestLandFromCatalog(t *testing.T) {
	land, lots := landFromCatalog(&config.LandCatalog{
		Name:      "Sunrise Hills",
		TotalArea: "800.5",
		Lots: []config.LotCatalog{
			{Block: "1", Lot: "1", Size: "100", PricePerSqm: "3000", Type: "corner"},
		},
	})
	assert.Equal(t, "Sunrise Hills", land.Name)
	assert.Equal(t, "800.5", land.TotalArea.String())
	if assert.Len(t, lots, 1) {
		assert.Equal(t, "300000", lots[0].PriceOrComputed().String())
		assert.Equal(t, "corner", lots[0].LotType)
	}
}

// cliEnv points the configuration at a fresh SQLite file and documents dir.
func cliEnv(t *testing.T) (dbPath, docsDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "landsale.db")
	docsDir = filepath.Join(dir, "documents")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("DOCUMENTS_DIR", docsDir)
	t.Setenv("LANDS_DIR", filepath.Join(dir, "lands"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	t.Setenv("S3_BUCKET", "")
	return dbPath, docsDir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRejectBadArguments(t *testing.T) {
	dbPath, _ := cliEnv(t)
	id := uuid.NewString()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"application decision", []string{"application", "decide", id, "maybe"}, "approved or rejected"},
		{"application id", []string{"application", "decide", "42", "approved"}, `invalid application id "42"`},
		{"reservation outcome", []string{"reservation", "decide", id, "approved"}, "cancellation or no_show"},
		{"reservation id", []string{"reservation", "decide", "r-1", "no_show"}, "invalid reservation id"},
		{"contract agent", []string{"contract", "finalize", id, "--client", id, "--term", "cash", "--agent", "dealer"}, "invalid agent id"},
		{"contract client", []string{"contract", "finalize", id, "--client", "ana", "--term", "cash"}, "invalid client id"},
		{"application status", []string{"application", "list", "--status", "open"}, "unknown application status"},
		{"activity entity", []string{"activity", "lot", id}, "unknown entity"},
		{"document contract", []string{"documents", "fetch", "c-9"}, "invalid contract id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoFileExists(t, dbPath)
}

func TestCommandsDriveLifecycle(t *testing.T) {
	dbPath, _ := cliEnv(t)
	ctx := context.Background()

	_, err := runCLI(t, "migrate")
	require.NoError(t, err)

	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	catalog := services.NewCatalog(store, zap.NewNop())
	land, err := catalog.CreateLand(ctx, &models.Land{Name: "Green Meadows"},
		[]models.Lot{{BlockNumber: "1", LotNumber: "1"}, {BlockNumber: "1", LotNumber: "2"}})
	require.NoError(t, err)
	lots, err := storage.New(store).ListLotsByLand(ctx, land.ID)
	require.NoError(t, err)
	client, err := catalog.RegisterClient(ctx, &models.Client{FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com"})
	require.NoError(t, err)
	dealer, err := catalog.RegisterAgent(ctx, &models.Agent{FullName: "Ben Santos", Role: models.AgentRoleDealer})
	require.NoError(t, err)
	submitted := services.NewLifecycle(store, nil, zap.NewNop()).SubmitApplication(ctx, &models.Application{
		LandID:          land.ID,
		ClientID:        client.ID,
		LotIDs:          []uuid.UUID{lots[1].ID},
		AgentDealerID:   dealer.ID,
		AppointmentDate: time.Now().Add(24 * time.Hour).UTC(),
	})
	require.True(t, submitted.Success, submitted.Message)
	appID := submitted.Application.ID.String()

	out, err := runCLI(t, "application", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, appID)

	out, err = runCLI(t, "application", "decide", appID, "approved", "--note", "documents complete")
	require.NoError(t, err)
	assert.Contains(t, out, "reservation ")

	out, err = runCLI(t, "contract", "finalize", appID, "--client", client.ID.String(), "--term", "cash")
	require.NoError(t, err)
	assert.Contains(t, out, "contract created")

	_, err = runCLI(t, "contract", "finalize", appID, "--client", client.ID.String(), "--term", "cash")
	require.Error(t, err)

	contract, err := storage.New(store).GetContractByApplication(ctx, submitted.Application.ID)
	require.NoError(t, err)
	require.NotNil(t, contract)
	require.NotNil(t, contract.DocumentRef)

	out, err = runCLI(t, "activity", "application", appID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(out, "\n"), 2)

	target := filepath.Join(t.TempDir(), "contract.xlsx")
	out, err = runCLI(t, "documents", "fetch", contract.ID.String(), "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	stored, err := storage.New(store).GetLand(ctx, land.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Available)
	assert.Equal(t, 1, stored.LotsSold)
}

func TestReservationDecideCommand(t *testing.T) {
	dbPath, _ := cliEnv(t)
	ctx := context.Background()
	_, err := runCLI(t, "migrate")
	require.NoError(t, err)

	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	catalog := services.NewCatalog(store, zap.NewNop())
	land, err := catalog.CreateLand(ctx, &models.Land{Name: "Riverside"}, []models.Lot{{BlockNumber: "2", LotNumber: "7"}})
	require.NoError(t, err)
	lots, err := storage.New(store).ListLotsByLand(ctx, land.ID)
	require.NoError(t, err)
	client, err := catalog.RegisterClient(ctx, &models.Client{FirstName: "Dan", LastName: "Reyes", Email: "dan@example.com"})
	require.NoError(t, err)
	dealer, err := catalog.RegisterAgent(ctx, &models.Agent{FullName: "Ben Santos", Role: models.AgentRoleDealer})
	require.NoError(t, err)
	booked := services.NewLifecycle(store, nil, zap.NewNop()).CreateReservation(ctx, services.ReservationRequest{
		LandID:          land.ID,
		ClientID:        client.ID,
		LotIDs:          []uuid.UUID{lots[0].ID},
		AgentDealerID:   dealer.ID,
		AppointmentDate: time.Now().Add(time.Hour).UTC(),
	})
	require.True(t, booked.Success, booked.Message)
	resID := booked.Reservation.ID.String()

	out, err := runCLI(t, "reservation", "decide", resID, "no_show", "--notes", "did not arrive")
	require.NoError(t, err)
	assert.Contains(t, out, "no_show")

	_, err = runCLI(t, "reservation", "decide", resID, "cancellation")
	require.Error(t, err)

	stored, err := storage.New(store).GetLand(ctx, land.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Available)
	assert.Zero(t, stored.LotsSold)
}
