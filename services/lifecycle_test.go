package services

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"landsale/documents"
	"landsale/models"
)

func TestApproveReservesLotsAndOpensReservation(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0, 1)
	f.requireCounters(10, 0)

	res := f.life.DecideApplication(f.ctx, app.ID, models.Approve{Note: "papers complete"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "application approved", res.Message)
	assert.Equal(t, models.ApplicationApproved, res.Application.Status)
	require.NotNil(t, res.Reservation)
	assert.Equal(t, models.ReservationPending, res.Reservation.Status)
	assert.Equal(t, "Ana Cruz", res.Reservation.ClientName)
	assert.Equal(t, app.ID, res.Reservation.ApplicationID.UUID)

	f.requireCounters(8, 2)
	assert.Equal(t, models.LotStatusReserved, f.lotStatus(0))
	assert.Equal(t, models.LotStatusReserved, f.lotStatus(1))
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(2))

	stored, err := f.queries().GetReservationByApplication(f.ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Reservation.ID, stored.ID)

	logs, err := f.queries().ListActivity(f.ctx, "application", app.ID.String())
	require.NoError(t, err)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{models.ActionSubmitted, models.ActionApproved}, actions)
	f.requireConsistent()
}

func TestNoShowReleasesLotsAndRejectsApplication(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0, 1)
	reservation := f.approve(app)

	res := f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeNoShow, "did not come")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ReservationNoShow, res.Reservation.Status)

	f.requireCounters(10, 0)
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(0))
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(1))

	stored := f.reloadApplication(app.ID)
	assert.Equal(t, models.ApplicationRejected, stored.Status)
	require.NotNil(t, stored.RejectionNote)
	assert.Equal(t, "no_show: did not come", *stored.RejectionNote)
	f.requireConsistent()
}

func TestCancellationNoteWithoutText(t *testing.T) {
	f := newFixture(t, 3)
	reservation := f.approve(f.submit(f.client, 2))

	res := f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeCancellation, "")
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Application.RejectionNote)
	assert.Equal(t, "cancellation", *res.Application.RejectionNote)
	f.requireCounters(3, 0)
}

func TestFinalizeContractMarksLotsSold(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0, 1)
	reservation := f.approve(app)

	res := f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "60 months"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "contract created", res.Message)
	assert.NoError(t, res.DocumentError)

	f.requireCounters(8, 2)
	assert.Equal(t, models.LotStatusSold, f.lotStatus(0))
	assert.Equal(t, models.LotStatusSold, f.lotStatus(1))

	stored, err := f.queries().GetReservation(f.ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationOnContract, stored.Status)

	contract, err := f.queries().GetContractByApplication(f.ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, contract)
	assert.Equal(t, reservation.ID, contract.ReservationID)
	assert.Equal(t, []uuid.UUID{f.dealer.ID, f.agent.ID}, contract.AgentIDs)
	require.NotNil(t, contract.DocumentRef)
	assert.Equal(t, 1, contract.DocumentAttempts)
	assert.Nil(t, contract.DocumentError)

	path := strings.TrimPrefix(*contract.DocumentRef, "file://")
	assert.True(t, strings.HasPrefix(path, f.docsDir))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Equal(t, models.ApplicationApproved, f.reloadApplication(app.ID).Status)
	f.requireConsistent()
}

func TestDuplicatePendingApplicationIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	f.submit(f.client, 0)

	res := f.life.SubmitApplication(f.ctx, f.application(f.client, 1))
	assert.False(t, res.Success)
	assert.True(t, models.IsDuplicate(res.Err), res.Message)
	assert.Nil(t, res.Application)

	pending, err := f.queries().ListApplications(f.ctx, models.ApplicationPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	f.requireCounters(10, 0)
}

func TestNewApplicationAllowedAfterRejection(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0)
	require.True(t, f.life.DecideApplication(f.ctx, app.ID, models.Reject{Note: "incomplete"}).Success)

	again := f.life.SubmitApplication(f.ctx, f.application(f.client, 0))
	assert.True(t, again.Success, again.Message)
}

func TestSubmitValidatesInput(t *testing.T) {
	f := newFixture(t, 3)

	tests := []struct {
		name  string
		edit  func(a *models.Application)
		check func(error) bool
	}{
		{"no lots", func(a *models.Application) { a.LotIDs = nil }, models.IsValidation},
		{"repeated lot", func(a *models.Application) { a.LotIDs = append(a.LotIDs, a.LotIDs[0]) }, models.IsValidation},
		{"no dealer", func(a *models.Application) { a.AgentDealerID = uuid.Nil }, models.IsValidation},
		{"no appointment", func(a *models.Application) { a.AppointmentDate = time.Time{} }, models.IsValidation},
		{"unknown land", func(a *models.Application) { a.LandID = uuid.New() }, models.IsNotFound},
		{"unknown client", func(a *models.Application) { a.ClientID = uuid.New() }, models.IsNotFound},
		{"unknown lot", func(a *models.Application) { a.LotIDs = []uuid.UUID{uuid.New()} }, models.IsNotFound},
		{"unknown agent", func(a *models.Application) { a.OtherAgentIDs = []uuid.UUID{uuid.New()} }, models.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := f.application(f.client, 0)
			tt.edit(app)
			res := f.life.SubmitApplication(f.ctx, app)
			assert.False(t, res.Success)
			assert.True(t, tt.check(res.Err), res.Message)
		})
	}
}

func TestRejectTwiceIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0, 1)

	first := f.life.DecideApplication(f.ctx, app.ID, models.Reject{Note: "incomplete papers"})
	require.True(t, first.Success, first.Message)
	require.NotNil(t, first.Application.RejectionNote)
	assert.Equal(t, "incomplete papers", *first.Application.RejectionNote)
	assert.Nil(t, first.Reservation)

	second := f.life.DecideApplication(f.ctx, app.ID, models.Reject{Note: "again"})
	assert.False(t, second.Success)
	assert.True(t, models.IsValidation(second.Err), second.Message)

	approve := f.life.DecideApplication(f.ctx, app.ID, models.Approve{})
	assert.False(t, approve.Success)
	assert.True(t, models.IsValidation(approve.Err), approve.Message)

	f.requireCounters(10, 0)
	stored := f.reloadApplication(app.ID)
	assert.Equal(t, "incomplete papers", *stored.RejectionNote)
}

func TestApproveUnknownApplication(t *testing.T) {
	f := newFixture(t, 1)
	res := f.life.DecideApplication(f.ctx, uuid.New(), models.Approve{})
	assert.False(t, res.Success)
	assert.True(t, models.IsNotFound(res.Err))
}

func TestApproveRollsBackWhenReservationInsertFails(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0, 1)

	_, err := f.store.Exec(f.ctx, `CREATE TRIGGER fail_reservations BEFORE INSERT ON reservations
		BEGIN SELECT RAISE(ABORT, 'reservations unavailable'); END`)
	require.NoError(t, err)

	res := f.life.DecideApplication(f.ctx, app.ID, models.Approve{})
	assert.False(t, res.Success)
	assert.Equal(t, "could not approve application", res.Message)
	assert.False(t, models.IsDomain(res.Err))
	assert.Nil(t, res.Application)

	f.requireCounters(10, 0)
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(0))
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(1))
	assert.Equal(t, models.ApplicationPending, f.reloadApplication(app.ID).Status)
	f.requireConsistent()

	_, err = f.store.Exec(f.ctx, `DROP TRIGGER fail_reservations`)
	require.NoError(t, err)
	f.approve(app)
	f.requireCounters(8, 2)
}

func TestApproveRefusesLotReservedByAnotherApplication(t *testing.T) {
	f := newFixture(t, 10)
	other := f.newClient("dan@example.com")
	first := f.submit(f.client, 0)
	second := f.submit(other, 0, 1)

	f.approve(first)
	res := f.life.DecideApplication(f.ctx, second.ID, models.Approve{})
	assert.False(t, res.Success)
	assert.True(t, models.IsInventoryConflict(res.Err), res.Message)

	f.requireCounters(9, 1)
	assert.Equal(t, models.LotStatusAvailable, f.lotStatus(1))
	assert.Equal(t, models.ApplicationPending, f.reloadApplication(second.ID).Status)
	f.requireConsistent()
}

func TestConcurrentApprovalsNeverDoubleBook(t *testing.T) {
	f := newFixture(t, 4)

	const contenders = 5
	apps := make([]*models.Application, contenders)
	for i := range apps {
		client := f.newClient(uuid.NewString() + "@example.com")
		apps[i] = f.submit(client, 0)
	}

	var wg sync.WaitGroup
	results := make([]DecisionResult, contenders)
	for i, app := range apps {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			results[i] = f.life.DecideApplication(context.Background(), id, models.Approve{})
		}(i, app.ID)
	}
	wg.Wait()

	won := 0
	for _, r := range results {
		if r.Success {
			won++
			continue
		}
		assert.True(t, models.IsInventoryConflict(r.Err), r.Message)
	}
	assert.Equal(t, 1, won)
	f.requireCounters(3, 1)
	f.requireConsistent()
}

func TestDecideReservationTwiceIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	reservation := f.approve(f.submit(f.client, 0, 1))

	require.True(t, f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeCancellation, "changed mind").Success)
	f.requireCounters(10, 0)

	again := f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeNoShow, "")
	assert.False(t, again.Success)
	assert.True(t, models.IsValidation(again.Err), again.Message)
	f.requireCounters(10, 0)

	missing := f.life.DecideReservation(f.ctx, uuid.New(), models.OutcomeNoShow, "")
	assert.True(t, models.IsNotFound(missing.Err))
}

func TestDecideReservationAfterContractIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0)
	reservation := f.approve(app)
	require.True(t, f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "cash"}).Success)

	res := f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeCancellation, "")
	assert.False(t, res.Success)
	assert.True(t, models.IsValidation(res.Err))
	assert.Equal(t, models.LotStatusSold, f.lotStatus(0))
	f.requireCounters(9, 1)
}

func TestFinalizeContractPreconditions(t *testing.T) {
	f := newFixture(t, 10)
	pending := f.submit(f.client, 0)
	approved := f.submit(f.newClient("dan@example.com"), 1)
	f.approve(approved)

	tests := []struct {
		name  string
		req   ContractRequest
		check func(error) bool
	}{
		{"missing term", ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "  "}, models.IsValidation},
		{"unknown application", ContractRequest{ApplicationID: uuid.New(), ClientID: approved.ClientID, Term: "cash"}, models.IsNotFound},
		{"wrong client", ContractRequest{ApplicationID: approved.ID, ClientID: f.client.ID, Term: "cash"}, models.IsValidation},
		{"pending application", ContractRequest{ApplicationID: pending.ID, ClientID: f.client.ID, Term: "cash"}, models.IsValidation},
		{"unknown agent", ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "cash", AgentIDs: []uuid.UUID{uuid.New()}}, models.IsNotFound},
		{"repeated agent", ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "cash", AgentIDs: []uuid.UUID{f.agent.ID, f.agent.ID}}, models.IsValidation},
		{"empty agent id", ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "cash", AgentIDs: []uuid.UUID{uuid.Nil}}, models.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.life.FinalizeContract(f.ctx, tt.req)
			assert.False(t, res.Success)
			assert.True(t, tt.check(res.Err), res.Message)
			assert.Nil(t, res.Contract)
		})
	}
	f.requireCounters(9, 1)
	assert.Equal(t, models.LotStatusReserved, f.lotStatus(1))

	require.True(t, f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "cash"}).Success)
	dup := f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: approved.ID, ClientID: approved.ClientID, Term: "cash"})
	assert.False(t, dup.Success)
	assert.True(t, models.IsDuplicate(dup.Err), dup.Message)
	f.requireConsistent()
}

func TestFinalizeContractAfterNoShowIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0)
	reservation := f.approve(app)
	require.True(t, f.life.DecideReservation(f.ctx, reservation.ID, models.OutcomeNoShow, "").Success)

	res := f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "cash"})
	assert.False(t, res.Success)
	assert.True(t, models.IsValidation(res.Err))
	f.requireCounters(10, 0)
}

func TestSoldLotsCannotBeClaimedAgain(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0)
	f.approve(app)
	require.True(t, f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "cash"}).Success)

	res := f.life.SubmitApplication(f.ctx, f.application(f.newClient("dan@example.com"), 0))
	assert.False(t, res.Success)
	assert.True(t, models.IsInventoryConflict(res.Err), res.Message)
}

type failingUploader struct{ err error }

func (u failingUploader) Put(ctx context.Context, name string, data io.Reader, contentType string) (string, error) {
	return "", u.err
}

func (u failingUploader) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return nil, u.err
}

func TestContractSurvivesDocumentFailure(t *testing.T) {
	f := newFixture(t, 10)
	docs := NewDocumentService(f.store, documents.NewSheetRenderer(), failingUploader{errors.New("bucket offline")}, zap.NewNop())
	life := NewLifecycle(f.store, docs, zap.NewNop())

	app := f.submit(f.client, 0, 1)
	f.approve(app)

	res := life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "60 months"})
	require.True(t, res.Success, res.Message)
	require.Error(t, res.DocumentError)
	assert.Contains(t, res.Message, "document pending")
	assert.Contains(t, res.Message, "bucket offline")

	contract, err := f.queries().GetContract(f.ctx, res.Contract.ID)
	require.NoError(t, err)
	assert.Nil(t, contract.DocumentRef)
	require.NotNil(t, contract.DocumentError)
	assert.Contains(t, *contract.DocumentError, "bucket offline")
	assert.Equal(t, 1, contract.DocumentAttempts)

	f.requireCounters(8, 2)
	assert.Equal(t, models.LotStatusSold, f.lotStatus(0))

	pending, err := docs.Pending(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, contract.ID, pending[0].ID)

	ref, err := f.life.docs.Attach(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "file://"))
	pending, err = docs.Pending(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	f.requireConsistent()
}

func TestContractWithoutDocumentService(t *testing.T) {
	f := newFixture(t, 2)
	life := NewLifecycle(f.store, nil, zap.NewNop())
	app := f.submit(f.client, 0)
	f.approve(app)

	res := life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: f.client.ID, Term: "cash"})
	require.True(t, res.Success, res.Message)
	assert.Nil(t, res.Contract.DocumentRef)
	assert.Zero(t, res.Contract.DocumentAttempts)
}

func TestCreateReservationBooksLotsDirectly(t *testing.T) {
	f := newFixture(t, 10)

	res := f.life.CreateReservation(f.ctx, ReservationRequest{
		LandID:          f.land.ID,
		ClientID:        f.client.ID,
		LotIDs:          f.lotIDs(4, 2),
		AgentDealerID:   f.dealer.ID,
		AppointmentDate: time.Now().Add(24 * time.Hour).UTC(),
		ClientName:      "Ana M. Cruz",
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.ApplicationApproved, res.Application.Status)
	assert.Equal(t, "Ana M. Cruz", res.Reservation.ClientName)
	f.requireCounters(8, 2)

	stored := f.reloadApplication(res.Application.ID)
	assert.Equal(t, f.lotIDs(4, 2), stored.LotIDs)

	clash := f.life.CreateReservation(f.ctx, ReservationRequest{
		LandID:          f.land.ID,
		ClientID:        f.newClient("dan@example.com").ID,
		LotIDs:          f.lotIDs(2, 3),
		AgentDealerID:   f.dealer.ID,
		AppointmentDate: time.Now().Add(24 * time.Hour).UTC(),
	})
	assert.False(t, clash.Success)
	assert.True(t, models.IsInventoryConflict(clash.Err), clash.Message)

	approved, err := f.queries().ListApplications(f.ctx, models.ApplicationApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
	pending, err := f.queries().ListApplications(f.ctx, models.ApplicationPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	f.requireCounters(8, 2)
	f.requireConsistent()
}

func TestApplicationKeepsLotOrder(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 7, 2, 5)
	assert.Equal(t, f.lotIDs(7, 2, 5), f.reloadApplication(app.ID).LotIDs)

	f.approve(app)
	bundle, err := NewContracts(f.queries(), nil, nil).Bundle(f.ctx, f.contract(app).ID)
	require.NoError(t, err)
	require.Len(t, bundle.Lots, 3)
	assert.Equal(t, f.lots[7].ID, bundle.Lots[0].ID)
	assert.Equal(t, f.lots[2].ID, bundle.Lots[1].ID)
	assert.Equal(t, f.lots[5].ID, bundle.Lots[2].ID)
}

func (f *fixture) contract(app *models.Application) *models.Contract {
	f.t.Helper()
	res := f.life.FinalizeContract(f.ctx, ContractRequest{ApplicationID: app.ID, ClientID: app.ClientID, Term: "cash"})
	require.True(f.t, res.Success, res.Message)
	return res.Contract
}

func TestUpdateApplication(t *testing.T) {
	f := newFixture(t, 10)
	app := f.submit(f.client, 0)

	empty := f.life.UpdateApplication(f.ctx, app.ID, models.ApplicationPatch{})
	assert.True(t, models.IsValidation(empty.Err))

	res := f.life.UpdateApplication(f.ctx, app.ID, models.ApplicationPatch{LotIDs: f.lotIDs(3, 1)})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, f.lotIDs(3, 1), f.reloadApplication(app.ID).LotIDs)
	f.requireCounters(10, 0)

	other := f.submit(f.newClient("dan@example.com"), 5)
	dup := f.life.UpdateApplication(f.ctx, other.ID, models.ApplicationPatch{ClientID: &f.client.ID})
	assert.True(t, models.IsDuplicate(dup.Err), dup.Message)

	f.approve(app)
	locked := f.life.UpdateApplication(f.ctx, app.ID, models.ApplicationPatch{LotIDs: f.lotIDs(4)})
	assert.False(t, locked.Success)
	assert.True(t, models.IsValidation(locked.Err))
	assert.Equal(t, f.lotIDs(3, 1), f.reloadApplication(app.ID).LotIDs)

	when := time.Now().Add(72 * time.Hour).UTC()
	moved := f.life.UpdateApplication(f.ctx, app.ID, models.ApplicationPatch{
		AppointmentDate: &when,
		OtherAgentIDs:   []uuid.UUID{},
	})
	require.True(t, moved.Success, moved.Message)
	stored := f.reloadApplication(app.ID)
	assert.Equal(t, models.ApplicationApproved, stored.Status)
	assert.WithinDuration(t, when, stored.AppointmentDate, time.Second)
	assert.Empty(t, stored.OtherAgentIDs)
	f.requireCounters(8, 2)
	f.requireConsistent()
}

func TestUpdatePendingApplicationAfterSharedLotIsReserved(t *testing.T) {
	f := newFixture(t, 10)
	waiting := f.submit(f.client, 0, 1)
	winner := f.submit(f.newClient("dan@example.com"), 1)
	f.approve(winner)

	when := time.Now().Add(48 * time.Hour).UTC()
	res := f.life.UpdateApplication(f.ctx, waiting.ID, models.ApplicationPatch{AppointmentDate: &when})
	require.True(t, res.Success, res.Message)
	assert.WithinDuration(t, when, f.reloadApplication(waiting.ID).AppointmentDate, time.Second)

	claim := f.life.UpdateApplication(f.ctx, waiting.ID, models.ApplicationPatch{LotIDs: f.lotIDs(1, 2)})
	assert.False(t, claim.Success)
	assert.True(t, models.IsInventoryConflict(claim.Err), claim.Message)
	assert.Equal(t, f.lotIDs(0, 1), f.reloadApplication(waiting.ID).LotIDs)
	f.requireCounters(9, 0)
	f.requireConsistent()
}
