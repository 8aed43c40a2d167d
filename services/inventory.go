package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"landsale/identity"
	"landsale/models"
	"landsale/storage"
)

// Ledger owns lot statuses and the per-land counters. It works on the
// transaction it was built from and never commits.
type Ledger struct {
	q *storage.Queries
}

func NewLedger(q *storage.Queries) *Ledger {
	return &Ledger{q: q}
}

// ReserveLots flips each lot from available to reserved and moves the same
// number from available to lots_sold on the land.
func (l *Ledger) ReserveLots(ctx context.Context, landID uuid.UUID, lotIDs []uuid.UUID) error {
	if err := checkLotIDs(lotIDs); err != nil {
		return err
	}
	if _, err := l.land(ctx, landID); err != nil {
		return err
	}

	for _, id := range lotIDs {
		lot, err := l.lotOnLand(ctx, landID, id)
		if err != nil {
			return err
		}
		n, err := l.q.TransitionLot(ctx, id, models.LotStatusAvailable, models.LotStatusReserved)
		if err != nil {
			return fmt.Errorf("reserve lot: %w", err)
		}
		if n == 0 {
			return &models.InventoryConsistencyError{
				LotID:  id.String(),
				Reason: fmt.Sprintf("%s is %s, not available", lot.Label(), lot.Status),
			}
		}
	}

	n, err := l.q.ShiftToSold(ctx, landID, len(lotIDs))
	if err != nil {
		return fmt.Errorf("update land counters: %w", err)
	}
	if n == 0 {
		return &models.InventoryConsistencyError{
			LandID: landID.String(),
			Reason: fmt.Sprintf("fewer than %d lots available", len(lotIDs)),
		}
	}
	return nil
}

// ReleaseLots puts reserved lots back to available and returns how many it
// released. Lots that are already available are skipped; a sold lot cannot
// be released.
func (l *Ledger) ReleaseLots(ctx context.Context, landID uuid.UUID, lotIDs []uuid.UUID) (int, error) {
	if _, err := l.land(ctx, landID); err != nil {
		return 0, err
	}

	released := 0
	for _, id := range lotIDs {
		lot, err := l.lotOnLand(ctx, landID, id)
		if err != nil {
			return 0, err
		}
		switch lot.Status {
		case models.LotStatusAvailable:
			continue
		case models.LotStatusSold:
			return 0, &models.InventoryConsistencyError{
				LotID:  id.String(),
				Reason: lot.Label() + " is already sold",
			}
		}

		n, err := l.q.TransitionLot(ctx, id, models.LotStatusReserved, models.LotStatusAvailable)
		if err != nil {
			return 0, fmt.Errorf("release lot: %w", err)
		}
		if n == 0 {
			return 0, &models.InventoryConsistencyError{LotID: id.String(), Reason: lot.Label() + " changed while being released"}
		}
		released++
	}

	if released > 0 {
		if _, err := l.q.ShiftToAvailable(ctx, landID, released); err != nil {
			return 0, fmt.Errorf("update land counters: %w", err)
		}
	}
	return released, nil
}

// MarkLotsSold moves reserved lots to sold. Land counters already account
// for them.
func (l *Ledger) MarkLotsSold(ctx context.Context, lotIDs []uuid.UUID) error {
	for _, id := range lotIDs {
		lot, err := l.q.GetLot(ctx, id)
		if err != nil {
			return fmt.Errorf("get lot: %w", err)
		}
		if lot == nil {
			return &models.NotFoundError{Entity: "lot", ID: id.String()}
		}
		n, err := l.q.TransitionLot(ctx, id, models.LotStatusReserved, models.LotStatusSold)
		if err != nil {
			return fmt.Errorf("sell lot: %w", err)
		}
		if n == 0 {
			return &models.InventoryConsistencyError{
				LotID:  id.String(),
				Reason: fmt.Sprintf("%s is %s, not reserved", lot.Label(), lot.Status),
			}
		}
	}
	return nil
}

// AddLots inserts new available lots on a land and grows its counters by the
// same amount.
func (l *Ledger) AddLots(ctx context.Context, landID uuid.UUID, lots []models.Lot) ([]models.Lot, error) {
	if len(lots) == 0 {
		return nil, &models.ValidationError{Field: "lots", Message: "at least one lot is required"}
	}
	if _, err := l.land(ctx, landID); err != nil {
		return nil, err
	}

	existing, err := l.q.ListLotsByLand(ctx, landID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	taken := make(map[string]bool, len(existing)+len(lots))
	for _, lot := range existing {
		taken[identity.LotKey(lot.BlockNumber, lot.LotNumber)] = true
	}

	now := time.Now().UTC()
	added := make([]models.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.BlockNumber == "" || lot.LotNumber == "" {
			return nil, &models.ValidationError{Field: "lots", Message: "block and lot number are required"}
		}
		if lot.Size.IsNegative() || lot.PricePerSqm.IsNegative() || lot.TotalAmount.IsNegative() {
			return nil, &models.ValidationError{Field: "lots", Message: lot.Label() + " has a negative size or price"}
		}
		key := identity.LotKey(lot.BlockNumber, lot.LotNumber)
		if taken[key] {
			return nil, &models.DuplicateError{Entity: "lot", Key: lot.Label()}
		}
		taken[key] = true

		if lot.ID == uuid.Nil {
			lot.ID = uuid.New()
		}
		lot.LandID = landID
		lot.Status = models.LotStatusAvailable
		lot.TotalAmount = lot.PriceOrComputed()
		lot.CreatedAt = now
		lot.UpdatedAt = now
		if err := l.q.InsertLot(ctx, &lot); err != nil {
			return nil, fmt.Errorf("insert lot: %w", err)
		}
		added = append(added, lot)
	}

	if _, err := l.q.GrowLand(ctx, landID, len(added)); err != nil {
		return nil, fmt.Errorf("update land counters: %w", err)
	}
	return added, nil
}

// Drift compares the stored land counters with the lot statuses.
type Drift struct {
	LandID   uuid.UUID
	LandName string

	TotalLots int
	Available int
	LotsSold  int

	CountedTotal     int
	CountedAvailable int
	CountedSold      int // reserved + sold
}

// Drifted reports whether the counters disagree with the lots.
func (d *Drift) Drifted() bool {
	return d.TotalLots != d.CountedTotal || d.Available != d.CountedAvailable || d.LotsSold != d.CountedSold
}

func (d *Drift) String() string {
	return fmt.Sprintf("%s: stored %d/%d/%d, counted %d/%d/%d (total/available/sold)",
		d.LandName, d.TotalLots, d.Available, d.LotsSold, d.CountedTotal, d.CountedAvailable, d.CountedSold)
}

// Audit reads the counters and the lot aggregates of a land.
func (l *Ledger) Audit(ctx context.Context, landID uuid.UUID) (*Drift, error) {
	land, err := l.land(ctx, landID)
	if err != nil {
		return nil, err
	}
	counts, err := l.q.LotStatusCounts(ctx, landID)
	if err != nil {
		return nil, fmt.Errorf("count lots: %w", err)
	}

	d := &Drift{
		LandID:           land.ID,
		LandName:         land.Name,
		TotalLots:        land.TotalLots,
		Available:        land.Available,
		LotsSold:         land.LotsSold,
		CountedAvailable: counts[models.LotStatusAvailable],
		CountedSold:      counts[models.LotStatusReserved] + counts[models.LotStatusSold],
	}
	d.CountedTotal = d.CountedAvailable + d.CountedSold
	return d, nil
}

// Recount rewrites the land counters from the lot aggregates. It returns the
// drift found before the rewrite.
func (l *Ledger) Recount(ctx context.Context, landID uuid.UUID) (*Drift, error) {
	d, err := l.Audit(ctx, landID)
	if err != nil {
		return nil, err
	}
	if !d.Drifted() {
		return d, nil
	}
	if _, err := l.q.SetLandCounters(ctx, landID, d.CountedTotal, d.CountedAvailable, d.CountedSold); err != nil {
		return nil, fmt.Errorf("set land counters: %w", err)
	}
	return d, nil
}

func (l *Ledger) land(ctx context.Context, id uuid.UUID) (*models.Land, error) {
	land, err := l.q.GetLand(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get land: %w", err)
	}
	if land == nil {
		return nil, &models.NotFoundError{Entity: "land", ID: id.String()}
	}
	return land, nil
}

func (l *Ledger) lotOnLand(ctx context.Context, landID, lotID uuid.UUID) (*models.Lot, error) {
	lot, err := l.q.GetLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}
	if lot == nil {
		return nil, &models.NotFoundError{Entity: "lot", ID: lotID.String()}
	}
	if lot.LandID != landID {
		return nil, &models.InventoryConsistencyError{
			LotID:  lotID.String(),
			Reason: fmt.Sprintf("%s belongs to land %s, not %s", lot.Label(), lot.LandID, landID),
		}
	}
	return lot, nil
}

func checkLotIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return &models.ValidationError{Field: "lot_ids", Message: "at least one lot is required"}
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return &models.ValidationError{Field: "lot_ids", Message: "lot id is empty"}
		}
		if seen[id] {
			return &models.ValidationError{Field: "lot_ids", Message: "lot " + id.String() + " is listed twice"}
		}
		seen[id] = true
	}
	return nil
}
