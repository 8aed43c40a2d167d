package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"landsale/models"
)

// =============================================================================
// Lands
// =============================================================================

const landColumns = `id, name, location, total_area, total_lots, available, lots_sold, created_at, updated_at`

func scanLand(row Row) (*models.Land, error) {
	var l models.Land
	err := row.Scan(&l.ID, &l.Name, &l.Location, &l.TotalArea, &l.TotalLots, &l.Available, &l.LotsSold, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *Queries) CreateLand(ctx context.Context, l *models.Land) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO lands (`+landColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.Name, l.Location, l.TotalArea, l.TotalLots, l.Available, l.LotsSold, l.CreatedAt, l.UpdatedAt)
	return err
}

func (q *Queries) GetLand(ctx context.Context, id uuid.UUID) (*models.Land, error) {
	l, err := scanLand(q.db.QueryRow(ctx, `SELECT `+landColumns+` FROM lands WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (q *Queries) GetLandByName(ctx context.Context, name string) (*models.Land, error) {
	l, err := scanLand(q.db.QueryRow(ctx, `SELECT `+landColumns+` FROM lands WHERE name = $1`, name))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (q *Queries) ListLands(ctx context.Context) ([]models.Land, error) {
	rows, err := q.db.Query(ctx, `SELECT `+landColumns+` FROM lands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lands []models.Land
	for rows.Next() {
		l, err := scanLand(rows)
		if err != nil {
			return nil, err
		}
		lands = append(lands, *l)
	}
	return lands, rows.Err()
}

func (q *Queries) DeleteLand(ctx context.Context, id uuid.UUID) (int64, error) {
	return q.db.Exec(ctx, `DELETE FROM lands WHERE id = $1`, id)
}

// ShiftToSold moves n lots from available to lots_sold. It matches no row
// when fewer than n lots are available.
func (q *Queries) ShiftToSold(ctx context.Context, landID uuid.UUID, n int) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE lands SET
			available  = available - $2,
			lots_sold  = lots_sold + $2,
			updated_at = $3
		WHERE id = $1 AND available >= $2`,
		landID, n, now())
}

// ShiftToAvailable moves n lots back from lots_sold to available, floored at
// zero and capped at total_lots.
func (q *Queries) ShiftToAvailable(ctx context.Context, landID uuid.UUID, n int) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE lands SET
			lots_sold  = CASE WHEN lots_sold >= $2 THEN lots_sold - $2 ELSE 0 END,
			available  = CASE WHEN available + $2 <= total_lots THEN available + $2 ELSE total_lots END,
			updated_at = $3
		WHERE id = $1`,
		landID, n, now())
}

// GrowLand raises total_lots and available together after new lots are inserted.
func (q *Queries) GrowLand(ctx context.Context, landID uuid.UUID, n int) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE lands SET
			total_lots = total_lots + $2,
			available  = available + $2,
			updated_at = $3
		WHERE id = $1`,
		landID, n, now())
}

// SetLandCounters overwrites all three counters. Only a recount from lot
// statuses may call it.
func (q *Queries) SetLandCounters(ctx context.Context, landID uuid.UUID, total, available, sold int) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE lands SET total_lots = $2, available = $3, lots_sold = $4, updated_at = $5
		WHERE id = $1`,
		landID, total, available, sold, now())
}

// LotStatusCounts aggregates the lots of a land by status.
func (q *Queries) LotStatusCounts(ctx context.Context, landID uuid.UUID) (map[models.LotStatus]int, error) {
	rows, err := q.db.Query(ctx, `
		SELECT status, COUNT(*) FROM lots WHERE land_id = $1 GROUP BY status`, landID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.LotStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.LotStatus(status)] = count
	}
	return counts, rows.Err()
}

// =============================================================================
// Lots
// =============================================================================

const lotColumns = `id, land_id, block_number, lot_number, size, price_per_sqm, total_amount, lot_type, status, created_at, updated_at`

func scanLot(row Row) (*models.Lot, error) {
	var l models.Lot
	var status string
	err := row.Scan(&l.ID, &l.LandID, &l.BlockNumber, &l.LotNumber, &l.Size, &l.PricePerSqm,
		&l.TotalAmount, &l.LotType, &status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = models.LotStatus(status)
	if !l.Status.Valid() {
		return nil, fmt.Errorf("lot %s has unknown status %q", l.ID, status)
	}
	return &l, nil
}

func (q *Queries) InsertLot(ctx context.Context, l *models.Lot) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.LandID, l.BlockNumber, l.LotNumber, l.Size, l.PricePerSqm,
		l.TotalAmount, l.LotType, string(l.Status), l.CreatedAt, l.UpdatedAt)
	return err
}

func (q *Queries) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	l, err := scanLot(q.db.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// GetLots returns the lots in the order of ids. Missing ids are skipped.
func (q *Queries) GetLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error) {
	lots := make([]models.Lot, 0, len(ids))
	for _, id := range ids {
		l, err := q.GetLot(ctx, id)
		if err != nil {
			return nil, err
		}
		if l != nil {
			lots = append(lots, *l)
		}
	}
	return lots, nil
}

func (q *Queries) ListLotsByLand(ctx context.Context, landID uuid.UUID) ([]models.Lot, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+lotColumns+` FROM lots WHERE land_id = $1
		ORDER BY block_number, lot_number`, landID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *l)
	}
	return lots, rows.Err()
}

// TransitionLot moves a lot from one status to another. It matches no row
// when the lot is missing or not in the from status.
func (q *Queries) TransitionLot(ctx context.Context, id uuid.UUID, from, to models.LotStatus) (int64, error) {
	return q.db.Exec(ctx, `
		UPDATE lots SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), now())
}

// CountApplicationsOnLand counts applications of any status on a land.
func (q *Queries) CountApplicationsOnLand(ctx context.Context, landID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM applications WHERE land_id = $1`, landID).Scan(&n)
	return n, err
}
