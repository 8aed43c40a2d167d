package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LotStatus string

const (
	LotStatusAvailable LotStatus = "available"
	LotStatusReserved  LotStatus = "reserved"
	LotStatusSold      LotStatus = "sold"
)

// Valid reports whether s is one of the known lot statuses.
func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusAvailable, LotStatusReserved, LotStatusSold:
		return true
	}
	return false
}

// Land is a subdivided parcel. Available + LotsSold always equals TotalLots
// once a lifecycle transaction has committed; LotsSold counts reserved and
// sold lots together.
type Land struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Location  string          `json:"location" db:"location"`
	TotalArea decimal.Decimal `json:"total_area" db:"total_area"`
	TotalLots int             `json:"total_lots" db:"total_lots"`
	Available int             `json:"available" db:"available"`
	LotsSold  int             `json:"lots_sold" db:"lots_sold"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Balanced reports whether the parcel counters add up.
func (l *Land) Balanced() bool {
	return l.Available >= 0 && l.LotsSold >= 0 && l.Available+l.LotsSold == l.TotalLots
}

// Lot is an individually sellable unit within a Land
type Lot struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	LandID      uuid.UUID       `json:"land_id" db:"land_id"`
	BlockNumber string          `json:"block_number" db:"block_number"`
	LotNumber   string          `json:"lot_number" db:"lot_number"`
	Size        decimal.Decimal `json:"size" db:"size"` // square meters
	PricePerSqm decimal.Decimal `json:"price_per_sqm" db:"price_per_sqm"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	LotType     string          `json:"lot_type" db:"lot_type"` // inner, corner, end, ...
	Status      LotStatus       `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PriceOrComputed returns TotalAmount, or Size * PricePerSqm when no total was set.
func (l *Lot) PriceOrComputed() decimal.Decimal {
	if !l.TotalAmount.IsZero() {
		return l.TotalAmount
	}
	return l.Size.Mul(l.PricePerSqm)
}

// Label formats the lot as "Block 3 Lot 12".
func (l *Lot) Label() string {
	return "Block " + l.BlockNumber + " Lot " + l.LotNumber
}
