// Package documents renders contract documents from fully resolved data.
package documents

import (
	"context"

	"github.com/shopspring/decimal"
	"landsale/models"
)

// Bundle is everything a renderer may print about one contract.
type Bundle struct {
	Contract    models.Contract
	Application models.Application
	Client      models.Client
	Land        models.Land
	Lots        []models.Lot // in application order
	Agents      []models.Agent
}

// Total sums the lot prices.
func (b *Bundle) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Lots {
		total = total.Add(b.Lots[i].PriceOrComputed())
	}
	return total
}

// Renderer turns a bundle into document bytes.
type Renderer interface {
	Render(ctx context.Context, b *Bundle) ([]byte, error)
	ContentType() string
	Extension() string
}
