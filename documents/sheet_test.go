package documents

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"landsale/models"
)

func testBundle() *Bundle {
	return &Bundle{
		Contract: models.Contract{
			ID:        uuid.MustParse("7b0c6f62-2a39-4f5e-9d7e-0d8f3c1a2b44"),
			Term:      "60 months",
			CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		},
		Client: models.Client{FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com", Address: "12 Mabini St"},
		Land:   models.Land{Name: "Green Meadows", Location: "Tanauan"},
		Lots: []models.Lot{
			{BlockNumber: "2", LotNumber: "7", LotType: "corner", Size: decimal.NewFromInt(150), PricePerSqm: decimal.NewFromInt(4500)},
			{BlockNumber: "1", LotNumber: "3", LotType: "inner", Size: decimal.NewFromInt(120), PricePerSqm: decimal.NewFromInt(4000),
				TotalAmount: decimal.NewFromInt(500000)},
		},
		Agents: []models.Agent{{FullName: "Ben Santos"}, {FullName: "Carla Reyes"}},
	}
}

func openRendered(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestSheetRendererWritesDetails(t *testing.T) {
	r := NewSheetRenderer()
	data, err := r.Render(context.Background(), testBundle())
	require.NoError(t, err)

	f := openRendered(t, data)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	cells := map[string]string{
		"A1":  "Contract to Sell",
		"A2":  "Contract No.",
		"B2":  "7b0c6f62-2a39-4f5e-9d7e-0d8f3c1a2b44",
		"B3":  "2026-03-14",
		"B4":  "60 months",
		"B5":  "Ana Cruz",
		"B8":  "Green Meadows",
		"B10": "Ben Santos, Carla Reyes",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}
}

func TestSheetRendererKeepsLotOrderAndTotals(t *testing.T) {
	data, err := NewSheetRenderer().Render(context.Background(), testBundle())
	require.NoError(t, err)

	f := openRendered(t, data)
	rows, err := f.GetRows(SheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)

	header := -1
	for i, row := range rows {
		if len(row) > 0 && row[0] == "Block" {
			header = i
			break
		}
	}
	require.NotEqual(t, -1, header, "lot header row")
	require.Len(t, rows, header+4)

	first, second, total := rows[header+1], rows[header+2], rows[header+3]
	assert.Equal(t, []string{"2", "7", "corner"}, first[:3])
	assert.Equal(t, "675000", first[5])
	assert.Equal(t, []string{"1", "3", "inner"}, second[:3])
	assert.Equal(t, "500000", second[5])
	assert.Equal(t, "Total", total[4])
	assert.Equal(t, "1175000", total[5])
}

func TestSheetRendererHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSheetRenderer().Render(ctx, testBundle())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundleTotal(t *testing.T) {
	assert.True(t, decimal.NewFromInt(1175000).Equal(testBundle().Total()))
	assert.True(t, (&Bundle{}).Total().IsZero())
}
