package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName       = "Contract"
	sheetDateLayout = "2006-01-02"
)

var lotHeader = []string{"Block", "Lot", "Type", "Size (sqm)", "Price / sqm", "Amount"}

var lotColumnWidths = []float64{10, 10, 14, 14, 16, 18}

// SheetRenderer renders a contract as a single-sheet XLSX workbook.
type SheetRenderer struct {
	Title string
}

func NewSheetRenderer() *SheetRenderer {
	return &SheetRenderer{Title: "Contract to Sell"}
}

func (r *SheetRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *SheetRenderer) Extension() string { return ".xlsx" }

func (r *SheetRenderer) Render(ctx context.Context, b *Bundle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetCellValue(SheetName, "A1", r.Title); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", "A1", styles.title); err != nil {
		return nil, err
	}

	agents := make([]string, 0, len(b.Agents))
	for _, a := range b.Agents {
		agents = append(agents, a.FullName)
	}
	details := [][2]string{
		{"Contract No.", b.Contract.ID.String()},
		{"Date", b.Contract.CreatedAt.Format(sheetDateLayout)},
		{"Term", b.Contract.Term},
		{"Buyer", b.Client.FullName()},
		{"Email", b.Client.Email},
		{"Address", b.Client.Address},
		{"Land", b.Land.Name},
		{"Location", b.Land.Location},
		{"Agents", strings.Join(agents, ", ")},
	}
	row := 2
	for _, d := range details {
		if err := setRow(f, row, styles.label, d[0], d[1]); err != nil {
			return nil, err
		}
		row++
	}

	row++
	headerRow := row
	for col, h := range lotHeader {
		if err := setCell(f, col+1, row, h); err != nil {
			return nil, err
		}
	}
	if err := styleRow(f, row, len(lotHeader), styles.header); err != nil {
		return nil, err
	}
	for i, w := range lotColumnWidths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, name, name, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for _, lot := range b.Lots {
		row++
		values := []any{
			lot.BlockNumber,
			lot.LotNumber,
			lot.LotType,
			lot.Size.InexactFloat64(),
			lot.PricePerSqm.InexactFloat64(),
			lot.PriceOrComputed().InexactFloat64(),
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, err
			}
		}
		if err := styleRange(f, 4, row, 6, row, styles.money); err != nil {
			return nil, err
		}
	}

	row++
	if err := setCell(f, 5, row, "Total"); err != nil {
		return nil, err
	}
	if err := setCell(f, 6, row, b.Total().InexactFloat64()); err != nil {
		return nil, err
	}
	if err := styleRange(f, 5, row, 6, row, styles.total); err != nil {
		return nil, err
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type sheetStyles struct {
	title, label, header, money, total int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
	moneyFmt := "#,##0.00"

	var s sheetStyles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return nil, fmt.Errorf("title style: %w", err)
	}
	if s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, fmt.Errorf("label style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt}); err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		Border:       border,
		CustomNumFmt: &moneyFmt,
	}); err != nil {
		return nil, fmt.Errorf("total style: %w", err)
	}
	return &s, nil
}

func setRow(f *excelize.File, row, labelStyle int, label, value string) error {
	if err := setCell(f, 1, row, label); err != nil {
		return err
	}
	if err := setCell(f, 2, row, value); err != nil {
		return err
	}
	return styleRange(f, 1, row, 1, row, labelStyle)
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}

func styleRow(f *excelize.File, row, cols, style int) error {
	return styleRange(f, 1, row, cols, row, style)
}

func styleRange(f *excelize.File, col1, row1, col2, row2, style int) error {
	from, err := excelize.CoordinatesToCellName(col1, row1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(col2, row2)
	if err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, from, to, style)
}
