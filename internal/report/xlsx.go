package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hairbuy/intake/internal/pricing"
	"github.com/hairbuy/intake/internal/store"
)

const (
	applicationsSheet = "Заявки"
	priceSheet        = "Прайс"
	rangeSheet        = "Диапазоны"

	// numFmtThousands is the built-in "#,##0" format.
	numFmtThousands = 3
)

// ApplicationsXLSX renders apps as a workbook with a styled header row and
// numeric price columns.
func ApplicationsXLSX(apps []store.Application) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), applicationsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(xl, applicationsSheet, applicationHeader); err != nil {
		return nil, err
	}

	for i, a := range apps {
		row := make([]any, 0, len(applicationHeader))
		for j, v := range applicationRecord(a) {
			switch j {
			case 0:
				row = append(row, a.ID)
			case 11:
				row = append(row, a.EstimatedPrice)
			case 12:
				if a.FinalPrice != nil {
					row = append(row, *a.FinalPrice)
				} else {
					row = append(row, nil)
				}
			default:
				row = append(row, v)
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(applicationsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", a.ID, err)
		}
	}

	if len(apps) > 0 {
		if err := styleNumbers(xl, applicationsSheet, "L2", fmt.Sprintf("M%d", len(apps)+1)); err != nil {
			return nil, err
		}
	}
	_ = xl.SetColWidth(applicationsSheet, "A", "A", 8)
	_ = xl.SetColWidth(applicationsSheet, "B", "N", 18)
	_ = xl.SetColWidth(applicationsSheet, "O", "P", 40)

	return writeBook(xl)
}

// PriceTableXLSX renders every priced combination using the engine, so the
// sheet shows exactly what quotes return. A second sheet lists the min/max
// range per length and color.
func PriceTableXLSX(engine *pricing.Engine) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), priceSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeHeader(xl, priceSheet, []string{"Длина", "Цвет", "Структура", "Состояние", "Цена, " + engine.Table().Currency()}); err != nil {
		return nil, err
	}
	rows, err := PriceGrid(engine)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Band.Label(), r.Color.Label(), r.Structure.Label(), r.Condition.Label(), r.Amount}
		if err := xl.SetSheetRow(priceSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write price row: %w", err)
		}
	}
	if err := styleNumbers(xl, priceSheet, "E2", fmt.Sprintf("E%d", len(rows)+1)); err != nil {
		return nil, err
	}
	_ = xl.SetColWidth(priceSheet, "A", "D", 22)
	_ = xl.SetColWidth(priceSheet, "E", "E", 14)

	if _, err := xl.NewSheet(rangeSheet); err != nil {
		return nil, fmt.Errorf("add range sheet: %w", err)
	}
	if err := writeHeader(xl, rangeSheet, []string{"Длина", "Цвет", "От", "До"}); err != nil {
		return nil, err
	}
	ranges, err := PriceRanges(engine)
	if err != nil {
		return nil, err
	}
	for i, r := range ranges {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Band.Label(), r.Color.Label(), r.Min, r.Max}
		if err := xl.SetSheetRow(rangeSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write range row: %w", err)
		}
	}
	if err := styleNumbers(xl, rangeSheet, "C2", fmt.Sprintf("D%d", len(ranges)+1)); err != nil {
		return nil, err
	}
	_ = xl.SetColWidth(rangeSheet, "A", "B", 22)

	return writeBook(xl)
}

func writeHeader(xl *excelize.File, sheet string, header []string) error {
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	style, err := xl.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E2EFDA"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := xl.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

func styleNumbers(xl *excelize.File, sheet, from, to string) error {
	style, err := xl.NewStyle(&excelize.Style{NumFmt: numFmtThousands})
	if err != nil {
		return fmt.Errorf("create number style: %w", err)
	}
	if err := xl.SetCellStyle(sheet, from, to, style); err != nil {
		return fmt.Errorf("style %s prices: %w", sheet, err)
	}
	return nil
}

func writeBook(xl *excelize.File) ([]byte, error) {
	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
