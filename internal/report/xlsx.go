package report

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/xuri/excelize/v2"

	"dividi/internal/core"
)

// XLSX renders the report as a single-sheet workbook named after the month.
// Amounts are numeric cells; the last row holds the total.
func XLSX(r core.Report) ([]byte, error) {
	xlsx := excelize.NewFile()
	defer xlsx.Close()

	_ = xlsx.SetAppProps(&excelize.AppProperties{Application: "dividi"})

	sheet := r.Key.String()
	if err := xlsx.SetSheetName(xlsx.GetSheetName(xlsx.GetActiveSheetIndex()), sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	_ = xlsx.SetColWidth(sheet, "A", "A", 12)
	_ = xlsx.SetColWidth(sheet, "B", "B", 12)
	_ = xlsx.SetColWidth(sheet, "C", "C", 50)
	_ = xlsx.SetColWidth(sheet, "D", "D", 16)

	headers := []string{"Date", "Amount", "Description", "Paid By"}
	for i, h := range headers {
		_ = xlsx.SetCellValue(sheet, cell('A'+rune(i), 1), h)
	}
	style, _ := xlsx.NewStyle(mergeStyles(fontBold(), thinBorder("bottom")))
	_ = xlsx.SetCellStyle(sheet, cell('A', 1), cell('D', 1), style)

	row := 2
	for _, line := range r.Rows {
		amount, _ := line.Amount.Float64()
		_ = xlsx.SetCellValue(sheet, cell('A', row), line.Date)
		_ = xlsx.SetCellFloat(sheet, cell('B', row), amount, -1, 64)
		_ = xlsx.SetCellValue(sheet, cell('C', row), line.Description)
		_ = xlsx.SetCellValue(sheet, cell('D', row), line.PaidBy)
		row++
	}
	amountStyle, _ := xlsx.NewStyle(numberFormat())
	_ = xlsx.SetCellStyle(sheet, cell('B', 2), cell('B', row), amountStyle)

	_ = xlsx.SetCellValue(sheet, cell('A', row), "Total")
	_ = xlsx.SetCellFormula(sheet, cell('B', row), fmt.Sprintf("SUM(B2:B%d)", row-1))
	totalStyle, _ := xlsx.NewStyle(mergeStyles(fontBold(), numberFormat(), thinBorder("top")))
	_ = xlsx.SetCellStyle(sheet, cell('A', row), cell('D', row), totalStyle)

	_ = xlsx.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	buf, err := xlsx.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(col rune, row int) string {
	return fmt.Sprintf("%c%d", col, row)
}

func fontBold() *excelize.Style {
	return &excelize.Style{Font: &excelize.Font{Bold: true}}
}

func numberFormat() *excelize.Style {
	f := "#,##0.00"
	return &excelize.Style{CustomNumFmt: &f}
}

func thinBorder(side string) *excelize.Style {
	return &excelize.Style{Border: []excelize.Border{{Type: side, Color: "#000000", Style: 1}}}
}

func mergeStyles(ext ...*excelize.Style) *excelize.Style {
	if len(ext) == 0 {
		return nil
	}
	for _, e := range ext[1:] {
		_ = mergo.Merge(ext[0], e, mergo.WithOverride)
	}
	return ext[0]
}
