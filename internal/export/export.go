// Package export renders recorded sales as spreadsheet rows, one row per
// transaction item.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/safar/kasir/internal/models"
	"github.com/xuri/excelize/v2"
)

var Header = []string{
	"transaction_id",
	"created_at",
	"currency",
	"rate_to_base",
	"total",
	"paid",
	"change",
	"item_barcode",
	"item_name",
	"unit_price",
	"quantity",
	"subtotal",
}

// utf8BOM makes spreadsheet programs open the CSV as UTF-8.
const utf8BOM = "\uFEFF"

// Rows flattens receipts into cells. A transaction without items still gets
// one row, with the item columns left empty.
func Rows(receipts []models.Receipt) [][]any {
	var rows [][]any
	for _, r := range receipts {
		t := r.Transaction
		head := []any{
			t.ID,
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.Currency,
			t.RateToBase.String(),
			t.Total,
			t.Paid,
			t.Change,
		}

		if len(r.Items) == 0 {
			rows = append(rows, append(append([]any{}, head...), "", "", "", "", ""))
			continue
		}
		for _, it := range r.Items {
			barcode := ""
			if it.Barcode != nil {
				barcode = *it.Barcode
			}
			row := append(append([]any{}, head...), barcode, it.Name, it.UnitPrice, it.Quantity, it.Subtotal)
			rows = append(rows, row)
		}
	}
	return rows
}

func WriteCSV(w io.Writer, receipts []models.Receipt) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range Rows(receipts) {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = fmt.Sprint(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Transactions"

func WriteXLSX(w io.Writer, receipts []models.Receipt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range Rows(receipts) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
