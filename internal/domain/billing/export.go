package billing

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Invoices"
	exportPageSize = 500
)

var exportHeaders = []string{
	"Invoice Number", "Patient ID", "Admission ID", "Status", "Subtotal", "Tax %", "Tax",
	"Discount", "Total", "Paid", "Balance", "Due Date", "Created At",
}

var exportColumnWidths = []float64{18, 38, 38, 12, 14, 8, 12, 12, 14, 14, 14, 12, 22}

// ExportInvoices writes the hospital's invoices, optionally filtered by
// status, as an xlsx workbook. Money cells are numbers with two decimals.
func (s *Service) ExportInvoices(ctx context.Context, hospitalID uuid.UUID, status string, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"305496"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return 0, fmt.Errorf("header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return 0, fmt.Errorf("money style: %w", err)
	}

	for i, h := range exportHeaders {
		if err := setCell(f, i+1, 1, h); err != nil {
			return 0, err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetColWidth(exportSheet, col, col, exportColumnWidths[i]); err != nil {
			return 0, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return 0, err
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.ListInvoices(ctx, hospitalID, status, exportPageSize, offset)
		if err != nil {
			return 0, err
		}
		for _, inv := range page {
			if err := writeInvoiceRow(f, row, inv); err != nil {
				return 0, err
			}
			row++
		}
		if len(page) == 0 || offset+exportPageSize >= total {
			break
		}
	}

	count := row - 2
	if count > 0 {
		from, _ := excelize.CoordinatesToCellName(5, 2)
		to, _ := excelize.CoordinatesToCellName(11, row-1)
		if err := f.SetCellStyle(exportSheet, from, to, moneyStyle); err != nil {
			return 0, err
		}
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return 0, err
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info().Str("hospital_id", hospitalID.String()).Int("invoices", count).Msg("invoices exported")
	return count, nil
}

func writeInvoiceRow(f *excelize.File, row int, inv *Invoice) error {
	admission := ""
	if inv.AdmissionID != nil {
		admission = inv.AdmissionID.String()
	}
	due := ""
	if inv.DueDate != nil {
		due = inv.DueDate.Format("2006-01-02")
	}
	values := []interface{}{
		inv.InvoiceNumber,
		inv.PatientID.String(),
		admission,
		inv.Status,
		inv.Subtotal.InexactFloat64(),
		inv.TaxPercent.InexactFloat64(),
		inv.TaxAmount.InexactFloat64(),
		inv.DiscountAmount.InexactFloat64(),
		inv.TotalAmount.InexactFloat64(),
		inv.AmountPaid.InexactFloat64(),
		inv.Balance().InexactFloat64(),
		due,
		inv.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
	for i, v := range values {
		if err := setCell(f, i+1, row, v); err != nil {
			return err
		}
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(exportSheet, cell, value)
}
