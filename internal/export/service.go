// Package export produces XLSX workbooks of imported invoices for the
// bookkeeping handover.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/repository"
)

// Service is a tiny façade over the invoice repository that produces XLSX
// bytes for exports.
type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) for the given
// company and invoice-date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all invoices for the company.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	fromDate, toDate := normalizeWindow(from, to)

	all, err := s.invoices.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	invs := filterByDate(all, fromDate, toDate)

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Invoice Date",
		"Supplier",
		"Invoice Number",
		"Net Total",
		"Gross Total",
		"Currency",
		"Due Date",
		"Auto Approved",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, inv := range invs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, inv.Date.Format("2006-01-02"))
		write(2, truncate(inv.SupplierName, 60))
		write(3, inv.Number)
		write(4, inv.NetTotal.StringFixed(2))
		write(5, inv.GrossTotal.StringFixed(2))
		write(6, inv.Currency)
		if inv.DueDate != nil {
			write(7, inv.DueDate.Format("2006-01-02"))
		} else {
			write(7, "")
		}
		if inv.AutoApproved {
			write(8, "yes")
		} else {
			write(8, "no")
		}

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "B", 36) // supplier
	_ = f.SetColWidth(sheet, "C", "C", 22) // number
	_ = f.SetColWidth(sheet, "D", "E", 14) // amounts
	_ = f.SetColWidth(sheet, "F", "F", 10) // currency
	_ = f.SetColWidth(sheet, "G", "G", 14) // due date
	_ = f.SetColWidth(sheet, "H", "H", 14) // approval

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"company_id", companyID.String(),
		"rows", len(invs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// normalizeWindow truncates the bounds to date-only UTC and defaults the
// upper bound to today when only a lower bound was given.
func normalizeWindow(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	return fromDate, toDate
}

func filterByDate(invs []entity.Invoice, from, to *time.Time) []entity.Invoice {
	if from == nil && to == nil {
		return invs
	}
	out := make([]entity.Invoice, 0, len(invs))
	for _, inv := range invs {
		d := time.Date(inv.Date.Year(), inv.Date.Month(), inv.Date.Day(), 0, 0, 0, 0, time.UTC)
		if from != nil && d.Before(*from) {
			continue
		}
		if to != nil && d.After(*to) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
