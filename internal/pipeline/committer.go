package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
	"github.com/craftbooks/invoice-ingest/internal/repository"
)

// CommitOutcome reports what the import stage persisted.
type CommitOutcome struct {
	InvoiceID          uuid.UUID
	SupplierID         uuid.UUID
	SupplierWasCreated bool
}

// Committer persists the final import decision: the supplier (created on
// first sight), the invoice entity, and the status flip to imported. A
// failure leaves the OCRResult at validated so the caller can retry.
type Committer struct {
	suppliers repository.SupplierRepository
	invoices  repository.InvoiceRepository
	results   repository.OCRResultRepository
	audit     repository.AuditRepository
	log       *slog.Logger
}

func NewCommitter(
	suppliers repository.SupplierRepository,
	invoices repository.InvoiceRepository,
	results repository.OCRResultRepository,
	audit repository.AuditRepository,
	logger *slog.Logger,
) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		suppliers: suppliers,
		invoices:  invoices,
		results:   results,
		audit:     audit,
		log:       logger,
	}
}

// Commit imports one validated, non-duplicate-blocked result. When no roster
// match was resolved, the extracted supplier identity becomes a new supplier.
func (c *Committer) Commit(ctx context.Context, company *entity.Company, res *entity.OCRResult, matched *entity.SupplierMatch, autoApproved bool) (CommitOutcome, error) {
	data := res.StructuredData
	if data == nil {
		return CommitOutcome{}, errors.New("commit without structured data")
	}

	var out CommitOutcome
	if matched != nil {
		out.SupplierID = matched.SupplierID
	} else {
		supplier := &entity.Supplier{
			CompanyID: company.ID,
			Name:      data.Supplier.Name,
			VatID:     data.Supplier.VatID,
			IBAN:      data.Supplier.IBAN,
			BIC:       data.Supplier.BIC,
			Address:   data.Supplier.Address,
		}
		if err := c.suppliers.Create(ctx, supplier); err != nil {
			return CommitOutcome{}, fmt.Errorf("create supplier: %w", err)
		}
		out.SupplierID = supplier.ID
		out.SupplierWasCreated = true
		c.log.Info("pipeline.commit.supplier_created",
			"supplier_id", supplier.ID, "name", supplier.Name)
	}

	invoiceDate, err := time.Parse("2006-01-02", data.Invoice.Date)
	if err != nil {
		return CommitOutcome{}, fmt.Errorf("parse invoice date: %w", err)
	}
	var dueDate *time.Time
	if data.Invoice.DueDate != "" {
		if d, err := time.Parse("2006-01-02", data.Invoice.DueDate); err == nil {
			dueDate = &d
		}
	}

	invoice := &entity.Invoice{
		CompanyID:    company.ID,
		SupplierID:   out.SupplierID,
		Number:       data.Invoice.Number,
		Date:         invoiceDate,
		DueDate:      dueDate,
		Currency:     data.Invoice.Currency,
		NetTotal:     data.Totals.Net,
		GrossTotal:   data.Totals.Gross,
		OCRResultID:  &res.ID,
		AutoApproved: autoApproved,
	}
	if err := c.invoices.Create(ctx, invoice); err != nil {
		// ErrInvoiceExists passes through so the orchestrator can map it to
		// the duplicate code
		return out, err
	}
	out.InvoiceID = invoice.ID

	if err := c.results.UpdateStatus(ctx, res.ID, constants.OCRStatusImported, ""); err != nil {
		return out, fmt.Errorf("mark ocr result imported: %w", err)
	}

	c.appendAudit(ctx, company.ID, &res.ID, "invoice_imported", map[string]any{
		"invoice_id":           invoice.ID.String(),
		"supplier_id":          out.SupplierID.String(),
		"supplier_was_created": out.SupplierWasCreated,
		"number":               invoice.Number,
		"gross_total":          invoice.GrossTotal.String(),
		"auto_approved":        autoApproved,
	})
	return out, nil
}

// appendAudit is best-effort: a failing audit write is logged, never fatal.
func (c *Committer) appendAudit(ctx context.Context, companyID uuid.UUID, resultID *uuid.UUID, action string, detail map[string]any) {
	if c.audit == nil {
		return
	}
	err := c.audit.Append(ctx, repository.AuditEvent{
		CompanyID:   companyID,
		OCRResultID: resultID,
		Action:      action,
		Detail:      detail,
	})
	if err != nil {
		c.log.Warn("pipeline.audit.append_failed", "action", action, "error", err)
	}
}
