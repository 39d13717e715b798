package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

const uniqueViolation = "23505"

type InvoiceRepository interface {
	// Create inserts the invoice. The (company_id, supplier_id, number)
	// uniqueness constraint is the at-most-once guarantee behind duplicate
	// detection; violations map to common.ErrInvoiceExists.
	Create(ctx context.Context, inv *entity.Invoice) error
	// ListSince returns invoices created on or after the cutoff, joined with
	// the supplier name for duplicate-warning detail.
	ListSince(ctx context.Context, companyID uuid.UUID, since time.Time) ([]entity.Invoice, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.Invoice, error)
}

type invoiceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{pool: pool, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (id, company_id, supplier_id, number, date, due_date,
			currency, net_total, gross_total, ocr_result_id, auto_approved, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		inv.ID, inv.CompanyID, inv.SupplierID, inv.Number, inv.Date, inv.DueDate,
		inv.Currency, inv.NetTotal, inv.GrossTotal, inv.OCRResultID, inv.AutoApproved, inv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrInvoiceExists
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	r.logger.Info("repository.invoices.created",
		"id", inv.ID, "number", inv.Number, "supplier_id", inv.SupplierID)
	return nil
}

const invoiceSelect = `
	SELECT i.id, i.company_id, i.supplier_id, i.number, i.date, i.due_date,
	       i.currency, i.net_total, i.gross_total, i.ocr_result_id, i.auto_approved,
	       s.name, i.created_at
	FROM invoices i
	JOIN suppliers s ON s.id = i.supplier_id`

func (r *invoiceRepository) ListSince(ctx context.Context, companyID uuid.UUID, since time.Time) ([]entity.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		invoiceSelect+` WHERE i.company_id = $1 AND i.created_at >= $2 ORDER BY i.created_at DESC`,
		companyID, since)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *invoiceRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		invoiceSelect+` WHERE i.company_id = $1 ORDER BY i.date DESC, i.number`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func scanInvoices(rows pgx.Rows) ([]entity.Invoice, error) {
	var invoices []entity.Invoice
	for rows.Next() {
		var inv entity.Invoice
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &inv.SupplierID, &inv.Number,
			&inv.Date, &inv.DueDate, &inv.Currency, &inv.NetTotal, &inv.GrossTotal,
			&inv.OCRResultID, &inv.AutoApproved, &inv.SupplierName, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
