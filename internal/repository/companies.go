package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

type CompanyRepository interface {
	// GetByID resolves the tenant context; a missing row maps to
	// common.ErrCompanyNotFound, a fatal pre-stage condition.
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error)
}

type companyRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCompanyRepository(pool *pgxpool.Pool, logger *slog.Logger) CompanyRepository {
	return &companyRepository{pool: pool, logger: logger}
}

func (r *companyRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	var c entity.Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, vat_id, tax_number, require_vat, default_currency
		FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.VatID, &c.TaxNumber, &c.RequireVAT, &c.DefaultCurrency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query company: %w", err)
	}
	return &c, nil
}
