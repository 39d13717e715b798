package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbooks/invoice-ingest/internal/common"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

type SupplierRepository interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.Supplier, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Supplier, error)
	Create(ctx context.Context, s *entity.Supplier) error
}

type supplierRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSupplierRepository(pool *pgxpool.Pool, logger *slog.Logger) SupplierRepository {
	return &supplierRepository{pool: pool, logger: logger}
}

const supplierColumns = `id, company_id, name, vat_id, iban, bic, address, created_at`

func (r *supplierRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []entity.Supplier
	for rows.Next() {
		var s entity.Supplier
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Name, &s.VatID, &s.IBAN, &s.BIC, &s.Address, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *supplierRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Supplier, error) {
	var s entity.Supplier
	err := r.pool.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.CompanyID, &s.Name, &s.VatID, &s.IBAN, &s.BIC, &s.Address, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query supplier: %w", err)
	}
	return &s, nil
}

func (r *supplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO suppliers (id, company_id, name, vat_id, iban, bic, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.CompanyID, s.Name, s.VatID, s.IBAN, s.BIC, s.Address, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert supplier: %w", err)
	}

	r.logger.Debug("repository.suppliers.created", "id", s.ID, "name", s.Name)
	return nil
}
