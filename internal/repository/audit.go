package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one append-only record of a pipeline decision.
type AuditEvent struct {
	CompanyID   uuid.UUID
	OCRResultID *uuid.UUID
	Action      string // e.g. "extraction_completed", "validation_failed", "invoice_imported"
	Detail      map[string]any
}

type AuditRepository interface {
	// Append is best-effort: failures are logged by the caller, never fatal.
	Append(ctx context.Context, ev AuditEvent) error
}

type auditRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuditRepository(pool *pgxpool.Pool, logger *slog.Logger) AuditRepository {
	return &auditRepository{pool: pool, logger: logger}
}

func (r *auditRepository) Append(ctx context.Context, ev AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, company_id, ocr_result_id, action, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.New(), ev.CompanyID, ev.OCRResultID, ev.Action, detail, time.Now().UTC())
	return err
}
