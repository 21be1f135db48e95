package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation      = "23505"
	openTransactionIndex = "uq_refund_requests_open_transaction"
)

const refundColumns = `id, transaction_id, amount, currency, status, requested_by, authorized_by,
	approved_by, rejected_by, rejection_reason, note, version, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RefundRepository stores refund requests in PostgreSQL: one mutable row per
// request in refund_requests plus append-only rows in refund_audit_entries.
type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// InitDB applies the embedded schema migrations.
func (r *RefundRepository) InitDB(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, r.db, "migrations")
}

func (r *RefundRepository) Create(ctx context.Context, req models.RefundRequest) (models.RefundRequest, error) {
	rec := PrepareNew(req)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.RefundRequest{}, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refund_requests (`+refundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.TransactionID, rec.Amount, rec.Currency, rec.Status, rec.RequestedBy, rec.AuthorizedBy,
		rec.ApprovedBy, rec.RejectedBy, rec.RejectionReason, rec.Note, rec.Version, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == openTransactionIndex {
			tx.Rollback()
			return models.RefundRequest{}, &models.DuplicateRequestError{
				TransactionID: rec.TransactionID,
				ExistingID:    r.openRefundID(ctx, rec.TransactionID),
			}
		}
		return models.RefundRequest{}, fmt.Errorf("insert refund request: %w", err)
	}

	if err := insertAudit(ctx, tx, rec.ID, rec.AuditTrail[0]); err != nil {
		return models.RefundRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RefundRequest{}, fmt.Errorf("commit create: %w", err)
	}
	return rec, nil
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (models.RefundRequest, error) {
	return load(ctx, r.db, id)
}

// CompareAndSwap commits the mutated row and its audit entry in one
// transaction. The UPDATE is conditional on the version read, so a racing
// writer that committed first leaves zero affected rows and yields ErrConflict.
func (r *RefundRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate interfaces.Mutator) (models.RefundRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.RefundRequest{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	current, err := load(ctx, tx, id)
	if err != nil {
		return models.RefundRequest{}, err
	}
	next, entry, err := ApplyMutation(current, expectedVersion, mutate)
	if err != nil {
		return models.RefundRequest{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE refund_requests
		SET status = $1, authorized_by = $2, approved_by = $3, rejected_by = $4,
			rejection_reason = $5, version = $6, updated_at = $7
		WHERE id = $8 AND version = $9
	`, next.Status, next.AuthorizedBy, next.ApprovedBy, next.RejectedBy,
		next.RejectionReason, next.Version, next.UpdatedAt, id, expectedVersion)
	if err != nil {
		return models.RefundRequest{}, fmt.Errorf("update refund request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return models.RefundRequest{}, err
	}
	if rows == 0 {
		return models.RefundRequest{}, &models.ConflictError{RefundID: id, ExpectedVersion: expectedVersion}
	}

	if err := insertAudit(ctx, tx, id, entry); err != nil {
		return models.RefundRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RefundRequest{}, fmt.Errorf("commit transition: %w", err)
	}
	return next, nil
}

func (r *RefundRepository) ListByStatus(ctx context.Context, status models.RefundStatus, page models.Page) ([]models.RefundRequest, error) {
	page = page.Normalize()
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+refundColumns+`
		FROM refund_requests
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, status, page.Size, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	defer rows.Close()

	records := make([]models.RefundRequest, 0, page.Size)
	index := make(map[string]int)
	ids := make([]string, 0, page.Size)
	for rows.Next() {
		rec, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		index[rec.ID] = len(records)
		ids = append(ids, rec.ID)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return records, nil
	}

	auditRows, err := r.db.QueryContext(ctx, `
		SELECT refund_id, sequence, action, actor_id, actor_role, from_status, to_status, note, at
		FROM refund_audit_entries
		WHERE refund_id = ANY($1)
		ORDER BY refund_id, sequence
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer auditRows.Close()

	for auditRows.Next() {
		var refundID string
		var e models.AuditEntry
		if err := auditRows.Scan(&refundID, &e.Sequence, &e.Action, &e.ActorID, &e.ActorRole, &e.FromStatus, &e.ToStatus, &e.Note, &e.At); err != nil {
			return nil, err
		}
		i := index[refundID]
		records[i].AuditTrail = append(records[i].AuditTrail, e)
	}
	return records, auditRows.Err()
}

func (r *RefundRepository) CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM refund_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count refund requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RefundStatus]int64)
	for rows.Next() {
		var status models.RefundStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *RefundRepository) SumAmountByStatus(ctx context.Context, status models.RefundStatus) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refund_requests WHERE status = $1`, status).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum refund amounts: %w", err)
	}
	return total, nil
}

func (r *RefundRepository) StatsByStatus(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM refund_requests
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("aggregate refund requests: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.RefundStatus]models.StatusStats)
	for rows.Next() {
		var status models.RefundStatus
		var s models.StatusStats
		if err := rows.Scan(&status, &s.Count, &s.TotalAmount); err != nil {
			return nil, err
		}
		stats[status] = s
	}
	return stats, rows.Err()
}

func (r *RefundRepository) openRefundID(ctx context.Context, transactionID string) string {
	var id string
	_ = r.db.QueryRowContext(ctx, `
		SELECT id FROM refund_requests
		WHERE transaction_id = $1 AND status IN ('PENDING_AUTHORIZATION', 'PENDING_APPROVAL')
	`, transactionID).Scan(&id)
	return id
}

func load(ctx context.Context, q queryer, id string) (models.RefundRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id)
	rec, err := scanRefund(row)
	if err == sql.ErrNoRows {
		return models.RefundRequest{}, models.ErrNotFound
	}
	if err != nil {
		return models.RefundRequest{}, fmt.Errorf("load refund request: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sequence, action, actor_id, actor_role, from_status, to_status, note, at
		FROM refund_audit_entries
		WHERE refund_id = $1
		ORDER BY sequence
	`, id)
	if err != nil {
		return models.RefundRequest{}, fmt.Errorf("load audit trail: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.Sequence, &e.Action, &e.ActorID, &e.ActorRole, &e.FromStatus, &e.ToStatus, &e.Note, &e.At); err != nil {
			return models.RefundRequest{}, err
		}
		rec.AuditTrail = append(rec.AuditTrail, e)
	}
	return rec, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRefund(s scanner) (models.RefundRequest, error) {
	var rec models.RefundRequest
	err := s.Scan(&rec.ID, &rec.TransactionID, &rec.Amount, &rec.Currency, &rec.Status, &rec.RequestedBy,
		&rec.AuthorizedBy, &rec.ApprovedBy, &rec.RejectedBy, &rec.RejectionReason, &rec.Note,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func insertAudit(ctx context.Context, tx *sql.Tx, refundID string, e models.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO refund_audit_entries (refund_id, sequence, action, actor_id, actor_role, from_status, to_status, note, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, refundID, e.Sequence, e.Action, e.ActorID, e.ActorRole, e.FromStatus, e.ToStatus, e.Note, e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
