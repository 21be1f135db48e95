package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

// Mutator applies one transition to a private copy of the stored record and
// returns the audit entry describing it. Returning an error aborts the write.
// The repository fills Sequence, FromStatus and ToStatus of the entry.
type Mutator func(record *models.RefundRequest) (models.AuditEntry, error)

// RefundRepository defines the contract for refund request storage.
// CompareAndSwap is the only way to modify an existing record.
type RefundRepository interface {
	Create(ctx context.Context, req models.RefundRequest) (models.RefundRequest, error)
	GetByID(ctx context.Context, id string) (models.RefundRequest, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (models.RefundRequest, error)
	ListByStatus(ctx context.Context, status models.RefundStatus, page models.Page) ([]models.RefundRequest, error)
}

// RefundStatsReader exposes read-only aggregates for dashboards.
type RefundStatsReader interface {
	CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error)
	SumAmountByStatus(ctx context.Context, status models.RefundStatus) (int64, error)
	// StatsByStatus returns count and amount per status from one snapshot.
	// Statuses with no records may be absent.
	StatsByStatus(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error)
}

// RefundStore is what a storage backend provides.
type RefundStore interface {
	RefundRepository
	RefundStatsReader
}
