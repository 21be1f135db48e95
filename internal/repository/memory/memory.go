package memory

import (
	"context"
	"sync"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository"
)

// RefundRepository keeps refund requests in process memory. Used for local
// development and tests; the mutex makes every CompareAndSwap atomic.
type RefundRepository struct {
	mu      sync.RWMutex
	records map[string]models.RefundRequest
	// transaction id -> id of its open refund
	open map[string]string
}

func NewRefundRepository() *RefundRepository {
	return &RefundRepository{
		records: make(map[string]models.RefundRequest),
		open:    make(map[string]string),
	}
}

func (r *RefundRepository) Create(ctx context.Context, req models.RefundRequest) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.open[req.TransactionID]; ok {
		return models.RefundRequest{}, &models.DuplicateRequestError{TransactionID: req.TransactionID, ExistingID: existing}
	}
	if _, ok := r.records[req.ID]; ok {
		return models.RefundRequest{}, &models.DuplicateRequestError{TransactionID: req.TransactionID, ExistingID: req.ID}
	}

	rec := repository.PrepareNew(req)
	r.records[rec.ID] = rec
	r.open[rec.TransactionID] = rec.ID
	return rec.Clone(), nil
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return models.RefundRequest{}, models.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *RefundRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate interfaces.Mutator) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[id]
	if !ok {
		return models.RefundRequest{}, models.ErrNotFound
	}
	next, _, err := repository.ApplyMutation(current, expectedVersion, mutate)
	if err != nil {
		return models.RefundRequest{}, err
	}

	r.records[id] = next
	if next.Status.Terminal() {
		delete(r.open, next.TransactionID)
	}
	return next.Clone(), nil
}

func (r *RefundRepository) ListByStatus(ctx context.Context, status models.RefundStatus, page models.Page) ([]models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]models.RefundRequest, 0)
	for _, rec := range r.records {
		if rec.Status == status {
			matched = append(matched, rec.Clone())
		}
	}
	r.mu.RUnlock()

	repository.SortQueue(matched)
	return repository.Paginate(matched, page), nil
}

func (r *RefundRepository) CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.RefundStatus]int64)
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (r *RefundRepository) StatsByStatus(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[models.RefundStatus]models.StatusStats)
	for _, rec := range r.records {
		s := stats[rec.Status]
		s.Count++
		s.TotalAmount += rec.Amount
		stats[rec.Status] = s
	}
	return stats, nil
}

func (r *RefundRepository) SumAmountByStatus(ctx context.Context, status models.RefundStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, rec := range r.records {
		if rec.Status == status {
			total += rec.Amount
		}
	}
	return total, nil
}
