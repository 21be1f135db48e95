package service

import (
	"context"
	"strings"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

// QueryService is the read side for queues and dashboards. Nothing it
// returns may be used to drive a transition; the workflow re-reads.
type QueryService struct {
	repo  interfaces.RefundRepository
	stats interfaces.RefundStatsReader
}

func NewQueryService(store interfaces.RefundStore) *QueryService {
	return &QueryService{repo: store, stats: store}
}

func (q *QueryService) Get(ctx context.Context, id string) (models.RefundRequest, error) {
	return q.repo.GetByID(ctx, id)
}

// List returns one page of the queue for status, oldest first.
func (q *QueryService) List(ctx context.Context, status models.RefundStatus, page models.Page) ([]models.RefundRequest, models.Page, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return nil, models.Page{}, err
	}
	page = page.Normalize()
	records, err := q.repo.ListByStatus(ctx, status, page)
	if err != nil {
		return nil, models.Page{}, err
	}
	return records, page, nil
}

// CountByStatus returns a count for every status, zero when none exist.
func (q *QueryService) CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error) {
	raw, err := q.stats.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.RefundStatus]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = raw[s]
	}
	return counts, nil
}

// TotalValue sums the amounts of all refunds in status.
func (q *QueryService) TotalValue(ctx context.Context, status models.RefundStatus) (int64, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return 0, err
	}
	return q.stats.SumAmountByStatus(ctx, status)
}

// Stats returns count and total amount for every status. Both figures come
// from the same read, so they always agree with each other.
func (q *QueryService) Stats(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error) {
	raw, err := q.stats.StatsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[models.RefundStatus]models.StatusStats, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = raw[s]
	}
	return out, nil
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (models.RefundStatus, error) {
	status := models.RefundStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", models.NewValidationError("status", "must be one of PENDING_AUTHORIZATION, PENDING_APPROVAL, COMPLETED, REJECTED")
	}
	return status, nil
}
