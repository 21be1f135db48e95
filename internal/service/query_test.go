package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

func TestQueryService_QueuesAndAggregates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.On("Reverse", mock.Anything, mock.Anything).Return(nil)

	first := f.request(t, "T-1")
	second := f.request(t, "T-2")
	approved := f.pendingApproval(t, "T-3")
	_, err := f.workflow.Decide(ctx, superAdminC, approved.ID, models.DecisionApprove, "")
	require.NoError(t, err)

	q := NewQueryService(f.repo)

	records, page, err := q.List(ctx, "pending_authorization", models.Page{})
	require.NoError(t, err)
	assert.Equal(t, models.Page{Number: 1, Size: models.DefaultPageSize}, page)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)

	records, _, err = q.List(ctx, models.StatusPendingAuthorization, models.Page{Number: 2, Size: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second.ID, records[0].ID)

	counts, err := q.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.RefundStatus]int64{
		models.StatusPendingAuthorization: 2,
		models.StatusPendingApproval:      0,
		models.StatusCompleted:            1,
		models.StatusRejected:             0,
	}, counts)

	total, err := q.TotalValue(ctx, models.StatusPendingAuthorization)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), total)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStats{Count: 1, TotalAmount: 15000}, stats[models.StatusCompleted])
	assert.Equal(t, models.StatusStats{}, stats[models.StatusRejected])

	got, err := q.Get(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

// snapshotStore fails the per-status aggregates so only a grouped read works.
type snapshotStore struct {
	interfaces.RefundStore
	reads int
}

func (s *snapshotStore) CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error) {
	return nil, errors.New("separate count read")
}

func (s *snapshotStore) SumAmountByStatus(ctx context.Context, status models.RefundStatus) (int64, error) {
	return 0, errors.New("separate sum read")
}

func (s *snapshotStore) StatsByStatus(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error) {
	s.reads++
	return s.RefundStore.StatsByStatus(ctx)
}

func TestQueryService_StatsReadsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.request(t, "T-1")
	f.request(t, "T-2")

	store := &snapshotStore{RefundStore: f.repo}
	stats, err := NewQueryService(store).Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, store.reads)
	assert.Len(t, stats, len(models.AllStatuses))
	assert.Equal(t, models.StatusStats{Count: 2, TotalAmount: 30000}, stats[models.StatusPendingAuthorization])
	assert.Equal(t, models.StatusStats{}, stats[models.StatusPendingApproval])
}

func TestQueryService_RejectsUnknownStatus(t *testing.T) {
	q := NewQueryService(newFixture(t).repo)

	_, _, err := q.List(context.Background(), "OPEN", models.Page{})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = q.TotalValue(context.Background(), "")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("  completed ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	_, err = ParseStatus("done")
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "status", vErr.Field)
}
