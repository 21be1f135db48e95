// Package repositorytest holds the behaviour every refund store must share.
package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewRecord builds an unsaved refund request for transactionID.
func NewRecord(id, transactionID string, createdAt time.Time, amount int64) models.RefundRequest {
	return models.RefundRequest{
		ID:            id,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      "USD",
		RequestedBy:   "operator-a",
		CreatedAt:     createdAt,
		AuditTrail: []models.AuditEntry{{
			Action:    models.TransitionRequest,
			ActorID:   "operator-a",
			ActorRole: models.RoleOperator,
			At:        createdAt,
		}},
	}
}

func moveTo(status models.RefundStatus, actorID string) interfaces.Mutator {
	return func(rec *models.RefundRequest) (models.AuditEntry, error) {
		rec.Status = status
		rec.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
		switch status {
		case models.StatusPendingApproval:
			rec.AuthorizedBy = actorID
		case models.StatusCompleted:
			rec.ApprovedBy = actorID
		case models.StatusRejected:
			rec.RejectedBy = actorID
			rec.RejectionReason = "customer withdrew"
		}
		return models.AuditEntry{ActorID: actorID, ActorRole: models.RoleSuperAdmin, At: rec.UpdatedAt}, nil
	}
}

// Run exercises store against the RefundStore contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.RefundStore) {
	ctx := context.Background()

	t.Run("create sets initial state", func(t *testing.T) {
		store := newStore(t)
		rec := NewRecord("r-1", "T-900", base, 15000)
		rec.Status = models.StatusCompleted
		rec.AuthorizedBy = "sneaky"

		created, err := store.Create(ctx, rec)
		require.NoError(t, err)
		require.Equal(t, models.StatusPendingAuthorization, created.Status)
		require.Empty(t, created.AuthorizedBy)
		require.Equal(t, int64(1), created.Version)
		require.Len(t, created.AuditTrail, 1)
		require.Equal(t, 1, created.AuditTrail[0].Sequence)

		got, err := store.GetByID(ctx, "r-1")
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
		require.Equal(t, created.Amount, got.Amount)
		require.Len(t, got.AuditTrail, 1)
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetByID(ctx, "missing")
		require.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("duplicate open refund for transaction", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)

		_, err = store.Create(ctx, NewRecord("r-2", "T-900", base, 100))
		require.True(t, errors.Is(err, models.ErrDuplicateRequest))
		var dup *models.DuplicateRequestError
		require.True(t, errors.As(err, &dup))
		require.Equal(t, "r-1", dup.ExistingID)
	})

	t.Run("terminal refund frees the transaction", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusRejected, "admin-b"))
		require.NoError(t, err)

		_, err = store.Create(ctx, NewRecord("r-2", "T-900", base.Add(time.Hour), 15000))
		require.NoError(t, err)
	})

	t.Run("compare and swap appends audit and bumps version", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)

		next, err := store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusPendingApproval, "admin-b"))
		require.NoError(t, err)
		require.Equal(t, int64(2), next.Version)
		require.Len(t, next.AuditTrail, 2)
		entry := next.AuditTrail[1]
		require.Equal(t, 2, entry.Sequence)
		require.Equal(t, models.StatusPendingAuthorization, entry.FromStatus)
		require.Equal(t, models.StatusPendingApproval, entry.ToStatus)

		got, err := store.GetByID(ctx, "r-1")
		require.NoError(t, err)
		require.Equal(t, next.AuditTrail, got.AuditTrail)
		require.Equal(t, "admin-b", got.AuthorizedBy)
	})

	t.Run("stale version conflicts and leaves record unchanged", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusPendingApproval, "admin-b"))
		require.NoError(t, err)

		_, err = store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusPendingApproval, "admin-d"))
		require.True(t, errors.Is(err, models.ErrConflict))

		got, err := store.GetByID(ctx, "r-1")
		require.NoError(t, err)
		require.Equal(t, "admin-b", got.AuthorizedBy)
		require.Len(t, got.AuditTrail, 2)
	})

	t.Run("mutator error aborts the write", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = store.CompareAndSwap(ctx, "r-1", 1, func(rec *models.RefundRequest) (models.AuditEntry, error) {
			rec.Status = models.StatusCompleted
			return models.AuditEntry{}, boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.GetByID(ctx, "r-1")
		require.NoError(t, err)
		require.Equal(t, models.StatusPendingAuthorization, got.Status)
		require.Equal(t, int64(1), got.Version)
	})

	t.Run("immutable fields survive a mutator", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)

		got, err := store.CompareAndSwap(ctx, "r-1", 1, func(rec *models.RefundRequest) (models.AuditEntry, error) {
			rec.Amount = 1
			rec.RequestedBy = "someone-else"
			rec.Status = models.StatusPendingApproval
			rec.AuthorizedBy = "admin-b"
			return models.AuditEntry{ActorID: "admin-b"}, nil
		})
		require.NoError(t, err)
		require.Equal(t, int64(15000), got.Amount)
		require.Equal(t, "operator-a", got.RequestedBy)
	})

	t.Run("terminal record refuses further writes", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusRejected, "admin-b"))
		require.NoError(t, err)

		_, err = store.CompareAndSwap(ctx, "r-1", 2, moveTo(models.StatusPendingApproval, "admin-b"))
		require.True(t, errors.Is(err, models.ErrInvalidState))
	})

	t.Run("concurrent swaps on one record linearize", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-900", base, 15000))
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.CompareAndSwap(ctx, "r-1", 1, moveTo(models.StatusPendingApproval, fmt.Sprintf("admin-%d", i)))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			require.True(t, errors.Is(err, models.ErrConflict), "unexpected error: %v", err)
		}
		require.Equal(t, 1, wins)

		got, err := store.GetByID(ctx, "r-1")
		require.NoError(t, err)
		require.Len(t, got.AuditTrail, 2)
	})

	t.Run("list by status is oldest first and paginated", func(t *testing.T) {
		store := newStore(t)
		for i, offset := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
			_, err := store.Create(ctx, NewRecord(fmt.Sprintf("r-%d", i), fmt.Sprintf("T-%d", i), base.Add(offset), 100))
			require.NoError(t, err)
		}

		first, err := store.ListByStatus(ctx, models.StatusPendingAuthorization, models.Page{Number: 1, Size: 2})
		require.NoError(t, err)
		require.Len(t, first, 2)
		require.Equal(t, "r-1", first[0].ID)
		require.Equal(t, "r-2", first[1].ID)

		second, err := store.ListByStatus(ctx, models.StatusPendingAuthorization, models.Page{Number: 2, Size: 2})
		require.NoError(t, err)
		require.Len(t, second, 1)
		require.Equal(t, "r-0", second[0].ID)

		none, err := store.ListByStatus(ctx, models.StatusCompleted, models.Page{})
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("aggregates", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Create(ctx, NewRecord("r-1", "T-1", base, 15000))
		require.NoError(t, err)
		_, err = store.Create(ctx, NewRecord("r-2", "T-2", base, 2500))
		require.NoError(t, err)
		_, err = store.Create(ctx, NewRecord("r-3", "T-3", base, 700))
		require.NoError(t, err)
		_, err = store.CompareAndSwap(ctx, "r-3", 1, moveTo(models.StatusRejected, "admin-b"))
		require.NoError(t, err)

		counts, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), counts[models.StatusPendingAuthorization])
		require.Equal(t, int64(1), counts[models.StatusRejected])

		total, err := store.SumAmountByStatus(ctx, models.StatusPendingAuthorization)
		require.NoError(t, err)
		require.Equal(t, int64(17500), total)

		stats, err := store.StatsByStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, models.StatusStats{Count: 2, TotalAmount: 17500}, stats[models.StatusPendingAuthorization])
		require.Equal(t, models.StatusStats{Count: 1, TotalAmount: 700}, stats[models.StatusRejected])
		require.Equal(t, models.StatusStats{}, stats[models.StatusCompleted])
	})
}
