package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository/boltstore"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository/repositorytest"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.New(filepath.Join(t.TempDir(), "refunds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) interfaces.RefundStore {
		return newTestStore(t)
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "refunds.db")
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s, err := boltstore.New(path)
	require.NoError(t, err)
	_, err = s.Create(ctx, repositorytest.NewRecord("r-1", "T-900", created, 15000))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := boltstore.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.GetByID(ctx, "r-1")
	require.NoError(t, err)
	require.Equal(t, "T-900", got.TransactionID)
	require.Len(t, got.AuditTrail, 1)

	// the open-transaction index is persisted too
	_, err = reopened.Create(ctx, repositorytest.NewRecord("r-2", "T-900", created, 100))
	require.Error(t, err)
}
