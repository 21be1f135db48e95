package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

type fakeNATS struct {
	subject string
	payload []byte
	reply   []byte
	err     error
}

func (f *fakeNATS) RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error) {
	f.subject, f.payload = subj, data
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("request without deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Subject: subj, Data: f.reply}, nil
}

func TestLedger_GetTransaction(t *testing.T) {
	conn := &fakeNATS{reply: []byte(`{"transaction_id":"T-900","captured_amount":15000,"currency":"USD","found":true}`)}
	ledger := newLedger(conn, "", time.Second)

	txn, err := ledger.GetTransaction(context.Background(), "T-900")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerTransaction{TransactionID: "T-900", CapturedAmount: 15000, Currency: "USD", Found: true}, txn)
	assert.Equal(t, DefaultLedgerSubject, conn.subject)
	assert.JSONEq(t, `{"transaction_id":"T-900"}`, string(conn.payload))
}

func TestLedger_NotFoundAndErrors(t *testing.T) {
	ledger := newLedger(&fakeNATS{reply: []byte(`{"found":false}`)}, "ledger.custom", time.Second)
	txn, err := ledger.GetTransaction(context.Background(), "T-404")
	require.NoError(t, err)
	assert.False(t, txn.Found)
	assert.Equal(t, "T-404", txn.TransactionID)

	ledger = newLedger(&fakeNATS{err: nats.ErrTimeout}, "", time.Second)
	_, err = ledger.GetTransaction(context.Background(), "T-1")
	assert.ErrorIs(t, err, nats.ErrTimeout)

	ledger = newLedger(&fakeNATS{reply: []byte(`not json`)}, "", time.Second)
	_, err = ledger.GetTransaction(context.Background(), "T-1")
	assert.Error(t, err)
}

func TestGateway_SendsIdempotencyKey(t *testing.T) {
	var got models.ReversalRequest
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reversals", r.URL.Path)
		key = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	req := models.ReversalRequest{IdempotencyKey: "r-1:COMPLETED", RefundID: "r-1", TransactionID: "T-900", Amount: 15000, Currency: "USD"}
	require.NoError(t, NewGateway(srv.URL+"/", time.Second).Reverse(context.Background(), req))
	assert.Equal(t, "r-1:COMPLETED", key)
	assert.Equal(t, req, got)
}

func TestGateway_StatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"created", http.StatusCreated, false},
		{"already reversed", http.StatusConflict, false},
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("upstream says no"))
			}))
			defer srv.Close()

			err := NewGateway(srv.URL, time.Second).Reverse(context.Background(), models.ReversalRequest{IdempotencyKey: "k"})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "upstream says no")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryGuard_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	status, err := g.Claim(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimAcquired, status)

	status, _ = g.Claim(ctx, "k")
	assert.Equal(t, models.ClaimHeld, status)

	require.NoError(t, g.Release(ctx, "k"))
	status, _ = g.Claim(ctx, "k")
	assert.Equal(t, models.ClaimAcquired, status)

	require.NoError(t, g.Complete(ctx, "k"))
	require.NoError(t, g.Release(ctx, "k"))
	status, _ = g.Claim(ctx, "k")
	assert.Equal(t, models.ClaimDone, status)
}

type countingGateway struct {
	calls atomic.Int32
	fail  atomic.Bool
	gate  chan struct{}
}

func (c *countingGateway) Reverse(ctx context.Context, req models.ReversalRequest) error {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail.Load() {
		return errors.New("gateway down")
	}
	return nil
}

func TestGuardedGateway_ReleasesOnFailure(t *testing.T) {
	ctx := context.Background()
	next := &countingGateway{}
	next.fail.Store(true)
	g := NewGuardedGateway(next, NewMemoryGuard(), zap.NewNop())
	req := models.ReversalRequest{IdempotencyKey: "r-1:COMPLETED"}

	require.Error(t, g.Reverse(ctx, req))

	next.fail.Store(false)
	require.NoError(t, g.Reverse(ctx, req))
	require.NoError(t, g.Reverse(ctx, req))
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestGuardedGateway_ConcurrentCallersReachGatewayOnce(t *testing.T) {
	ctx := context.Background()
	next := &countingGateway{gate: make(chan struct{})}
	g := NewGuardedGateway(next, NewMemoryGuard(), zap.NewNop())
	req := models.ReversalRequest{IdempotencyKey: "r-1:COMPLETED"}

	first := make(chan error, 1)
	go func() { first <- g.Reverse(ctx, req) }()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, g.Reverse(ctx, req), ErrReversalInFlight)
		}()
	}
	wg.Wait()

	close(next.gate)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), next.calls.Load())
}
