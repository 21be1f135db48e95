package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

const DefaultLedgerSubject = "ledger.transaction.get"

type natsRequester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Ledger resolves transactions over NATS request/reply.
type Ledger struct {
	conn    natsRequester
	subject string
	timeout time.Duration
}

func NewLedger(nc *nats.Conn, subject string, timeout time.Duration) *Ledger {
	return newLedger(nc, subject, timeout)
}

func newLedger(conn natsRequester, subject string, timeout time.Duration) *Ledger {
	if subject == "" {
		subject = DefaultLedgerSubject
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Ledger{conn: conn, subject: subject, timeout: timeout}
}

type ledgerQuery struct {
	TransactionID string `json:"transaction_id"`
}

func (l *Ledger) GetTransaction(ctx context.Context, transactionID string) (models.LedgerTransaction, error) {
	payload, err := json.Marshal(ledgerQuery{TransactionID: transactionID})
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msg, err := l.conn.RequestWithContext(ctx, l.subject, payload)
	if err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("ledger request: %w", err)
	}

	var txn models.LedgerTransaction
	if err := json.Unmarshal(msg.Data, &txn); err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("decode ledger reply: %w", err)
	}
	if txn.TransactionID == "" {
		txn.TransactionID = transactionID
	}
	return txn, nil
}
