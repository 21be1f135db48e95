package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

// NotificationSink receives workflow events. Delivery is best effort.
type NotificationSink interface {
	Publish(ctx context.Context, event models.RefundEvent) error
}

// ReversalGateway moves money back to the customer. It must honour
// req.IdempotencyKey.
type ReversalGateway interface {
	Reverse(ctx context.Context, req models.ReversalRequest) error
}

// TransactionLedger resolves the originating payment, read-only.
type TransactionLedger interface {
	GetTransaction(ctx context.Context, transactionID string) (models.LedgerTransaction, error)
}

// IdempotencyGuard claims a side-effect key across processes.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key string) (models.ClaimStatus, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// ActorResolver turns a bearer token into an actor identity and role.
type ActorResolver interface {
	Resolve(token string) (models.Actor, error)
}
