package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/policy"
	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

const (
	DefaultCurrency = "USD"

	effectNotification = "notification"
	effectReversal     = "reversal"

	reversalAttemptTimeout = 10 * time.Second

	// transitionDecide labels a Decide call whose decision is neither
	// approve nor reject.
	transitionDecide models.Transition = "decide"
)

// RequestInput is what a caller supplies to open a refund.
type RequestInput struct {
	TransactionID string
	Amount        int64
	Currency      string
	Note          string
}

// Workflow is the refund state machine. It keeps no mutable state of its own;
// every write goes through the repository's CompareAndSwap, so any number of
// goroutines or processes may call it concurrently.
type Workflow struct {
	repo      interfaces.RefundRepository
	ledger    interfaces.TransactionLedger
	sink      interfaces.NotificationSink
	reversals interfaces.ReversalGateway
	scheduler Scheduler
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Workflow)

// WithLedger enables the captured-amount ceiling check on RequestRefund.
func WithLedger(ledger interfaces.TransactionLedger) Option {
	return func(w *Workflow) { w.ledger = ledger }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) { w.newID = newID }
}

func NewWorkflow(
	repo interfaces.RefundRepository,
	sink interfaces.NotificationSink,
	reversals interfaces.ReversalGateway,
	scheduler Scheduler,
	opts ...Option,
) *Workflow {
	w := &Workflow{
		repo:      repo,
		sink:      sink,
		reversals: reversals,
		scheduler: scheduler,
		logger:    telemetry.Logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RequestRefund opens a refund request in PENDING_AUTHORIZATION.
func (w *Workflow) RequestRefund(ctx context.Context, actor models.Actor, in RequestInput) (rec models.RefundRequest, err error) {
	ctx, finish := w.begin(ctx, models.TransitionRequest, attribute.String("refund.transaction_id", in.TransactionID))
	defer func() { finish(err) }()

	in.TransactionID = strings.TrimSpace(in.TransactionID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.TransactionID == "" {
		return models.RefundRequest{}, models.NewValidationError("transaction_id", "is required")
	}
	if in.Amount <= 0 {
		return models.RefundRequest{}, models.NewValidationError("amount", "must be greater than zero")
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		return models.RefundRequest{}, models.NewValidationError("currency", "must be a three-letter ISO code")
	}
	if err := policy.Check(actor, models.RefundRequest{}, policy.Input{Transition: models.TransitionRequest}); err != nil {
		return models.RefundRequest{}, err
	}
	if err := w.checkLedger(ctx, &in); err != nil {
		return models.RefundRequest{}, err
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}

	now := w.timestamp()
	rec, err = w.repo.Create(ctx, models.RefundRequest{
		ID:            w.newID(),
		TransactionID: in.TransactionID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		RequestedBy:   actor.ID,
		Note:          strings.TrimSpace(in.Note),
		CreatedAt:     now,
		AuditTrail: []models.AuditEntry{{
			Action:    models.TransitionRequest,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      strings.TrimSpace(in.Note),
			At:        now,
		}},
	})
	if err != nil {
		return models.RefundRequest{}, err
	}

	w.committed(ctx, rec, models.TransitionRequest, actor)
	return rec, nil
}

// Authorize moves a refund from PENDING_AUTHORIZATION to PENDING_APPROVAL.
func (w *Workflow) Authorize(ctx context.Context, actor models.Actor, id string) (rec models.RefundRequest, err error) {
	ctx, finish := w.begin(ctx, models.TransitionAuthorize, attribute.String("refund.id", id))
	defer func() { finish(err) }()

	current, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return models.RefundRequest{}, err
	}
	if current.Status != models.StatusPendingAuthorization {
		return models.RefundRequest{}, &models.InvalidStateError{RefundID: id, Current: current.Status, Action: models.TransitionAuthorize}
	}
	if err := policy.Check(actor, current, policy.Input{Transition: models.TransitionAuthorize}); err != nil {
		return models.RefundRequest{}, err
	}

	now := w.timestamp()
	rec, err = w.repo.CompareAndSwap(ctx, id, current.Version, func(r *models.RefundRequest) (models.AuditEntry, error) {
		r.Status = models.StatusPendingApproval
		r.AuthorizedBy = actor.ID
		r.UpdatedAt = now
		return models.AuditEntry{Action: models.TransitionAuthorize, ActorID: actor.ID, ActorRole: actor.Role, At: now}, nil
	})
	if err != nil {
		return models.RefundRequest{}, err
	}

	w.committed(ctx, rec, models.TransitionAuthorize, actor)
	return rec, nil
}

// Decide approves or rejects a refund. Approval requires PENDING_APPROVAL;
// rejection is also allowed from PENDING_AUTHORIZATION. A reason is mandatory
// for rejection.
func (w *Workflow) Decide(ctx context.Context, actor models.Actor, id string, decision models.Decision, reason string) (rec models.RefundRequest, err error) {
	transition := decisionTransition(decision)
	ctx, finish := w.begin(ctx, transition, attribute.String("refund.id", id))
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	switch decision {
	case models.DecisionApprove:
	case models.DecisionReject:
		if reason == "" {
			return models.RefundRequest{}, models.NewValidationError("reason", "a rejection reason is required")
		}
	default:
		return models.RefundRequest{}, models.NewValidationError("decision", "must be APPROVE or REJECT")
	}

	current, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return models.RefundRequest{}, err
	}
	if !decidable(current.Status, decision) {
		return models.RefundRequest{}, &models.InvalidStateError{RefundID: id, Current: current.Status, Action: transition}
	}
	if err := policy.Check(actor, current, policy.Input{Transition: transition, Reason: reason}); err != nil {
		return models.RefundRequest{}, err
	}

	now := w.timestamp()
	rec, err = w.repo.CompareAndSwap(ctx, id, current.Version, func(r *models.RefundRequest) (models.AuditEntry, error) {
		r.UpdatedAt = now
		entry := models.AuditEntry{Action: transition, ActorID: actor.ID, ActorRole: actor.Role, At: now}
		if decision == models.DecisionApprove {
			r.Status = models.StatusCompleted
			r.ApprovedBy = actor.ID
			return entry, nil
		}
		r.Status = models.StatusRejected
		r.RejectedBy = actor.ID
		r.RejectionReason = reason
		entry.Note = reason
		return entry, nil
	})
	if err != nil {
		return models.RefundRequest{}, err
	}

	w.committed(ctx, rec, transition, actor)
	if rec.Status == models.StatusCompleted {
		// only the goroutine that won the swap into COMPLETED gets here
		w.triggerReversal(ctx, rec)
	}
	return rec, nil
}

func decidable(status models.RefundStatus, decision models.Decision) bool {
	if status == models.StatusPendingApproval {
		return true
	}
	return decision == models.DecisionReject && status == models.StatusPendingAuthorization
}

func (w *Workflow) checkLedger(ctx context.Context, in *RequestInput) error {
	if w.ledger == nil {
		return nil
	}
	txn, err := w.ledger.GetTransaction(ctx, in.TransactionID)
	if err != nil {
		return fmt.Errorf("resolve transaction %s: %w", in.TransactionID, err)
	}
	if !txn.Found {
		return models.NewValidationError("transaction_id", "unknown transaction")
	}
	if in.Amount > txn.CapturedAmount {
		return models.NewValidationError("amount", fmt.Sprintf("exceeds captured amount %d", txn.CapturedAmount))
	}
	if txn.Currency != "" {
		if in.Currency != "" && !strings.EqualFold(in.Currency, txn.Currency) {
			return models.NewValidationError("currency", "does not match the transaction currency "+txn.Currency)
		}
		in.Currency = strings.ToUpper(txn.Currency)
	}
	return nil
}

// committed logs the accepted transition and schedules its notification.
func (w *Workflow) committed(ctx context.Context, rec models.RefundRequest, transition models.Transition, actor models.Actor) {
	last := rec.AuditTrail[len(rec.AuditTrail)-1]
	w.logger.Info("Refund state transition",
		zap.String("refund_id", rec.ID),
		zap.String("transition", string(transition)),
		zap.String("from_state", string(last.FromStatus)),
		zap.String("to_state", string(last.ToStatus)),
		zap.String("actor_id", actor.ID),
		zap.Int64("version", rec.Version),
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("refund.status", string(rec.Status)))

	if w.sink == nil || w.scheduler == nil {
		return
	}
	event := models.RefundEvent{
		RefundID:      rec.ID,
		TransactionID: rec.TransactionID,
		Transition:    transition,
		State:         last.ToStatus,
		PreviousState: last.FromStatus,
		ActorID:       actor.ID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Version:       rec.Version,
		Timestamp:     last.At,
	}
	w.scheduler.Submit(Job{
		Effect: effectNotification,
		Key:    rec.ID + ":" + strconv.FormatInt(rec.Version, 10),
		Run: func(ctx context.Context) error {
			return w.sink.Publish(ctx, event)
		},
	})
}

// triggerReversal makes one inline attempt, detached from the caller's
// cancellation, and hands failures to the scheduler for retry.
func (w *Workflow) triggerReversal(ctx context.Context, rec models.RefundRequest) {
	if w.reversals == nil {
		w.logger.Warn("No reversal gateway configured", zap.String("refund_id", rec.ID))
		return
	}
	req := models.ReversalRequest{
		IdempotencyKey: models.ReversalKey(rec.ID),
		RefundID:       rec.ID,
		TransactionID:  rec.TransactionID,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
	}

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reversalAttemptTimeout)
	err := w.reversals.Reverse(attemptCtx, req)
	cancel()
	if err == nil {
		w.logger.Info("Payment reversal issued",
			zap.String("refund_id", rec.ID), zap.String("idempotency_key", req.IdempotencyKey))
		return
	}

	telemetry.RecordSideEffectFailure(effectReversal)
	w.logger.Error("Payment reversal failed, scheduling retry",
		zap.String("refund_id", rec.ID),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Error(err),
	)
	if w.scheduler == nil || !w.scheduler.Submit(Job{
		Effect: effectReversal,
		Key:    req.IdempotencyKey,
		Run: func(ctx context.Context) error {
			return w.reversals.Reverse(ctx, req)
		},
	}) {
		w.logger.Error("Payment reversal needs manual reconciliation",
			zap.String("refund_id", rec.ID), zap.String("idempotency_key", req.IdempotencyKey))
	}
}

func decisionTransition(decision models.Decision) models.Transition {
	switch decision {
	case models.DecisionApprove:
		return models.TransitionApprove
	case models.DecisionReject:
		return models.TransitionReject
	}
	return transitionDecide
}

func (w *Workflow) begin(ctx context.Context, transition models.Transition, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.Tracer.Start(ctx, "refund."+string(transition), trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		kind := models.Kind(err)
		telemetry.RecordTransition(string(transition), kind)
		telemetry.ObserveOperation(string(transition), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
		}
		span.End()
	}
}

func (w *Workflow) timestamp() time.Time {
	return w.now().UTC().Truncate(time.Microsecond)
}
