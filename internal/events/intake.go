package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/service"
)

const (
	DefaultRequestTopic = "refund.requested"
	DefaultSource       = "billing-system"
	consumerGroup       = "refund-authorization"

	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
)

// RequestMessage is what upstream billing systems put on the request topic.
type RequestMessage struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	Note          string `json:"note,omitempty"`
	Source        string `json:"source,omitempty"`
}

type RefundRequester interface {
	RequestRefund(ctx context.Context, actor models.Actor, in service.RequestInput) (models.RefundRequest, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Intake opens refunds on behalf of automated billing jobs.
type Intake struct {
	reader    messageReader
	requester RefundRequester
	logger    *zap.Logger

	// newBackOff paces retries of a message that failed on infrastructure.
	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	// never give up on a message; only shutdown stops the retries
	b.MaxElapsedTime = 0
	return b
}

func NewIntake(brokers, topic string, requester RefundRequester, logger *zap.Logger) *Intake {
	if topic == "" {
		topic = DefaultRequestTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(brokers),
		Topic:    topic,
		GroupID:  consumerGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Intake{reader: reader, requester: requester, logger: logger, newBackOff: defaultBackOff}
}

// Run consumes until ctx is cancelled. Messages rejected by the workflow are
// committed and dropped. A message that fails on infrastructure is retried in
// place with backoff, so no later offset is committed past it; on shutdown it
// stays uncommitted and is redelivered.
func (i *Intake) Run(ctx context.Context) error {
	defer i.reader.Close()
	i.logger.Info("Started consuming refund requests")

	for {
		msg, err := i.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := i.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				i.logger.Warn("Refund request left for redelivery",
					zap.Int64("offset", msg.Offset), zap.Error(err))
				return nil
			}
			return fmt.Errorf("refund request at offset %d: %w", msg.Offset, err)
		}
		if err := i.reader.CommitMessages(ctx, msg); err != nil {
			i.logger.Error("Error committing message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// process handles msg, retrying until it succeeds or ctx ends.
func (i *Intake) process(ctx context.Context, msg kafka.Message) error {
	newBackOff := i.newBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	return backoff.RetryNotify(func() error {
		return i.handle(ctx, msg)
	}, backoff.WithContext(newBackOff(), ctx), func(err error, next time.Duration) {
		i.logger.Error("Refund request failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", next),
			zap.Error(err))
	})
}

func (i *Intake) handle(ctx context.Context, msg kafka.Message) error {
	var req RequestMessage
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		i.logger.Warn("Discarding malformed refund request", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	source := req.Source
	if source == "" {
		source = DefaultSource
	}

	rec, err := i.requester.RequestRefund(ctx, models.Actor{ID: source, Role: models.RoleSystem}, service.RequestInput{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Note:          req.Note,
	})
	switch {
	case err == nil:
		i.logger.Info("Refund requested from intake",
			zap.String("refund_id", rec.ID), zap.String("transaction_id", rec.TransactionID))
		return nil
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrDuplicateRequest),
		errors.Is(err, models.ErrForbidden):
		i.logger.Warn("Refund request rejected",
			zap.String("transaction_id", req.TransactionID),
			zap.String("code", models.Kind(err)),
			zap.Error(err))
		return nil
	}
	return err
}
