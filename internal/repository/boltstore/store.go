// Package boltstore provides a BoltDB-backed refund repository.
//
// All data lives in a single file, so a node can run the workflow without an
// external database. Bolt serializes read-write transactions, which makes each
// CompareAndSwap a single atomic conditional update.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/repository"
)

var (
	refundsBucket = []byte("refund_requests")
	auditBucket   = []byte("refund_audit_entries")
	openBucket    = []byte("open_transactions")
)

// Store wraps a BoltDB database holding refund requests.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database at path and ensures its buckets exist.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{refundsBucket, auditBucket, openBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, req models.RefundRequest) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	rec := repository.PrepareNew(req)

	err := s.db.Update(func(tx *bolt.Tx) error {
		open := tx.Bucket(openBucket)
		if existing := open.Get([]byte(rec.TransactionID)); existing != nil {
			return &models.DuplicateRequestError{TransactionID: rec.TransactionID, ExistingID: string(existing)}
		}
		if tx.Bucket(refundsBucket).Get([]byte(rec.ID)) != nil {
			return &models.DuplicateRequestError{TransactionID: rec.TransactionID, ExistingID: rec.ID}
		}
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		if err := appendAudit(tx, rec.ID, rec.AuditTrail[0]); err != nil {
			return err
		}
		return open.Put([]byte(rec.TransactionID), []byte(rec.ID))
	})
	if err != nil {
		return models.RefundRequest{}, err
	}
	return rec, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	var rec models.RefundRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	return rec, err
}

func (s *Store) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, mutate interfaces.Mutator) (models.RefundRequest, error) {
	if err := ctx.Err(); err != nil {
		return models.RefundRequest{}, err
	}
	var next models.RefundRequest
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		var entry models.AuditEntry
		next, entry, err = repository.ApplyMutation(current, expectedVersion, mutate)
		if err != nil {
			return err
		}
		if err := putRecord(tx, next); err != nil {
			return err
		}
		if err := appendAudit(tx, id, entry); err != nil {
			return err
		}
		if next.Status.Terminal() {
			return tx.Bucket(openBucket).Delete([]byte(next.TransactionID))
		}
		return nil
	})
	if err != nil {
		return models.RefundRequest{}, err
	}
	return next, nil
}

func (s *Store) ListByStatus(ctx context.Context, status models.RefundStatus, page models.Page) ([]models.RefundRequest, error) {
	matched := make([]models.RefundRequest, 0)
	err := s.forEach(ctx, func(rec models.RefundRequest) {
		if rec.Status == status {
			matched = append(matched, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	repository.SortQueue(matched)
	return repository.Paginate(matched, page), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.RefundStatus]int64, error) {
	counts := make(map[models.RefundStatus]int64)
	err := s.forEach(ctx, func(rec models.RefundRequest) {
		counts[rec.Status]++
	})
	return counts, err
}

func (s *Store) SumAmountByStatus(ctx context.Context, status models.RefundStatus) (int64, error) {
	var total int64
	err := s.forEach(ctx, func(rec models.RefundRequest) {
		if rec.Status == status {
			total += rec.Amount
		}
	})
	return total, err
}

// StatsByStatus aggregates inside a single read transaction.
func (s *Store) StatsByStatus(ctx context.Context) (map[models.RefundStatus]models.StatusStats, error) {
	stats := make(map[models.RefundStatus]models.StatusStats)
	err := s.forEach(ctx, func(rec models.RefundRequest) {
		st := stats[rec.Status]
		st.Count++
		st.TotalAmount += rec.Amount
		stats[rec.Status] = st
	})
	return stats, err
}

func (s *Store) forEach(ctx context.Context, fn func(models.RefundRequest)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(refundsBucket).ForEach(func(k, v []byte) error {
			var rec models.RefundRequest
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			fn(rec)
			return nil
		})
	})
}

func getRecord(tx *bolt.Tx, id string) (models.RefundRequest, error) {
	v := tx.Bucket(refundsBucket).Get([]byte(id))
	if v == nil {
		return models.RefundRequest{}, models.ErrNotFound
	}
	var rec models.RefundRequest
	if err := json.Unmarshal(v, &rec); err != nil {
		return models.RefundRequest{}, err
	}
	return rec, nil
}

func putRecord(tx *bolt.Tx, rec models.RefundRequest) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(refundsBucket).Put([]byte(rec.ID), data)
}

// appendAudit writes one audit row. Existing rows are never overwritten.
func appendAudit(tx *bolt.Tx, refundID string, entry models.AuditEntry) error {
	key := []byte(fmt.Sprintf("%s/%08d", refundID, entry.Sequence))
	b := tx.Bucket(auditBucket)
	if b.Get(key) != nil {
		return fmt.Errorf("audit entry %s already exists", key)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
