package repository

import (
	"sort"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

// PrepareNew normalizes a record for insertion: initial status, version 1 and
// exactly one creation audit entry.
func PrepareNew(req models.RefundRequest) models.RefundRequest {
	rec := req.Clone()
	rec.Status = models.StatusPendingAuthorization
	rec.Version = 1
	rec.UpdatedAt = rec.CreatedAt
	rec.AuthorizedBy, rec.ApprovedBy, rec.RejectedBy, rec.RejectionReason = "", "", "", ""

	entry := models.AuditEntry{
		Action:  models.TransitionRequest,
		ActorID: rec.RequestedBy,
		Note:    rec.Note,
		At:      rec.CreatedAt,
	}
	if len(req.AuditTrail) > 0 {
		entry = req.AuditTrail[0]
	}
	entry.Sequence = 1
	entry.FromStatus = ""
	entry.ToStatus = models.StatusPendingAuthorization
	rec.AuditTrail = []models.AuditEntry{entry}
	return rec
}

// ApplyMutation runs mutate on a copy of current and returns the record to
// store together with the audit entry to append. It fails with a
// ConflictError when current is not at expectedVersion.
func ApplyMutation(current models.RefundRequest, expectedVersion int64, mutate interfaces.Mutator) (models.RefundRequest, models.AuditEntry, error) {
	if current.Version != expectedVersion {
		return models.RefundRequest{}, models.AuditEntry{}, &models.ConflictError{RefundID: current.ID, ExpectedVersion: expectedVersion}
	}
	if current.Status.Terminal() {
		return models.RefundRequest{}, models.AuditEntry{}, &models.InvalidStateError{RefundID: current.ID, Current: current.Status, Action: "modify"}
	}

	next := current.Clone()
	entry, err := mutate(&next)
	if err != nil {
		return models.RefundRequest{}, models.AuditEntry{}, err
	}

	// identity fields never change after creation
	next.ID = current.ID
	next.TransactionID = current.TransactionID
	next.Amount = current.Amount
	next.Currency = current.Currency
	next.RequestedBy = current.RequestedBy
	next.CreatedAt = current.CreatedAt

	entry.Sequence = len(current.AuditTrail) + 1
	entry.FromStatus = current.Status
	entry.ToStatus = next.Status
	next.AuditTrail = append(current.Clone().AuditTrail, entry)
	next.Version = current.Version + 1
	return next, entry, nil
}

// SortQueue orders records oldest first, breaking ties by id.
func SortQueue(records []models.RefundRequest) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

// Paginate returns the slice of records selected by page.
func Paginate(records []models.RefundRequest, page models.Page) []models.RefundRequest {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(records) {
		return []models.RefundRequest{}
	}
	end := start + page.Size
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
