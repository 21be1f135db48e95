package models

import "time"

type RefundStatus string

const (
	StatusPendingAuthorization RefundStatus = "PENDING_AUTHORIZATION"
	StatusPendingApproval      RefundStatus = "PENDING_APPROVAL"
	StatusCompleted            RefundStatus = "COMPLETED"
	StatusRejected             RefundStatus = "REJECTED"
)

// AllStatuses lists every workflow status in lifecycle order.
var AllStatuses = []RefundStatus{
	StatusPendingAuthorization,
	StatusPendingApproval,
	StatusCompleted,
	StatusRejected,
}

func (s RefundStatus) Valid() bool {
	switch s {
	case StatusPendingAuthorization, StatusPendingApproval, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s RefundStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type Transition string

const (
	TransitionRequest   Transition = "request"
	TransitionAuthorize Transition = "authorize"
	TransitionApprove   Transition = "approve"
	TransitionReject    Transition = "reject"
)

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

type Role string

const (
	RoleOperator   Role = "OPERATOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleSystem     Role = "SYSTEM"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleAdmin, RoleSuperAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is an already authenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// AuditEntry is one accepted transition. Entries are never modified once written.
type AuditEntry struct {
	Sequence   int          `json:"sequence"`
	Action     Transition   `json:"action"`
	ActorID    string       `json:"actor_id"`
	ActorRole  Role         `json:"actor_role"`
	FromStatus RefundStatus `json:"from_status,omitempty"`
	ToStatus   RefundStatus `json:"to_status"`
	Note       string       `json:"note,omitempty"`
	At         time.Time    `json:"at"`
}

// RefundRequest is the aggregate root. Amount is in minor currency units.
// Version equals the number of audit entries and is the compare-and-swap
// discriminator for every write.
type RefundRequest struct {
	ID              string       `json:"id"`
	TransactionID   string       `json:"transaction_id"`
	Amount          int64        `json:"amount"`
	Currency        string       `json:"currency"`
	Status          RefundStatus `json:"status"`
	RequestedBy     string       `json:"requested_by"`
	AuthorizedBy    string       `json:"authorized_by,omitempty"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	Note            string       `json:"note,omitempty"`
	Version         int64        `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	AuditTrail      []AuditEntry `json:"audit_trail"`
}

// Clone returns a deep copy so callers never share the audit slice.
func (r RefundRequest) Clone() RefundRequest {
	out := r
	out.AuditTrail = append([]AuditEntry(nil), r.AuditTrail...)
	return out
}

// Page selects a slice of a status queue. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// StatusStats is the per-status read projection.
type StatusStats struct {
	Count       int64 `json:"count"`
	TotalAmount int64 `json:"total_amount"`
}

// RefundEvent is published to the notification sink after every accepted transition.
type RefundEvent struct {
	RefundID      string       `json:"refund_id"`
	TransactionID string       `json:"transaction_id"`
	Transition    Transition   `json:"transition"`
	State         RefundStatus `json:"state"`
	PreviousState RefundStatus `json:"previous_state,omitempty"`
	ActorID       string       `json:"actor_id"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	Version       int64        `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
}

// LedgerTransaction is the read-only view of the originating payment.
type LedgerTransaction struct {
	TransactionID  string `json:"transaction_id"`
	CapturedAmount int64  `json:"captured_amount"`
	Currency       string `json:"currency"`
	Found          bool   `json:"found"`
}

// ReversalRequest is sent to the payment gateway once per completed refund.
type ReversalRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	RefundID       string `json:"refund_id"`
	TransactionID  string `json:"transaction_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// ReversalKey is the idempotency key for the payment-reversal side effect.
func ReversalKey(refundID string) string {
	return refundID + ":" + string(StatusCompleted)
}

// ClaimStatus is the outcome of claiming a side-effect idempotency key.
type ClaimStatus int

const (
	ClaimAcquired ClaimStatus = iota
	// ClaimHeld means another worker owns the key right now.
	ClaimHeld
	// ClaimDone means the side effect already succeeded.
	ClaimDone
)
