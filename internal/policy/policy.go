// Package policy decides which actor may perform which refund transition.
// Everything here is pure: no I/O, no clock, no shared state.
package policy

import (
	"strings"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

var (
	requestRoles   = roleSet(models.RoleOperator, models.RoleAdmin, models.RoleSuperAdmin, models.RoleSystem)
	authorizeRoles = roleSet(models.RoleOperator, models.RoleAdmin, models.RoleSuperAdmin)
	approveRoles   = roleSet(models.RoleSuperAdmin)
	earlyKillRoles = roleSet(models.RoleAdmin, models.RoleSuperAdmin)
)

// Input is what a transition check looks at beyond actor and record.
type Input struct {
	Transition models.Transition
	Reason     string
}

// CanTransition reports whether actor holds the role and distinctness
// required to apply transition to record. It does not look at a reject reason.
func CanTransition(actor models.Actor, record models.RefundRequest, transition models.Transition) bool {
	return checkActor(actor, record, transition) == nil
}

// Check returns nil when the transition is allowed, or a ForbiddenError
// whose message names the missing privilege. Callers validate a missing
// reject reason before calling Check; Check still refuses it.
func Check(actor models.Actor, record models.RefundRequest, in Input) error {
	if err := checkActor(actor, record, in.Transition); err != nil {
		return err
	}
	if in.Transition == models.TransitionReject && strings.TrimSpace(in.Reason) == "" {
		return models.NewForbiddenError("a rejection reason is required")
	}
	return nil
}

func checkActor(actor models.Actor, record models.RefundRequest, transition models.Transition) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.Role.Valid() {
		return models.NewForbiddenError("unknown actor")
	}

	switch transition {
	case models.TransitionRequest:
		if !requestRoles[actor.Role] {
			return models.NewForbiddenError("only billing staff may request a refund")
		}
		return nil

	case models.TransitionAuthorize:
		if !authorizeRoles[actor.Role] {
			return models.NewForbiddenError("only an operator or administrator may authorize a refund")
		}
		if actor.ID == record.RequestedBy {
			return models.NewForbiddenError("you cannot authorize a refund you requested")
		}
		return nil

	case models.TransitionApprove:
		if !approveRoles[actor.Role] {
			return models.NewForbiddenError("only a senior administrator may approve a refund")
		}
		if actor.ID == record.AuthorizedBy {
			return models.NewForbiddenError("you cannot approve a refund you authorized")
		}
		return nil

	case models.TransitionReject:
		return checkReject(actor, record)
	}

	return models.NewForbiddenError("unknown transition")
}

func checkReject(actor models.Actor, record models.RefundRequest) error {
	switch record.Status {
	case models.StatusPendingApproval:
		if !approveRoles[actor.Role] {
			return models.NewForbiddenError("only a senior administrator may reject a refund awaiting approval")
		}
	case models.StatusPendingAuthorization:
		if !earlyKillRoles[actor.Role] {
			return models.NewForbiddenError("only an administrator may reject a refund awaiting authorization")
		}
		if actor.ID == record.RequestedBy {
			return models.NewForbiddenError("you cannot reject a refund you requested")
		}
	default:
		return models.NewForbiddenError("refund cannot be rejected in its current status")
	}
	return nil
}

func roleSet(roles ...models.Role) map[models.Role]bool {
	set := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}
