package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

func actor(id string, role models.Role) models.Actor {
	return models.Actor{ID: id, Role: role}
}

func TestCanTransition(t *testing.T) {
	pendingAuth := models.RefundRequest{ID: "r1", Status: models.StatusPendingAuthorization, RequestedBy: "A"}
	pendingApproval := models.RefundRequest{ID: "r1", Status: models.StatusPendingApproval, RequestedBy: "A", AuthorizedBy: "B"}
	completed := models.RefundRequest{ID: "r1", Status: models.StatusCompleted, RequestedBy: "A", AuthorizedBy: "B", ApprovedBy: "C"}

	tests := []struct {
		name       string
		actor      models.Actor
		record     models.RefundRequest
		transition models.Transition
		want       bool
	}{
		{"operator requests", actor("A", models.RoleOperator), models.RefundRequest{}, models.TransitionRequest, true},
		{"system job requests", actor("billing-job", models.RoleSystem), models.RefundRequest{}, models.TransitionRequest, true},
		{"unknown role cannot request", actor("X", "GUEST"), models.RefundRequest{}, models.TransitionRequest, false},
		{"empty actor id", actor("", models.RoleOperator), models.RefundRequest{}, models.TransitionRequest, false},

		{"admin authorizes", actor("B", models.RoleAdmin), pendingAuth, models.TransitionAuthorize, true},
		{"other operator authorizes", actor("D", models.RoleOperator), pendingAuth, models.TransitionAuthorize, true},
		{"requester cannot authorize", actor("A", models.RoleAdmin), pendingAuth, models.TransitionAuthorize, false},
		{"system cannot authorize", actor("billing-job", models.RoleSystem), pendingAuth, models.TransitionAuthorize, false},

		{"super admin approves", actor("C", models.RoleSuperAdmin), pendingApproval, models.TransitionApprove, true},
		{"admin cannot approve", actor("C", models.RoleAdmin), pendingApproval, models.TransitionApprove, false},
		{"authorizer cannot approve", actor("B", models.RoleSuperAdmin), pendingApproval, models.TransitionApprove, false},
		{"requester may approve when distinct from authorizer", actor("A", models.RoleSuperAdmin), pendingApproval, models.TransitionApprove, true},

		{"super admin rejects pending approval", actor("C", models.RoleSuperAdmin), pendingApproval, models.TransitionReject, true},
		{"admin cannot reject pending approval", actor("E", models.RoleAdmin), pendingApproval, models.TransitionReject, false},
		{"admin kills pending authorization", actor("B", models.RoleAdmin), pendingAuth, models.TransitionReject, true},
		{"operator cannot kill pending authorization", actor("D", models.RoleOperator), pendingAuth, models.TransitionReject, false},
		{"requester cannot kill own request", actor("A", models.RoleSuperAdmin), pendingAuth, models.TransitionReject, false},
		{"terminal record cannot be rejected", actor("C", models.RoleSuperAdmin), completed, models.TransitionReject, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.actor, tt.record, tt.transition))
		})
	}
}

func TestCheck_RejectRequiresReason(t *testing.T) {
	record := models.RefundRequest{Status: models.StatusPendingApproval, RequestedBy: "A", AuthorizedBy: "B"}

	err := Check(actor("C", models.RoleSuperAdmin), record, Input{Transition: models.TransitionReject, Reason: "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	err = Check(actor("C", models.RoleSuperAdmin), record, Input{Transition: models.TransitionReject, Reason: "duplicate charge"})
	assert.NoError(t, err)
}

func TestCheck_RoleSpecificMessages(t *testing.T) {
	record := models.RefundRequest{Status: models.StatusPendingApproval, RequestedBy: "A", AuthorizedBy: "B"}

	err := Check(actor("D", models.RoleAdmin), record, Input{Transition: models.TransitionApprove})
	require.Error(t, err)
	assert.Equal(t, "only a senior administrator may approve a refund", err.Error())

	var forbidden *models.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
}
