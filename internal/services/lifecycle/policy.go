package lifecycle

import "github.com/BearBump/ReturnBox/internal/models"

type Action string

const (
	ActionView             Action = "view"
	ActionTransitionStatus Action = "transition status"
	ActionEditAdminNotes   Action = "edit admin notes"
	ActionEditSellerNotes  Action = "edit seller notes"
	ActionToggleControlled Action = "toggle controlled flag"
	ActionAssign           Action = "assign"
	ActionUnassign         Action = "unassign"
)

// Allowed is the single authorization policy for return mutations.
func Allowed(actor models.Actor, rec *models.ReturnRecord, action Action) bool {
	if actor.UserID == "" || rec == nil {
		return false
	}
	owner := rec.SellerID == actor.UserID
	switch action {
	case ActionView:
		return actor.IsAdmin() || owner
	case ActionEditSellerNotes:
		// Seller notes belong to the seller, admins included.
		return owner
	case ActionToggleControlled:
		return actor.IsAdmin() || owner
	case ActionTransitionStatus, ActionEditAdminNotes, ActionAssign, ActionUnassign:
		return actor.IsAdmin()
	default:
		return false
	}
}

func authorize(actor models.Actor, rec *models.ReturnRecord, action Action) error {
	if !Allowed(actor, rec, action) {
		return &models.AuthorizationError{ActorID: actor.UserID, Action: string(action)}
	}
	return nil
}
