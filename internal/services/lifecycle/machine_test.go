package lifecycle

import (
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/require"
)

var (
	admin  = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	seller = models.Actor{UserID: "seller-S", Role: models.RoleSeller}
	other  = models.Actor{UserID: "seller-X", Role: models.RoleSeller}
)

func newRecord() *models.ReturnRecord {
	return &models.ReturnRecord{
		ID:          "R",
		SellerID:    seller.UserID,
		OrderNumber: "ORD-1",
		Status:      models.ReturnStatusPending,
	}
}

func TestTransition_ScenarioReceivedThenInspected(t *testing.T) {
	rec := newRecord()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	evs, err := Transition(rec, models.ReturnStatusReceived, admin, t0)
	require.NoError(t, err)
	require.Nil(t, rec.InspectionDate)
	require.Len(t, evs, 1)
	require.Equal(t, models.CategoryRefundReturn, evs[0].Category)
	require.Equal(t, seller.UserID, evs[0].Target.UserID)
	require.False(t, evs[0].Target.Admins)

	t1 := t0.Add(time.Hour)
	evs, err = Transition(rec, models.ReturnStatusInspected, admin, t1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.NotNil(t, rec.InspectionDate)
	require.True(t, rec.InspectionDate.Equal(t1))

	evs, err = Transition(rec, models.ReturnStatusInspected, admin, t1.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, evs)
	require.True(t, rec.InspectionDate.Equal(t1))
}

func TestTransition_NoopPendingEmitsNothing(t *testing.T) {
	rec := newRecord()
	evs, err := Transition(rec, models.ReturnStatusPending, admin, time.Now())
	require.NoError(t, err)
	require.Empty(t, evs)
	require.True(t, rec.UpdatedAt.IsZero())
}

func TestTransition_CompletedDateIsWriteOnce(t *testing.T) {
	rec := newRecord()
	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := Transition(rec, models.ReturnStatusCompleted, admin, first)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := Transition(rec, models.ReturnStatusCompleted, admin, first.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	require.True(t, rec.CompletedDate.Equal(first))
}

func TestTransition_PreexistingMilestoneNotOverwritten(t *testing.T) {
	rec := newRecord()
	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec.RefundInitiatedDate = &earlier

	_, err := Transition(rec, models.ReturnStatusRefundInitiated, admin, time.Now())
	require.NoError(t, err)
	require.True(t, rec.RefundInitiatedDate.Equal(earlier))
}

func TestTransition_ForwardJumpStampsOnlyTarget(t *testing.T) {
	rec := newRecord()
	now := time.Now().UTC()
	_, err := Transition(rec, models.ReturnStatusRefundInitiated, admin, now)
	require.NoError(t, err)
	require.Nil(t, rec.InspectionDate)
	require.NotNil(t, rec.RefundInitiatedDate)
	require.Nil(t, rec.CompletedDate)
}

func TestTransition_Rejections(t *testing.T) {
	rec := newRecord()

	_, err := Transition(rec, models.ReturnStatus("LOST_IN_SPACE"), admin, time.Now())
	require.True(t, models.IsValidation(err))

	_, err = Transition(rec, models.ReturnStatusReceived, seller, time.Now())
	require.True(t, models.IsAuthorization(err))
	require.Equal(t, models.ReturnStatusPending, rec.Status)

	_, err = Transition(rec, models.ReturnStatusInspected, admin, time.Now())
	require.NoError(t, err)
	_, err = Transition(rec, models.ReturnStatusReceived, admin, time.Now())
	require.True(t, models.IsValidation(err))
	require.Equal(t, models.ReturnStatusInspected, rec.Status)
}

func TestUpdateSellerNotes(t *testing.T) {
	rec := newRecord()
	require.NoError(t, UpdateSellerNotes(rec, seller, "box was open", time.Now()))
	require.Equal(t, "box was open", rec.SellerNotes)

	err := UpdateSellerNotes(rec, other, "hijack", time.Now())
	require.True(t, models.IsAuthorization(err))
	require.Equal(t, "box was open", rec.SellerNotes)

	err = UpdateSellerNotes(rec, admin, "admin edit", time.Now())
	require.True(t, models.IsAuthorization(err))
}

func TestUpdateAdminNotes(t *testing.T) {
	rec := newRecord()
	require.NoError(t, UpdateAdminNotes(rec, admin, "checked", time.Now()))
	require.True(t, models.IsAuthorization(UpdateAdminNotes(rec, seller, "x", time.Now())))
	require.Equal(t, "checked", rec.AdminNotes)
}

func TestToggleControlled(t *testing.T) {
	rec := newRecord()
	require.NoError(t, ToggleControlled(rec, admin, time.Now()))
	require.True(t, rec.IsControlled)
	require.NoError(t, ToggleControlled(rec, seller, time.Now()))
	require.False(t, rec.IsControlled)

	err := ToggleControlled(rec, other, time.Now())
	require.True(t, models.IsAuthorization(err))
	require.False(t, rec.IsControlled)
}

func TestAssignAndUnassign(t *testing.T) {
	rec := newRecord()
	now := time.Now().UTC()

	_, err := Assign(rec, seller, "ops-2", now)
	require.True(t, models.IsAuthorization(err))
	require.Nil(t, rec.Assignment)

	_, err = Assign(rec, admin, "", now)
	require.True(t, models.IsValidation(err))

	evs, err := Assign(rec, admin, "ops-2", now)
	require.NoError(t, err)
	require.Equal(t, "ops-2", rec.Assignment.AssigneeID)
	require.Equal(t, admin.UserID, rec.Assignment.AssignedBy)
	require.Len(t, evs, 1)
	require.Equal(t, models.CategoryAdmin, evs[0].Category)
	require.Equal(t, "ops-2", evs[0].Target.UserID)

	require.True(t, models.IsAuthorization(Unassign(rec, seller, now)))
	require.NoError(t, Unassign(rec, admin, now))
	require.Nil(t, rec.Assignment)
}

func TestCreated_TargetsAdminsAndSeller(t *testing.T) {
	rec := newRecord()
	evs := Created(rec, time.Now())
	require.Len(t, evs, 2)
	require.True(t, evs[0].Target.Admins)
	require.Equal(t, seller.UserID, evs[1].Target.UserID)
}

func TestAllowed(t *testing.T) {
	rec := newRecord()
	require.True(t, Allowed(seller, rec, ActionView))
	require.False(t, Allowed(other, rec, ActionView))
	require.True(t, Allowed(admin, rec, ActionView))
	require.False(t, Allowed(models.Actor{Role: models.RoleAdmin}, rec, ActionAssign))
	require.False(t, Allowed(admin, nil, ActionAssign))
	require.False(t, Allowed(admin, rec, Action("delete")))
}
