package pgreturns

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGReturns_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "returnbox_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/returnbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Ping(ctx))

	// users + preferences
	seller := &models.User{
		ID: "s1", Email: "s1@example.com", Name: "Sam", Role: models.RoleSeller,
		Prefs: models.NotificationPreferences{ShipmentUpdates: models.ShipmentUpdatesDigest, RefundReturn: true},
	}
	require.NoError(t, st.UpsertUser(ctx, seller))
	require.NoError(t, st.UpsertUser(ctx, &models.User{ID: "a1", Email: "a1@example.com", Role: models.RoleAdmin}))

	got, err := st.GetUser(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, seller, got)

	prefs := seller.Prefs
	prefs.Marketing = true
	require.NoError(t, st.UpdatePreferences(ctx, "s1", prefs))
	got, err = st.GetUser(ctx, "s1")
	require.NoError(t, err)
	require.True(t, got.Prefs.Marketing)

	_, err = st.GetUser(ctx, "ghost")
	require.True(t, models.IsNotFound(err))
	require.True(t, models.IsNotFound(st.UpdatePreferences(ctx, "ghost", prefs)))

	// returns: create, optimistic update, conflict
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &models.ReturnRecord{
		ID: "r1", SellerID: "s1", OrderNumber: "ORD-1", Reason: "broken",
		Status: models.ReturnStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateReturn(ctx, rec))
	require.NoError(t, st.CreateReturn(ctx, &models.ReturnRecord{
		ID: "r2", SellerID: "s1", OrderNumber: "ORD-2",
		Status: models.ReturnStatusPending, CreatedAt: now.Add(time.Hour), UpdatedAt: now,
	}))

	loaded, err := st.GetReturn(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Version)
	require.Nil(t, loaded.Assignment)

	stale := loaded.Clone()
	loaded.Status = models.ReturnStatusInspected
	loaded.InspectionDate = &now
	loaded.Assignment = &models.Assignment{AssigneeID: "a1", AssignedBy: "a1", AssignedAt: now}
	require.NoError(t, st.UpdateReturn(ctx, loaded))
	require.Equal(t, int64(2), loaded.Version)

	stale.AdminNotes = "lost update"
	err = st.UpdateReturn(ctx, stale)
	require.ErrorIs(t, err, models.ErrVersionConflict)

	err = st.UpdateReturn(ctx, &models.ReturnRecord{ID: "nope", Version: 1})
	require.True(t, models.IsNotFound(err))

	loaded, err = st.GetReturn(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, models.ReturnStatusInspected, loaded.Status)
	require.NotNil(t, loaded.InspectionDate)
	require.True(t, now.Equal(*loaded.InspectionDate))
	require.Equal(t, "a1", loaded.Assignment.AssigneeID)
	require.Empty(t, loaded.AdminNotes)

	// lookups
	list, err := st.ListReturns(ctx, models.ReturnFilter{Status: models.ReturnStatusPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "r2", list[0].ID)

	list, err = st.ListReturns(ctx, models.ReturnFilter{OrderNumber: "ORD-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	from, to := now.Add(30*time.Minute), now.Add(2*time.Hour)
	list, err = st.ListReturns(ctx, models.ReturnFilter{CreatedFrom: &from, CreatedTo: &to})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "r2", list[0].ID)

	list, err = st.ListReturns(ctx, models.ReturnFilter{SellerID: "s1"})
	require.NoError(t, err)
	require.Len(t, list, 2)

	// photos
	photo := &models.ReturnPhoto{ReturnID: "r1", URL: "https://cdn.example.com/1.jpg", UploadedBy: "s1", CreatedAt: now}
	require.NoError(t, st.AddReturnPhoto(ctx, photo))
	require.NotZero(t, photo.ID)
	again := &models.ReturnPhoto{ReturnID: "r1", URL: photo.URL, UploadedBy: "admin-1", CreatedAt: now.Add(time.Minute)}
	require.NoError(t, st.AddReturnPhoto(ctx, again))
	require.Equal(t, photo.ID, again.ID)
	require.Equal(t, "s1", again.UploadedBy)
	photos, err := st.ListReturnPhotos(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	err = st.AddReturnPhoto(ctx, &models.ReturnPhoto{ReturnID: "missing", URL: photo.URL, UploadedBy: "s1", CreatedAt: now})
	require.True(t, models.IsNotFound(err))

	// shipments
	sh := &models.Shipment{ID: "sh1", OwnerUserID: "s1", TrackingID: 42, TrackingNumber: "TRK42", RecipientName: "Bob", Destination: "Paris"}
	require.NoError(t, st.UpsertShipment(ctx, sh))
	byTracking, err := st.GetShipmentByTrackingID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "sh1", byTracking.ID)
	_, err = st.GetShipmentByTrackingID(ctx, 7)
	require.True(t, models.IsNotFound(err))

	approved, first, err := st.ApproveShipment(ctx, "sh1", now)
	require.NoError(t, err)
	require.True(t, first)
	require.NotNil(t, approved.ApprovedAt)
	_, first, err = st.ApproveShipment(ctx, "sh1", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, first)
	_, _, err = st.ApproveShipment(ctx, "nope", now)
	require.True(t, models.IsNotFound(err))

	// audit log
	require.NoError(t, st.Record(ctx, models.AuditEntry{
		ID: "e1", Category: models.CategoryRefundReturn, Recipient: "s1@example.com", UserID: "s1",
		Subject: "Return updated", Status: models.RecipientSent, CreatedAt: now,
	}))
	require.NoError(t, st.Record(ctx, models.AuditEntry{
		ID: "e2", Category: models.CategoryRefundReturn, Recipient: "s1@example.com", UserID: "s1",
		Subject: "Return updated", Status: models.RecipientSkipped, SkipReason: models.SkipGlobalToggleDisabled,
		CreatedAt: now.Add(time.Second),
	}))
	entries, err := st.ListAudit(ctx, models.AuditFilter{Status: models.RecipientSkipped})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.SkipGlobalToggleDisabled, entries[0].SkipReason)

	entries, err = st.ListAudit(ctx, models.AuditFilter{UserID: "s1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e2", entries[0].ID)
}
