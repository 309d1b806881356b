package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type userStoreMock struct{ mock.Mock }

func (m *userStoreMock) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type shipmentStoreMock struct{ mock.Mock }

func (m *shipmentStoreMock) GetShipmentByTrackingID(ctx context.Context, id uint64) (*models.Shipment, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*models.Shipment)
	return s, args.Error(1)
}

type call struct {
	ev models.Event
	to []models.Recipient
}

type captureDispatcher struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (d *captureDispatcher) Dispatch(_ context.Context, ev models.Event, rs []models.Recipient) (models.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{ev: ev, to: rs})
	if d.err != nil {
		return models.DispatchResult{}, d.err
	}
	return models.DispatchResult{Category: ev.Category, Aggregate: models.OutcomeAllSuccess}, nil
}

type memQueue struct{ items []models.TrackingUpdate }

func (q *memQueue) Enqueue(_ context.Context, u models.TrackingUpdate) error {
	q.items = append(q.items, u)
	return nil
}

type NotifierSuite struct {
	suite.Suite

	users     *userStoreMock
	shipments *shipmentStoreMock
	disp      *captureDispatcher
	queue     *memQueue
	n         *Notifier
}

var seller = &models.User{ID: "s1", Email: "s1@example.com", Name: "Sam", Role: models.RoleSeller}

func (s *NotifierSuite) SetupTest() {
	s.users = &userStoreMock{}
	s.shipments = &shipmentStoreMock{}
	s.disp = &captureDispatcher{}
	s.queue = &memQueue{}
	s.n = New(s.users, s.disp, []string{"ops@example.com", " ", "lead@example.com"}, nil).
		WithShipments(s.shipments).
		WithDigest(s.queue)
}

func (s *NotifierSuite) TestAdminsAlwaysNotify() {
	admins := s.n.Admins()
	s.Require().Len(admins, 2)
	for _, a := range admins {
		s.Require().True(a.AlwaysNotify)
	}
}

func (s *NotifierSuite) TestRecipients_UserAndAdmins() {
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)
	rs := s.n.Recipients(context.Background(), models.Target{UserID: "s1", Admins: true})
	s.Require().Len(rs, 3)
	s.Require().Equal("s1@example.com", rs[0].Email)
	s.Require().False(rs[0].AlwaysNotify)
}

func (s *NotifierSuite) TestRecipients_UnknownUserDropped() {
	s.users.On("GetUser", mock.Anything, "ghost").Return(nil, models.NewNotFoundError("user", "ghost"))
	rs := s.n.Recipients(context.Background(), models.Target{UserID: "ghost"})
	s.Require().Empty(rs)
}

func (s *NotifierSuite) TestRecipients_LookupErrorKeepsUserWithoutAddress() {
	s.users.On("GetUser", mock.Anything, "s1").Return(nil, errors.New("db down"))
	rs := s.n.Recipients(context.Background(), models.Target{UserID: "s1"})
	s.Require().Len(rs, 1)
	s.Require().Equal("s1", rs[0].UserID)
	s.Require().Empty(rs[0].Email)
	s.Require().EqualError(rs[0].LookupErr, "db down")
}

func (s *NotifierSuite) TestNotify_RejectedEventIsSkipped() {
	s.disp.err = models.NewValidationError("category", "bad")
	res := s.n.Notify(context.Background(), []models.Event{{Category: "bogus", Target: models.Target{Admins: true}}})
	s.Require().Len(res, 1)
	s.Require().Equal(models.OutcomeSkipped, res[0].Aggregate)
}

func (s *NotifierSuite) TestReturnCreated() {
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)
	rec := &models.ReturnRecord{ID: "r1", SellerID: "s1", OrderNumber: "ORD-1", Status: models.ReturnStatusPending}

	res := s.n.ReturnCreated(context.Background(), rec)
	s.Require().Len(res, 2)
	s.Require().Len(s.disp.calls, 2)
	s.Require().Equal(models.CategoryAdmin, s.disp.calls[0].ev.Category)
	s.Require().Len(s.disp.calls[0].to, 2)
	s.Require().Equal(models.CategoryRefundReturn, s.disp.calls[1].ev.Category)
	s.Require().Equal("s1@example.com", s.disp.calls[1].to[0].Email)
}

func (s *NotifierSuite) TestPhotoUploaded_AdminsOnly() {
	rec := &models.ReturnRecord{ID: "r1", SellerID: "s1", OrderNumber: "ORD-1"}
	s.n.PhotoUploaded(context.Background(), rec, "https://cdn.example.com/p.jpg")
	s.Require().Len(s.disp.calls, 1)
	s.Require().Equal(s.n.Admins(), s.disp.calls[0].to)
	s.users.AssertNotCalled(s.T(), "GetUser", mock.Anything, mock.Anything)
}

func (s *NotifierSuite) TestShipmentApproved() {
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)
	s.n.ShipmentApproved(context.Background(), models.Shipment{ID: "sh1", OwnerUserID: "s1", TrackingNumber: "TRK1"})
	s.Require().Len(s.disp.calls, 1)
	ev := s.disp.calls[0].ev
	s.Require().Equal(models.CategoryShipmentImmediate, ev.Category)
	s.Require().Equal("shipment:sh1:approved", ev.DedupeKey)
	s.Require().Len(s.disp.calls[0].to, 3)
}

func (s *NotifierSuite) TestTrackingUpdated_HealthyStatus() {
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)
	u := models.TrackingUpdate{ShipmentID: "sh1", TrackingNumber: "TRK1", Status: "IN_TRANSIT", OwnerUserID: "s1", CreatedAt: time.Now()}

	_, err := s.n.TrackingUpdated(context.Background(), u)
	s.Require().NoError(err)
	s.Require().Len(s.queue.items, 1)
	s.Require().Len(s.disp.calls, 1)
	s.Require().Equal(models.CategoryShipmentImmediate, s.disp.calls[0].ev.Category)
}

func (s *NotifierSuite) TestTrackingUpdated_IssueRaisesDeliveryEvent() {
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)
	u := models.TrackingUpdate{ShipmentID: "sh1", TrackingNumber: "TRK1", Status: "lost", OwnerUserID: "s1", CreatedAt: time.Now()}

	res, err := s.n.TrackingUpdated(context.Background(), u)
	s.Require().NoError(err)
	s.Require().Len(res, 2)
	s.Require().Equal(models.IssueLost, s.queue.items[0].IssueType)

	issue := s.disp.calls[1]
	s.Require().Equal(models.CategoryTrackingDelivery, issue.ev.Category)
	s.Require().False(issue.ev.Critical)
	s.Require().Equal("shipment:sh1:issue:lost", issue.ev.DedupeKey)
	s.Require().Len(issue.to, 3)
}

func (s *NotifierSuite) TestFromTrackingMessage() {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	loc, text := "Leipzig hub", "Parcel damaged in transit"
	s.shipments.On("GetShipmentByTrackingID", mock.Anything, uint64(42)).
		Return(&models.Shipment{ID: "sh1", OwnerUserID: "s1", TrackingNumber: "TRK42", RecipientName: "Bob", Destination: "Paris"}, nil)
	s.users.On("GetUser", mock.Anything, "s1").Return(seller, nil)

	u, err := s.n.FromTrackingMessage(context.Background(), messages.TrackingUpdated{
		TrackingID: 42,
		CheckedAt:  at.Add(time.Hour),
		Status:     "IN_TRANSIT",
		StatusRaw:  "moving",
		StatusAt:   &at,
		Events: []messages.TrackingEvent{
			{Status: "IN_TRANSIT", StatusRaw: "accepted", EventTime: at.Add(-time.Hour)},
			{Status: "IN_TRANSIT", StatusRaw: "DAMAGED", EventTime: at, Location: &loc, Message: &text},
		},
	})
	s.Require().NoError(err)
	s.Require().Equal("sh1", u.ShipmentID)
	s.Require().Equal("TRK42", u.TrackingNumber)
	s.Require().Equal(at, u.CreatedAt)
	s.Require().Equal("s1@example.com", u.OwnerEmail)
	s.Require().Equal("Parcel damaged in transit (Leipzig hub)", u.StatusDescription)
	s.Require().Equal(models.IssueDamaged, u.IssueType)
	s.Require().Equal("Bob", u.RecipientName)
}

func (s *NotifierSuite) TestFromTrackingMessage_SkipsFailedChecks() {
	msg := "carrier timeout"
	_, err := s.n.FromTrackingMessage(context.Background(), messages.TrackingUpdated{TrackingID: 1, Error: &msg})
	s.Require().ErrorIs(err, ErrSkipMessage)
	s.shipments.AssertNotCalled(s.T(), "GetShipmentByTrackingID", mock.Anything, mock.Anything)
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierSuite))
}
