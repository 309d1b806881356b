// Package returns persists return records and runs lifecycle mutations against
// them one at a time per record, then hands the produced events to the notifier.
package returns

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/lifecycle"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Store interface {
	CreateReturn(ctx context.Context, rec *models.ReturnRecord) error
	GetReturn(ctx context.Context, id string) (*models.ReturnRecord, error)
	UpdateReturn(ctx context.Context, rec *models.ReturnRecord) error
	ListReturns(ctx context.Context, f models.ReturnFilter) ([]*models.ReturnRecord, error)
	AddReturnPhoto(ctx context.Context, p *models.ReturnPhoto) error
	ListReturnPhotos(ctx context.Context, returnID string) ([]*models.ReturnPhoto, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, events []models.Event) []models.DispatchResult
	PhotoUploaded(ctx context.Context, rec *models.ReturnRecord, photoURL string) []models.DispatchResult
}

type RecordCache interface {
	GetReturn(ctx context.Context, id string) (*models.ReturnRecord, bool, error)
	SetReturn(ctx context.Context, rec *models.ReturnRecord, ttl time.Duration) error
	Invalidate(ctx context.Context, id string) error
}

// maxConflictRetries bounds re-reads after another instance wrote the same record.
const maxConflictRetries = 3

type Service struct {
	store    Store
	users    UserLookup
	notifier Notifier
	log      *zap.Logger

	cache    RecordCache
	cacheTTL time.Duration

	locks *keyedMutex
	now   func() time.Time
}

func New(store Store, users UserLookup, notifier Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		users:    users,
		notifier: notifier,
		log:      log,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithCache(c RecordCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

type Result struct {
	Return        *models.ReturnRecord
	Notifications []models.DispatchResult
}

func (s *Service) CreateReturn(ctx context.Context, actor models.Actor, in models.ReturnCreateInput) (Result, error) {
	in.SellerID = strings.TrimSpace(in.SellerID)
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if in.SellerID == "" {
		in.SellerID = actor.UserID
	}
	if in.SellerID == "" {
		return Result{}, models.NewValidationError("sellerId", "required")
	}
	if in.OrderNumber == "" {
		return Result{}, models.NewValidationError("orderNumber", "required")
	}
	if actor.UserID == "" || (!actor.IsAdmin() && actor.UserID != in.SellerID) {
		return Result{}, &models.AuthorizationError{ActorID: actor.UserID, Action: "create return"}
	}
	if _, err := s.users.GetUser(ctx, in.SellerID); err != nil {
		return Result{}, err
	}

	now := s.now()
	rec := &models.ReturnRecord{
		ID:          uuid.NewString(),
		SellerID:    in.SellerID,
		OrderNumber: in.OrderNumber,
		Reason:      in.Reason,
		Status:      models.ReturnStatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateReturn(ctx, rec); err != nil {
		return Result{}, err
	}
	s.log.Info("return created", zap.String("return_id", rec.ID), zap.String("seller_id", rec.SellerID))

	return Result{Return: rec, Notifications: s.notifier.Notify(ctx, lifecycle.Created(rec, now))}, nil
}

func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.ReturnRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Allowed(actor, rec, lifecycle.ActionView) {
		return nil, &models.AuthorizationError{ActorID: actor.UserID, Action: string(lifecycle.ActionView)}
	}
	return rec, nil
}

// List returns matching records. Sellers only ever see their own.
func (s *Service) List(ctx context.Context, actor models.Actor, f models.ReturnFilter) ([]*models.ReturnRecord, error) {
	if actor.UserID == "" {
		return nil, &models.AuthorizationError{Action: "list returns"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+string(f.Status))
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return nil, models.NewValidationError("to", "must not be before from")
	}
	if !actor.IsAdmin() {
		f.SellerID = actor.UserID
	}
	return s.store.ListReturns(ctx, f)
}

func (s *Service) TransitionStatus(ctx context.Context, actor models.Actor, id string, status models.ReturnStatus) (Result, error) {
	return s.mutate(ctx, id, func(_ context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		prev := rec.Status
		events, err := lifecycle.Transition(rec, status, actor, now)
		if err != nil {
			return nil, false, err
		}
		if rec.Status == prev {
			return nil, false, nil
		}
		metrics.RecordTransition(string(rec.Status))
		s.log.Info("return status changed",
			zap.String("return_id", rec.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(rec.Status)),
			zap.String("actor", actor.UserID))
		return events, true, nil
	})
}

func (s *Service) UpdateSellerNotes(ctx context.Context, actor models.Actor, id, notes string) (Result, error) {
	return s.mutate(ctx, id, func(_ context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		return nil, true, lifecycle.UpdateSellerNotes(rec, actor, notes, now)
	})
}

func (s *Service) UpdateAdminNotes(ctx context.Context, actor models.Actor, id, notes string) (Result, error) {
	return s.mutate(ctx, id, func(_ context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		return nil, true, lifecycle.UpdateAdminNotes(rec, actor, notes, now)
	})
}

func (s *Service) ToggleControlled(ctx context.Context, actor models.Actor, id string) (Result, error) {
	return s.mutate(ctx, id, func(_ context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		return nil, true, lifecycle.ToggleControlled(rec, actor, now)
	})
}

// Assign fails with a NotFoundError, leaving the record untouched, when the assignee does not exist.
func (s *Service) Assign(ctx context.Context, actor models.Actor, id, assigneeID string) (Result, error) {
	return s.mutate(ctx, id, func(ctx context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		if !lifecycle.Allowed(actor, rec, lifecycle.ActionAssign) {
			return nil, false, &models.AuthorizationError{ActorID: actor.UserID, Action: string(lifecycle.ActionAssign)}
		}
		if strings.TrimSpace(assigneeID) == "" {
			return nil, false, models.NewValidationError("assigneeId", "required")
		}
		if _, err := s.users.GetUser(ctx, assigneeID); err != nil {
			return nil, false, err
		}
		events, err := lifecycle.Assign(rec, actor, assigneeID, now)
		return events, err == nil, err
	})
}

func (s *Service) Unassign(ctx context.Context, actor models.Actor, id string) (Result, error) {
	return s.mutate(ctx, id, func(_ context.Context, rec *models.ReturnRecord, now time.Time) ([]models.Event, bool, error) {
		had := rec.Assignment != nil
		if err := lifecycle.Unassign(rec, actor, now); err != nil {
			return nil, false, err
		}
		return nil, had, nil
	})
}

// AddPhoto records an uploaded photo URL and tells the admins. Storing the file itself happens elsewhere.
func (s *Service) AddPhoto(ctx context.Context, actor models.Actor, id, url string) (*models.ReturnPhoto, []models.DispatchResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil, models.NewValidationError("url", "required")
	}
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	p := &models.ReturnPhoto{ReturnID: rec.ID, URL: url, UploadedBy: actor.UserID, CreatedAt: s.now()}
	if err := s.store.AddReturnPhoto(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, s.notifier.PhotoUploaded(ctx, rec, url), nil
}

func (s *Service) Photos(ctx context.Context, actor models.Actor, id string) ([]*models.ReturnPhoto, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListReturnPhotos(ctx, id)
}

type mutation func(ctx context.Context, rec *models.ReturnRecord, now time.Time) (events []models.Event, changed bool, err error)

// mutate applies fn to a fresh copy of the record under the per-id lock and
// persists it. Notifications go out after the lock is released; their outcome
// never undoes the write.
func (s *Service) mutate(ctx context.Context, id string, fn mutation) (Result, error) {
	unlock := s.locks.Lock(id)
	rec, events, err := s.apply(ctx, id, fn)
	unlock()
	if err != nil {
		return Result{}, err
	}
	res := Result{Return: rec}
	if len(events) > 0 {
		res.Notifications = s.notifier.Notify(ctx, events)
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, id string, fn mutation) (*models.ReturnRecord, []models.Event, error) {
	for attempt := 1; ; attempt++ {
		stored, err := s.store.GetReturn(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		work := stored.Clone()
		events, changed, err := fn(ctx, work, s.now())
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			return stored, nil, nil
		}

		err = s.store.UpdateReturn(ctx, work)
		if err == nil {
			s.invalidate(ctx, id)
			return work, events, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt >= maxConflictRetries {
			return nil, nil, err
		}
		s.log.Warn("return changed concurrently, retrying", zap.String("return_id", id), zap.Int("attempt", attempt))
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.ReturnRecord, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		if rec, ok, err := s.cache.GetReturn(ctx, id); err == nil && ok {
			return rec, nil
		}
	}
	if s.cache == nil || s.cacheTTL <= 0 {
		return s.store.GetReturn(ctx, id)
	}

	// Filled under the record lock so a mutation committing between the read
	// and the fill cannot be shadowed by the older copy.
	unlock := s.locks.Lock(id)
	defer unlock()
	rec, err := s.store.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetReturn(ctx, rec, s.cacheTTL); err != nil {
		s.log.Debug("return cache fill", zap.String("return_id", id), zap.Error(err))
	}
	return rec, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn("return cache invalidate", zap.String("return_id", id), zap.Error(err))
	}
}
