package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
	"github.com/smallbiznis/slotmeter/internal/clock"
	obslogger "github.com/smallbiznis/slotmeter/internal/observability/logger"
	"github.com/smallbiznis/slotmeter/internal/observability/metrics"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
	"github.com/smallbiznis/slotmeter/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      sessiondomain.Repository
	Resources resourcedomain.Repository
	Billing   billingdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      sessiondomain.Repository
	resources resourcedomain.Repository
	billing   billingdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) sessiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("session.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		resources: p.Resources,
		billing:   p.Billing,
		metrics:   p.Metrics,
	}
}

// Start admits a new session when the resource has spare capacity. The
// resource row lock serializes admissions per resource, and the insert itself
// re-checks the live count, so concurrent starts never exceed capacity.
func (s *Service) Start(ctx context.Context, req sessiondomain.StartRequest) (*sessiondomain.Response, error) {
	resourceID, err := sessiondomain.ParseID(strings.TrimSpace(req.ResourceID))
	if err != nil || resourceID == 0 {
		return nil, sessiondomain.ErrInvalidResource
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || utf8.RuneCountInString(userID) > sessiondomain.MaxUserIDLength {
		return nil, sessiondomain.ErrInvalidUser
	}

	log := obslogger.WithContext(ctx, s.log)

	var (
		session      *sessiondomain.UsageSession
		resourceName string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.resources.FindByIDForUpdate(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if res == nil {
			return sessiondomain.ErrResourceNotFound
		}
		resourceName = res.Name

		active, err := s.repo.CountActive(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if active >= int64(res.Capacity) {
			return &sessiondomain.CapacityExceededError{ResourceID: resourceID, Active: active, Capacity: res.Capacity}
		}

		now := s.clock.Now().UTC()
		item := &sessiondomain.UsageSession{
			ID:         s.genID.Generate(),
			ResourceID: resourceID,
			UserID:     userID,
			StartTime:  now,
			IsActive:   true,
			CreatedAt:  now,
		}
		inserted, err := s.repo.InsertIfBelowCapacity(ctx, tx, item)
		if err != nil {
			return fmt.Errorf("insert usage session: %w", err)
		}
		if !inserted {
			return &sessiondomain.CapacityExceededError{ResourceID: resourceID, Active: active, Capacity: res.Capacity}
		}

		session = item
		return nil
	})
	if err != nil {
		var capErr *sessiondomain.CapacityExceededError
		if errors.As(err, &capErr) {
			log.Info("admission rejected",
				zap.String("resource_id", resourceID.String()),
				zap.Int64("active_sessions", capErr.Active),
				zap.Int("capacity", capErr.Capacity),
			)
			s.metrics.RecordAdmissionRejected(ctx, resourceName, "capacity_exceeded")
		} else if db.IsRetryable(err) {
			log.Warn("admission aborted by concurrent transaction",
				zap.String("resource_id", resourceID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	log.Info("session started",
		zap.String("session_id", session.ID.String()),
		zap.String("resource_id", resourceID.String()),
	)
	s.metrics.RecordSessionStarted(ctx, resourceName)
	return toResponse(session), nil
}

// Stop closes an active session and appends its billing record in the same
// transaction. On any failure the session stays active.
func (s *Service) Stop(ctx context.Context, id string) (*sessiondomain.Response, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log)

	var (
		session      *sessiondomain.UsageSession
		resourceName string
		record       *billingdomain.Record
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindActiveForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if item == nil {
			return sessiondomain.ErrActiveSessionNotFound
		}

		end := s.clock.Now().UTC()
		duration := sessiondomain.DurationMinutes(item.StartTime, end)

		res, err := s.resources.FindByID(ctx, tx, item.ResourceID)
		if err != nil {
			return err
		}
		if res == nil {
			log.Error("orphaned session",
				zap.String("session_id", sessionID.String()),
				zap.String("resource_id", item.ResourceID.String()),
			)
			return sessiondomain.ErrResourceNotFound
		}
		resourceName = res.Name

		cost := duration.Mul(res.PricePerMinute)
		item.EndTime = &end
		item.IsActive = false
		item.DurationMinutes = decimal.NewNullDecimal(duration)
		item.Cost = decimal.NewNullDecimal(cost)

		closed, err := s.repo.Close(ctx, tx, item)
		if err != nil {
			return fmt.Errorf("close usage session: %w", err)
		}
		if closed == 0 {
			return sessiondomain.ErrActiveSessionNotFound
		}

		rec, err := s.billing.Append(ctx, tx, billingdomain.AppendRequest{
			SessionID:       item.ID,
			ResourceID:      item.ResourceID,
			UserID:          item.UserID,
			DurationMinutes: duration,
			PricePerMinute:  res.PricePerMinute,
			TotalCost:       cost,
		})
		if err != nil {
			return fmt.Errorf("append billing record: %w", err)
		}

		session = item
		record = rec
		return nil
	})
	if err != nil {
		if db.IsRetryable(err) {
			log.Warn("stop aborted by concurrent transaction",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	log.Info("session stopped",
		zap.String("session_id", session.ID.String()),
		zap.String("resource_id", session.ResourceID.String()),
		zap.String("duration_minutes", session.DurationMinutes.Decimal.String()),
		zap.String("cost", session.Cost.Decimal.String()),
	)
	s.metrics.RecordSessionStopped(ctx, resourceName)
	s.metrics.RecordBillingRecord(ctx, resourceName, record.TotalCost.InexactFloat64())
	return toResponse(session), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*sessiondomain.Response, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, sessiondomain.ErrSessionNotFound
	}
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req sessiondomain.ListRequest) ([]sessiondomain.Response, error) {
	filter := sessiondomain.ListFilter{
		UserID: strings.TrimSpace(req.UserID),
		Active: req.Active,
	}
	if raw := strings.TrimSpace(req.ResourceID); raw != "" {
		resourceID, err := sessiondomain.ParseID(raw)
		if err != nil || resourceID == 0 {
			return nil, sessiondomain.ErrInvalidResource
		}
		filter.ResourceID = resourceID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]sessiondomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := sessiondomain.ParseID(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, sessiondomain.ErrInvalidID
	}
	return id, nil
}

func toResponse(s *sessiondomain.UsageSession) *sessiondomain.Response {
	resp := &sessiondomain.Response{
		ID:         s.ID.String(),
		ResourceID: s.ResourceID.String(),
		UserID:     s.UserID,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		IsActive:   s.IsActive,
		CreatedAt:  s.CreatedAt,
	}
	if s.DurationMinutes.Valid {
		v := s.DurationMinutes.Decimal.InexactFloat64()
		resp.DurationMinutes = &v
	}
	if s.Cost.Valid {
		v := s.Cost.Decimal.InexactFloat64()
		resp.Cost = &v
	}
	return resp
}
