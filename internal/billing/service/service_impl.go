package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
	"github.com/smallbiznis/slotmeter/internal/clock"
	"github.com/smallbiznis/slotmeter/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  billingdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  billingdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) billingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billing.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, req billingdomain.AppendRequest) (*billingdomain.Record, error) {
	if err := validateAppend(req); err != nil {
		return nil, err
	}
	if tx == nil {
		tx = s.db
	}

	existing, err := s.repo.FindBySessionID(ctx, tx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, billingdomain.ErrDuplicateRecord
	}

	rec := &billingdomain.Record{
		ID:              s.genID.Generate(),
		UsageSessionID:  req.SessionID,
		ResourceID:      req.ResourceID,
		UserID:          strings.TrimSpace(req.UserID),
		DurationMinutes: req.DurationMinutes,
		PricePerMinute:  req.PricePerMinute,
		TotalCost:       req.TotalCost,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, tx, rec); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, billingdomain.ErrDuplicateRecord
		}
		return nil, fmt.Errorf("insert billing record: %w", err)
	}

	s.log.Debug("billing record appended",
		zap.String("billing_record_id", rec.ID.String()),
		zap.String("usage_session_id", rec.UsageSessionID.String()),
		zap.String("total_cost", rec.TotalCost.String()),
	)
	return rec, nil
}

func (s *Service) List(ctx context.Context, req billingdomain.ListRequest) ([]billingdomain.Response, error) {
	filter := billingdomain.ListFilter{UserID: strings.TrimSpace(req.UserID)}
	if raw := strings.TrimSpace(req.ResourceID); raw != "" {
		resourceID, err := billingdomain.ParseID(raw)
		if err != nil || resourceID == 0 {
			return nil, billingdomain.ErrInvalidResource
		}
		filter.ResourceID = resourceID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]billingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// TotalSpent sums a user's records in decimal so the result matches the sum
// over List for the same user exactly.
func (s *Service) TotalSpent(ctx context.Context, userID string) (decimal.Decimal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return decimal.Zero, billingdomain.ErrInvalidUser
	}

	items, err := s.repo.List(ctx, s.db, billingdomain.ListFilter{UserID: userID})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalCost)
	}
	return total, nil
}

func (s *Service) GetBySession(ctx context.Context, sessionID string) (*billingdomain.Response, error) {
	id, err := billingdomain.ParseID(strings.TrimSpace(sessionID))
	if err != nil || id == 0 {
		return nil, billingdomain.ErrInvalidSession
	}

	rec, err := s.repo.FindBySessionID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, billingdomain.ErrNotFound
	}
	return toResponse(rec), nil
}

func (s *Service) UserSummary(ctx context.Context, userID string) (*billingdomain.UserSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, billingdomain.ErrInvalidUser
	}

	items, err := s.repo.List(ctx, s.db, billingdomain.ListFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	minutes, spent := decimal.Zero, decimal.Zero
	for _, item := range items {
		minutes = minutes.Add(item.DurationMinutes)
		spent = spent.Add(item.TotalCost)
	}

	return &billingdomain.UserSummary{
		UserID:       userID,
		RecordCount:  len(items),
		TotalMinutes: minutes.InexactFloat64(),
		TotalSpent:   spent.InexactFloat64(),
	}, nil
}

func validateAppend(req billingdomain.AppendRequest) error {
	switch {
	case req.SessionID == 0:
		return billingdomain.ErrInvalidSession
	case req.ResourceID == 0:
		return billingdomain.ErrInvalidResource
	case strings.TrimSpace(req.UserID) == "":
		return billingdomain.ErrInvalidUser
	case req.DurationMinutes.IsNegative():
		return billingdomain.ErrInvalidDuration
	case !req.PricePerMinute.IsPositive():
		return billingdomain.ErrInvalidPrice
	case !req.TotalCost.Equal(req.DurationMinutes.Mul(req.PricePerMinute)):
		return billingdomain.ErrCostMismatch
	}
	return nil
}

func toResponse(r *billingdomain.Record) *billingdomain.Response {
	return &billingdomain.Response{
		ID:              r.ID.String(),
		UsageSessionID:  r.UsageSessionID.String(),
		ResourceID:      r.ResourceID.String(),
		UserID:          r.UserID,
		DurationMinutes: r.DurationMinutes.InexactFloat64(),
		PricePerMinute:  r.PricePerMinute.InexactFloat64(),
		TotalCost:       r.TotalCost.InexactFloat64(),
		CreatedAt:       r.CreatedAt,
	}
}
