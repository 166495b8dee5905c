package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/slotmeter/internal/clock"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
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
	Repo  resourcedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  resourcedomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) resourcedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("resource.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req resourcedomain.CreateRequest) (*resourcedomain.Response, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := validateCapacity(req.Capacity); err != nil {
		return nil, err
	}
	price, err := normalizePrice(req.PricePerMinute)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, resourcedomain.ErrNameTaken
	}

	now := s.clock.Now().UTC()
	item := &resourcedomain.Resource{
		ID:             s.genID.Generate(),
		Name:           name,
		Description:    normalizeDescription(req.Description),
		Capacity:       req.Capacity,
		PricePerMinute: price,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, resourcedomain.ErrNameTaken
		}
		return nil, fmt.Errorf("insert resource: %w", err)
	}

	s.log.Info("resource created",
		zap.String("resource_id", item.ID.String()),
		zap.String("name", item.Name),
		zap.Int("capacity", item.Capacity),
	)
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context) ([]resourcedomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]resourcedomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*resourcedomain.Response, error) {
	resourceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, s.db, resourceID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, resourcedomain.ErrNotFound
	}
	return toResponse(item), nil
}

// Update applies the provided fields under a row lock so concurrent partial
// updates serialize instead of overwriting each other's columns.
func (s *Service) Update(ctx context.Context, req resourcedomain.UpdateRequest) (*resourcedomain.Response, error) {
	resourceID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	var item *resourcedomain.Resource
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err = s.repo.FindByIDForUpdate(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if item == nil {
			return resourcedomain.ErrNotFound
		}

		if req.Name != nil {
			name, err := normalizeName(*req.Name)
			if err != nil {
				return err
			}
			if name != item.Name {
				other, err := s.repo.FindByName(ctx, tx, name)
				if err != nil {
					return err
				}
				if other != nil && other.ID != item.ID {
					return resourcedomain.ErrNameTaken
				}
			}
			item.Name = name
		}

		if req.Description != nil {
			item.Description = normalizeDescription(req.Description)
		}

		if req.Capacity != nil {
			if err := validateCapacity(*req.Capacity); err != nil {
				return err
			}
			item.Capacity = *req.Capacity
		}

		if req.PricePerMinute != nil {
			price, err := normalizePrice(*req.PricePerMinute)
			if err != nil {
				return err
			}
			item.PricePerMinute = price
		}

		item.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return resourcedomain.ErrNameTaken
			}
			return fmt.Errorf("update resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toResponse(item), nil
}

// Delete removes a resource that has no active sessions. The resource row is
// locked for the check so no session can be admitted between the count and
// the delete. Closed sessions and billing records are retained.
func (s *Service) Delete(ctx context.Context, id string) error {
	resourceID, err := parseID(id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if item == nil {
			return resourcedomain.ErrNotFound
		}

		active, err := s.repo.CountActiveSessions(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		if active > 0 {
			s.log.Info("resource delete refused",
				zap.String("resource_id", resourceID.String()),
				zap.Int64("active_sessions", active),
			)
			return resourcedomain.ErrResourceInUse
		}

		if err := s.repo.Delete(ctx, tx, resourceID); err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}
		s.log.Info("resource deleted", zap.String("resource_id", resourceID.String()))
		return nil
	})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := resourcedomain.ParseID(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, resourcedomain.ErrInvalidID
	}
	return id, nil
}

func normalizeName(value string) (string, error) {
	name := strings.TrimSpace(value)
	if name == "" || utf8.RuneCountInString(name) > resourcedomain.MaxNameLength {
		return "", resourcedomain.ErrInvalidName
	}
	return name, nil
}

func normalizeDescription(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validateCapacity(value int) error {
	if value <= 0 || value > resourcedomain.MaxCapacity {
		return resourcedomain.ErrInvalidCapacity
	}
	return nil
}

func normalizePrice(value decimal.Decimal) (decimal.Decimal, error) {
	price := value.Round(resourcedomain.PriceScale)
	if !price.IsPositive() || price.GreaterThanOrEqual(resourcedomain.MaxPricePerMinute) {
		return decimal.Zero, resourcedomain.ErrInvalidPrice
	}
	return price, nil
}

func toResponse(r *resourcedomain.Resource) *resourcedomain.Response {
	return &resourcedomain.Response{
		ID:             r.ID.String(),
		Name:           r.Name,
		Description:    r.Description,
		Capacity:       r.Capacity,
		PricePerMinute: r.PricePerMinute.InexactFloat64(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
