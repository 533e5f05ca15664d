package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/errutil"
	"wellnest-affiliate/pkg/repository"
	"wellnest-affiliate/pkg/sequence"
	"wellnest-affiliate/services/creator"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config
	seq  sequence.Generator

	links        repository.Repository[TrackingLink]
	coupons      repository.Repository[CouponCode]
	attributions repository.Repository[OrderAttribution]
	creators     repository.Repository[creator.Creator]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Seq    sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		cfg:  p.Config,
		seq:  p.Seq,

		links:        repository.ProvideStore[TrackingLink](p.DB),
		coupons:      repository.ProvideStore[CouponCode](p.DB),
		attributions: repository.ProvideStore[OrderAttribution](p.DB),
		creators:     repository.ProvideStore[creator.Creator](p.DB),
	}
}

type CreateLinkRequest struct {
	Name            string `json:"name" binding:"required"`
	DestinationPath string `json:"destination_path"`
	IsDefault       bool   `json:"is_default"`
}

func (s *Service) CreateLink(ctx context.Context, creatorID string, req *CreateLinkRequest) (*TrackingLink, error) {
	if req == nil || req.Name == "" {
		return nil, errutil.BadRequest("name is required", nil)
	}

	owner, err := s.creators.FindOne(ctx, &creator.Creator{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	destination := req.DestinationPath
	if destination == "" {
		destination = s.cfg.Affiliate.DefaultRedirect
	}
	if destination == "" {
		destination = "/"
	}

	linkSlug := slug.Make(req.Name)
	if existing, err := s.links.FindOne(ctx, &TrackingLink{Slug: linkSlug}); err != nil {
		return nil, err
	} else if existing != nil {
		linkSlug = fmt.Sprintf("%s-%s", linkSlug, s.node.Generate().Base36())
	}

	record := &TrackingLink{
		ID:              s.node.Generate().String(),
		CreatorID:       creatorID,
		Slug:            linkSlug,
		DestinationPath: destination,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		count, err := s.links.WithTrx(tx).Count(ctx, &TrackingLink{CreatorID: creatorID})
		if err != nil {
			return err
		}

		// first link is always the default; otherwise honor the request and
		// demote the previous default so exactly one remains
		record.IsDefault = count == 0 || req.IsDefault
		if record.IsDefault && count > 0 {
			if err := tx.WithContext(ctx).Model(&TrackingLink{}).
				Where("creator_id = ? AND is_default = ?", creatorID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		return s.links.WithTrx(tx).Create(ctx, record)
	}); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) ListLinks(ctx context.Context, creatorID string) ([]*TrackingLink, error) {
	return s.links.Find(ctx, &TrackingLink{CreatorID: creatorID})
}

type CreateCouponRequest struct {
	Code      string `json:"code"`
	IsPrimary bool   `json:"is_primary"`
}

func (s *Service) CreateCoupon(ctx context.Context, creatorID string, req *CreateCouponRequest) (*CouponCode, error) {
	owner, err := s.creators.FindOne(ctx, &creator.Creator{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	code := ""
	if req != nil {
		code = req.Code
	}
	if code == "" {
		if s.seq == nil {
			return nil, errutil.BadRequest("code is required", nil)
		}
		code, err = s.seq.NextCouponCode(ctx, owner.DisplayName)
		if err != nil {
			zap.L().Error("failed to generate coupon code", zap.Error(err))
			return nil, err
		}
	}

	if existing, err := s.coupons.FindOne(ctx, &CouponCode{Code: code}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errutil.Conflict("coupon code already exists", nil)
	}

	record := &CouponCode{
		ID:           s.node.Generate().String(),
		CreatorID:    creatorID,
		Code:         code,
		TotalRevenue: decimal.Zero,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		count, err := s.coupons.WithTrx(tx).Count(ctx, &CouponCode{CreatorID: creatorID})
		if err != nil {
			return err
		}

		record.IsPrimary = count == 0 || (req != nil && req.IsPrimary)
		if record.IsPrimary && count > 0 {
			if err := tx.WithContext(ctx).Model(&CouponCode{}).
				Where("creator_id = ? AND is_primary = ?", creatorID, true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}

		return s.coupons.WithTrx(tx).Create(ctx, record)
	}); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) ListCoupons(ctx context.Context, creatorID string) ([]*CouponCode, error) {
	return s.coupons.Find(ctx, &CouponCode{CreatorID: creatorID})
}

// TrackClick bumps the click counter and returns the redirect destination.
// Unknown slugs fall back to the configured default so stale links never 404.
func (s *Service) TrackClick(ctx context.Context, linkSlug string) (string, error) {
	link, err := s.links.FindOne(ctx, &TrackingLink{Slug: linkSlug})
	if err != nil {
		return "", err
	}
	if link == nil {
		fallback := s.cfg.Affiliate.DefaultRedirect
		if fallback == "" {
			fallback = "/"
		}
		return fallback, nil
	}

	if err := s.db.WithContext(ctx).Model(&TrackingLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]any{
			"click_count": gorm.Expr("click_count + 1"),
			"updated_at":  time.Now(),
		}).Error; err != nil {
		zap.L().Error("failed to increment click count", zap.String("slug", linkSlug), zap.Error(err))
	}

	return link.DestinationPath, nil
}

// ResolveAttribution attributes an order to at most one creator. Idempotent on
// order_id: a repeated event returns the existing row without re-applying side
// effects. Tracking link wins over coupon code; the two never combine.
func (s *Service) ResolveAttribution(ctx context.Context, event *OrderPaidEvent) (*OrderAttribution, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("order_id", event.OrderID),
	}

	if event.OrderID == "" {
		return nil, errutil.BadRequest("order_id is required", nil)
	}
	if event.NetRevenue.IsNegative() || event.NetRevenue.IsZero() {
		return nil, errutil.ValidationFailed("net_revenue must be positive", nil)
	}

	if existing, err := s.attributions.FindOne(ctx, &OrderAttribution{OrderID: event.OrderID}); err != nil {
		return nil, err
	} else if existing != nil {
		zap.L().With(opts...).Info("order already attributed, skipping")
		return existing, nil
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	currency := event.Currency
	if currency == "" {
		currency = "USD"
	}

	// the raw identifiers from checkout are kept on the row so a resolution
	// can be audited after links or coupons change hands
	metadata, err := json.Marshal(map[string]string{
		"coupon_code":   event.CouponCode,
		"tracking_slug": event.TrackingSlug,
	})
	if err != nil {
		return nil, err
	}

	record := &OrderAttribution{
		ID:         s.node.Generate().String(),
		OrderID:    event.OrderID,
		Method:     MethodNone,
		NetRevenue: event.NetRevenue,
		Currency:   currency,
		Status:     AttributionPending,
		OrderTime:  occurredAt,
		Metadata:   datatypes.JSON(metadata),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if event.TrackingSlug != "" {
			link, err := s.links.WithTrx(tx).FindOne(ctx, &TrackingLink{Slug: event.TrackingSlug})
			if err != nil {
				return err
			}
			if link != nil {
				return s.resolveViaLink(ctx, tx, record, link, opts)
			}
		}

		if event.CouponCode != "" {
			coupon, err := s.coupons.WithTrx(tx).FindOne(ctx, &CouponCode{Code: event.CouponCode})
			if err != nil {
				return err
			}
			if coupon != nil {
				return s.resolveViaCoupon(ctx, tx, record, coupon, opts)
			}
		}

		zap.L().With(opts...).Info("no attribution match for order")
		return s.attributions.WithTrx(tx).Create(ctx, record)
	}); err != nil {
		// a concurrent retry may have inserted the row first; the unique
		// index on order_id makes that a success, not a duplicate
		if existing, ferr := s.attributions.FindOne(ctx, &OrderAttribution{OrderID: event.OrderID}); ferr == nil && existing != nil {
			return existing, nil
		}
		zap.L().With(opts...).Error("failed to resolve attribution", zap.Error(err))
		return nil, err
	}

	return record, nil
}

func (s *Service) resolveViaLink(ctx context.Context, tx *gorm.DB, record *OrderAttribution, link *TrackingLink, opts []zap.Field) error {
	owner, err := s.creators.WithTrx(tx).FindOne(ctx, &creator.Creator{ID: link.CreatorID})
	if err != nil {
		return err
	}

	record.CreatorID = link.CreatorID
	if owner == nil || !owner.IsActive() {
		// logged for analytics, earns nothing
		zap.L().With(opts...).Info("link resolved to inactive creator", zap.String("creator_id", link.CreatorID))
		return s.attributions.WithTrx(tx).Create(ctx, record)
	}

	record.Method = MethodLinkClick
	if err := s.attributions.WithTrx(tx).Create(ctx, record); err != nil {
		return err
	}

	return tx.WithContext(ctx).Model(&TrackingLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]any{
			"conversion_count": gorm.Expr("conversion_count + 1"),
			"updated_at":       time.Now(),
		}).Error
}

func (s *Service) resolveViaCoupon(ctx context.Context, tx *gorm.DB, record *OrderAttribution, coupon *CouponCode, opts []zap.Field) error {
	owner, err := s.creators.WithTrx(tx).FindOne(ctx, &creator.Creator{ID: coupon.CreatorID})
	if err != nil {
		return err
	}

	record.CreatorID = coupon.CreatorID
	if owner == nil || !owner.IsActive() {
		zap.L().With(opts...).Info("coupon resolved to inactive creator", zap.String("creator_id", coupon.CreatorID))
		return s.attributions.WithTrx(tx).Create(ctx, record)
	}

	record.Method = MethodCouponCode
	if err := s.attributions.WithTrx(tx).Create(ctx, record); err != nil {
		return err
	}

	return tx.WithContext(ctx).Model(&CouponCode{}).
		Where("id = ?", coupon.ID).
		Updates(map[string]any{
			"use_count":     gorm.Expr("use_count + 1"),
			"total_revenue": gorm.Expr("total_revenue + ?", record.NetRevenue),
			"updated_at":    time.Now(),
		}).Error
}

func (s *Service) GetAttribution(ctx context.Context, orderID string) (*OrderAttribution, error) {
	record, err := s.attributions.FindOne(ctx, &OrderAttribution{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("order attribution not found", nil)
	}
	return record, nil
}

// MarkStatus mirrors the commission lifecycle onto the attribution row for
// display. Refunded is terminal.
func (s *Service) MarkStatus(ctx context.Context, orderID string, status AttributionStatus) error {
	return s.MarkStatusTx(ctx, s.db, orderID, status)
}

// MarkStatusTx is MarkStatus inside a caller-owned transaction, used when the
// mirror must commit atomically with ledger writes.
func (s *Service) MarkStatusTx(ctx context.Context, tx *gorm.DB, orderID string, status AttributionStatus) error {
	return tx.WithContext(ctx).Model(&OrderAttribution{}).
		Where("order_id = ? AND status <> ?", orderID, AttributionRefunded).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}
