package commission

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db/option"
	"wellnest-affiliate/pkg/db/pagination"
	"wellnest-affiliate/pkg/errutil"
	"wellnest-affiliate/pkg/repository"
	"wellnest-affiliate/services/creator"
	"wellnest-affiliate/services/referral"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config

	creators  *creator.Service
	referrals *referral.Service

	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Creators  *creator.Service
	Referrals *referral.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		cfg:  p.Config,

		creators:  p.Creators,
		referrals: p.Referrals,

		entries: repository.ProvideStore[Entry](p.DB),
	}
}

// OrderPaidResult is what the checkout collaborator gets back when it reports a
// paid order.
type OrderPaidResult struct {
	Attribution *referral.OrderAttribution `json:"attribution"`
	Entries     []*Entry                   `json:"entries"`
}

// HandleOrderPaid is the inline order-finalization path: resolve the
// attribution, then write the commission lines. Idempotent on order_id end to
// end, so the checkout collaborator may retry the event at least once.
func (s *Service) HandleOrderPaid(ctx context.Context, event *referral.OrderPaidEvent) (*OrderPaidResult, error) {
	attribution, err := s.referrals.ResolveAttribution(ctx, event)
	if err != nil {
		return nil, err
	}

	result := &OrderPaidResult{Attribution: attribution}
	if !attribution.Attributed() {
		return result, nil
	}

	entries, err := s.CalculateForOrder(ctx, attribution)
	if err != nil {
		return nil, err
	}

	result.Entries = entries
	return result, nil
}

// CalculateForOrder writes the pending ledger entries for an attributed order.
// Rates are frozen here: the direct rate from config and each recruiter's
// override rate from their tier at this moment. Re-invocation for an order that
// already has entries returns the existing rows untouched.
func (s *Service) CalculateForOrder(ctx context.Context, attribution *referral.OrderAttribution) ([]*Entry, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("order_id", attribution.OrderID),
		zap.String("creator_id", attribution.CreatorID),
	}

	if !attribution.Attributed() {
		return nil, nil
	}

	existing, err := s.entries.Find(ctx, &Entry{OrderID: attribution.OrderID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		zap.L().With(opts...).Info("order already has ledger entries, skipping")
		return existing, nil
	}

	chain, err := s.creators.RecruiterChain(ctx, attribution.CreatorID, s.cfg.Affiliate.ChainDepth())
	if err != nil {
		return nil, err
	}

	parties := make([]OverrideParty, 0, len(chain))
	for _, recruiter := range chain {
		parties = append(parties, OverrideParty{
			CreatorID: recruiter.ID,
			Rate:      creator.OverrideRateForTier(recruiter.Tier),
		})
	}

	drafts := CalculateDrafts(
		attribution.NetRevenue,
		s.cfg.Affiliate.Direct(),
		s.cfg.Affiliate.PayoutCap(),
		attribution.CreatorID,
		parties,
	)

	// a negative or oversized line means the cap arithmetic is broken; abort
	// before anything reaches the ledger
	for _, draft := range drafts {
		if draft.Amount.IsNegative() {
			zap.L().With(opts...).Error("calculated a negative commission amount",
				zap.String("line_creator_id", draft.CreatorID),
				zap.String("amount", draft.Amount.String()))
			return nil, errutil.Internal("commission calculation produced a negative amount", nil)
		}
	}

	holdUntil := attribution.OrderTime.Add(s.cfg.Affiliate.HoldPeriod())

	records := make([]*Entry, 0, len(drafts))
	for _, draft := range drafts {
		records = append(records, &Entry{
			ID:         s.node.Generate().String(),
			OrderID:    attribution.OrderID,
			CreatorID:  draft.CreatorID,
			Kind:       draft.Kind,
			Level:      draft.Level,
			BaseAmount: attribution.NetRevenue,
			Rate:       draft.Rate,
			Amount:     draft.Amount,
			Currency:   attribution.Currency,
			Status:     StatusPending,
			HoldUntil:  holdUntil,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		})
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.entries.WithTrx(tx).BatchCreate(ctx, records)
	}); err != nil {
		// a concurrent retry may have written the entries first
		if existing, ferr := s.entries.Find(ctx, &Entry{OrderID: attribution.OrderID}); ferr == nil && len(existing) > 0 {
			return existing, nil
		}
		zap.L().With(opts...).Error("failed to write ledger entries", zap.Error(err))
		return nil, err
	}

	zap.L().With(opts...).Info("ledger entries written", zap.Int("count", len(records)))

	return records, nil
}

// AdvanceHolds moves every pending entry whose hold has elapsed to approved.
// The transition is a conditional update on status, so overlapping runs and a
// racing reversal each apply at most once per entry.
func (s *Service) AdvanceHolds(ctx context.Context, now time.Time) (int64, error) {
	var orderIDs []string
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Distinct("order_id").
		Where("status = ? AND hold_until <= ?", StatusPending, now).
		Pluck("order_id", &orderIDs).Error; err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("status = ? AND hold_until <= ?", StatusPending, now).
		Updates(map[string]any{
			"status":     StatusApproved,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	for _, orderID := range orderIDs {
		if err := s.referrals.MarkStatus(ctx, orderID, referral.AttributionApproved); err != nil {
			zap.L().Warn("failed to mirror approval onto attribution",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}

	if result.RowsAffected > 0 {
		zap.L().Info("commission holds advanced", zap.Int64("entries", result.RowsAffected))
	}

	return result.RowsAffected, nil
}

// Reverse transitions every non-terminal entry for an order to reversed and
// marks the attribution refunded. Safe to call repeatedly; entries already
// paid or reversed are untouched.
func (s *Service) Reverse(ctx context.Context, orderID string) (int64, error) {
	if orderID == "" {
		return 0, errutil.BadRequest("order_id is required", nil)
	}

	existing, err := s.entries.Find(ctx, &Entry{OrderID: orderID})
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		// attributions that earned nothing (method none, inactive creator)
		// still flip to refunded; only a fully unknown order is an error
		if _, err := s.referrals.GetAttribution(ctx, orderID); err != nil {
			return 0, err
		}
		if err := s.referrals.MarkStatus(ctx, orderID, referral.AttributionRefunded); err != nil {
			return 0, err
		}
		zap.L().Info("order refunded with no ledger entries", zap.String("order_id", orderID))
		return 0, nil
	}

	now := time.Now()
	var reversed int64
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Model(&Entry{}).
			Where("order_id = ? AND status IN ?", orderID, []EntryStatus{StatusPending, StatusApproved}).
			Updates(map[string]any{
				"status":      StatusReversed,
				"reversed_at": now,
				"updated_at":  now,
			})
		if result.Error != nil {
			return result.Error
		}
		reversed = result.RowsAffected

		return s.referrals.MarkStatusTx(ctx, tx, orderID, referral.AttributionRefunded)
	}); err != nil {
		return 0, err
	}

	zap.L().Info("order commissions reversed",
		zap.String("order_id", orderID),
		zap.Int64("entries", reversed),
	)

	return reversed, nil
}

// Balance sums the entry amounts for one creator in one status.
func (s *Service) Balance(ctx context.Context, creatorID string, status EntryStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("creator_id = ? AND status = ?", creatorID, status).
		Scan(&sum).Error; err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// GetEarningsOverview builds the portal aggregates for one creator.
func (s *Service) GetEarningsOverview(ctx context.Context, creatorID string) (*EarningsOverview, error) {
	if _, err := s.creators.Get(ctx, creatorID); err != nil {
		return nil, err
	}

	overview := &EarningsOverview{CreatorID: creatorID}

	for status, target := range map[EntryStatus]*decimal.Decimal{
		StatusPending:  &overview.OnHold,
		StatusApproved: &overview.Payable,
		StatusPaid:     &overview.Paid,
		StatusReversed: &overview.Reversed,
	} {
		sum, err := s.Balance(ctx, creatorID, status)
		if err != nil {
			return nil, err
		}
		*target = sum
	}

	overview.Lifetime = overview.OnHold.Add(overview.Payable).Add(overview.Paid)

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var thisMonth decimal.Decimal
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("creator_id = ? AND status <> ? AND created_at >= ?", creatorID, StatusReversed, monthStart).
		Scan(&thisMonth).Error; err != nil {
		return nil, err
	}
	overview.ThisMonth = thisMonth

	return overview, nil
}

// ListEntries returns one page of a creator's ledger lines, newest first,
// with a cursor for the next page.
func (s *Service) ListEntries(ctx context.Context, creatorID string, page *pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	limit := 20
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	}

	if page != nil {
		limit = page.PageSize()
		if page.Cursor != "" {
			cursor, err := pagination.DecodeCursor(page.Cursor)
			if err != nil {
				return nil, nil, errutil.BadRequest("invalid cursor", err)
			}
			before, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				return nil, nil, errutil.BadRequest("invalid cursor", err)
			}
			opts = append(opts, option.ApplyOperator(option.Condition{
				Field:    "created_at",
				Operator: option.LT,
				Value:    before,
			}))
		}
	}
	opts = append(opts, option.WithLimit(limit+1))

	entries, err := s.entries.Find(ctx, &Entry{CreatorID: creatorID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	entries, info := pagination.BuildCursorPageInfo(entries, limit, func(entry *Entry) string {
		next, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
			ID:        entry.ID,
		})
		return next
	})

	return entries, info, nil
}

// ApprovedForCreator loads a creator's payable entries inside the caller's
// transaction, locked for update so a concurrent batch cannot settle them
// twice.
func (s *Service) ApprovedForCreator(ctx context.Context, tx *gorm.DB, creatorID string) ([]*Entry, error) {
	return s.entries.WithTrx(tx).Find(ctx,
		&Entry{CreatorID: creatorID, Status: StatusApproved},
		option.WithLockingUpdate(),
	)
}

// MarkPaid settles the given approved entries against a payout. Returns the
// number of rows actually transitioned; callers must treat a shortfall as a
// conflict and roll back.
func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, entryIDs []string, payoutID string) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}

	result := tx.WithContext(ctx).Model(&Entry{}).
		Where("id IN ? AND status = ?", entryIDs, StatusApproved).
		Updates(map[string]any{
			"status":     StatusPaid,
			"payout_id":  payoutID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	// mirror onto the attribution rows of orders whose direct line settled
	var orderIDs []string
	if err := tx.WithContext(ctx).Model(&Entry{}).
		Where("id IN ? AND kind = ?", entryIDs, KindDirect).
		Pluck("order_id", &orderIDs).Error; err != nil {
		return 0, err
	}
	for _, orderID := range orderIDs {
		if err := s.referrals.MarkStatusTx(ctx, tx, orderID, referral.AttributionPaid); err != nil {
			return 0, err
		}
	}

	return result.RowsAffected, nil
}
