package payout

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db/option"
	"wellnest-affiliate/pkg/errutil"
	"wellnest-affiliate/pkg/repository"
	"wellnest-affiliate/pkg/sequence"
	"wellnest-affiliate/services/commission"
	"wellnest-affiliate/services/creator"
)

const batchConcurrency = 4

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config
	seq  sequence.Generator

	commissions *commission.Service

	payouts  repository.Repository[Payout]
	creators repository.Repository[creator.Creator]
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Seq         sequence.Generator `optional:"true"`
	Commissions *commission.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		cfg:  p.Config,
		seq:  p.Seq,

		commissions: p.Commissions,

		payouts:  repository.ProvideStore[Payout](p.DB),
		creators: repository.ProvideStore[creator.Creator](p.DB),
	}
}

// RunBatch settles approved balances into payout records. Each creator is one
// transaction: a failure there is reported and the rest of the batch continues.
// A creator below the minimum threshold lands in the skipped list with the
// shortfall amount, never silently dropped.
func (s *Service) RunBatch(ctx context.Context, creatorFilter []string) (*BatchResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	candidates, err := s.candidateCreators(ctx, creatorFilter)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Payouts: make([]*Payout, 0, len(candidates)),
		Skipped: make([]SkippedCreator, 0),
		Summary: BatchSummary{
			CreatorsExamined: len(candidates),
			TotalAmount:      decimal.Zero,
		},
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)

	for _, creatorID := range candidates {
		group.Go(func() error {
			payout, skipped, err := s.settleCreator(groupCtx, creatorID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				zap.L().Error("payout settlement failed",
					zap.String("creator_id", creatorID), zap.Error(err))
				result.Skipped = append(result.Skipped, SkippedCreator{
					CreatorID: creatorID,
					Amount:    decimal.Zero,
					Reason:    "settlement failed: " + err.Error(),
				})
				return nil
			}
			if skipped != nil {
				result.Skipped = append(result.Skipped, *skipped)
				return nil
			}

			result.Payouts = append(result.Payouts, payout)
			result.Summary.PayoutsCreated++
			result.Summary.EntriesSettled += payout.EntryCount
			result.Summary.TotalAmount = result.Summary.TotalAmount.Add(payout.Amount)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("payout batch completed",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int("examined", result.Summary.CreatorsExamined),
		zap.Int("payouts", result.Summary.PayoutsCreated),
		zap.Int("skipped", len(result.Skipped)),
		zap.String("total_amount", result.Summary.TotalAmount.StringFixed(2)),
	)

	return result, nil
}

func (s *Service) candidateCreators(ctx context.Context, creatorFilter []string) ([]string, error) {
	query := s.db.WithContext(ctx).Model(&commission.Entry{}).
		Distinct("creator_id").
		Where("status = ?", commission.StatusApproved)
	if len(creatorFilter) > 0 {
		query = query.Where("creator_id IN ?", creatorFilter)
	}

	var candidates []string
	if err := query.Pluck("creator_id", &candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// settleCreator is the per-creator atomic unit: lock the approved entries, sum
// them, write the payout, and mark the entries paid, all in one transaction.
func (s *Service) settleCreator(ctx context.Context, creatorID string) (*Payout, *SkippedCreator, error) {
	owner, err := s.creators.FindOne(ctx, &creator.Creator{ID: creatorID})
	if err != nil {
		return nil, nil, err
	}
	if owner == nil {
		return nil, &SkippedCreator{
			CreatorID: creatorID,
			Amount:    decimal.Zero,
			Reason:    "creator not found",
		}, nil
	}

	now := time.Now()

	code := ""
	if s.seq != nil {
		code, err = s.seq.NextPayoutCode(ctx)
		if err != nil {
			return nil, nil, err
		}
	}
	if code == "" {
		code = "PO-" + s.node.Generate().Base36()
	}

	var payout *Payout
	var skipped *SkippedCreator

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		entries, err := s.commissions.ApprovedForCreator(ctx, tx, creatorID)
		if err != nil {
			return err
		}

		balance := decimal.Zero
		entryIDs := make([]string, 0, len(entries))
		for _, entry := range entries {
			balance = balance.Add(entry.Amount)
			entryIDs = append(entryIDs, entry.ID)
		}

		if balance.LessThan(s.cfg.Affiliate.MinPayout()) {
			skipped = &SkippedCreator{
				CreatorID: creatorID,
				Amount:    balance,
				Reason:    "below minimum payout threshold",
			}
			return nil
		}

		record := &Payout{
			ID:           s.node.Generate().String(),
			Code:         code,
			CreatorID:    creatorID,
			PeriodStart:  s.periodStart(ctx, tx, creatorID, entries[0].CreatedAt),
			PeriodEnd:    now,
			Amount:       balance,
			Currency:     entries[0].Currency,
			EntryCount:   len(entries),
			PayoutMethod: owner.PayoutMethod,
			Status:       StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.payouts.WithTrx(tx).Create(ctx, record); err != nil {
			return err
		}

		settled, err := s.commissions.MarkPaid(ctx, tx, entryIDs, record.ID)
		if err != nil {
			return err
		}
		if settled != int64(len(entryIDs)) {
			return errutil.Conflict("approved entries changed during settlement", nil)
		}

		payout = record
		return nil
	}); err != nil {
		return nil, nil, err
	}

	if payout != nil {
		zap.L().Info("payout created",
			zap.String("creator_id", creatorID),
			zap.String("payout_id", payout.ID),
			zap.String("amount", payout.Amount.StringFixed(2)),
			zap.Int("entries", payout.EntryCount),
		)
	}

	return payout, skipped, nil
}

// periodStart is the end of the creator's previous payout, or the earliest
// settling entry for a first payout.
func (s *Service) periodStart(ctx context.Context, tx *gorm.DB, creatorID string, earliestEntry time.Time) time.Time {
	previous, err := s.payouts.WithTrx(tx).FindOne(ctx, &Payout{CreatorID: creatorID},
		option.WithSortBy(option.QuerySortBy{SortBy: "period_end", OrderBy: "desc", Allow: map[string]bool{"period_end": true}}),
	)
	if err != nil || previous == nil {
		return earliestEntry
	}
	return previous.PeriodEnd
}

func (s *Service) List(ctx context.Context, creatorID string) ([]*Payout, error) {
	return s.payouts.Find(ctx, &Payout{CreatorID: creatorID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	)
}

func (s *Service) Get(ctx context.Context, payoutID string) (*Payout, error) {
	record, err := s.payouts.FindOne(ctx, &Payout{ID: payoutID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("payout not found", nil)
	}
	return record, nil
}

// MarkCompleted records the external payment rail's confirmation. Guarded so a
// failed or already-completed payout is not overwritten.
func (s *Service) MarkCompleted(ctx context.Context, payoutID string) (*Payout, error) {
	now := time.Now()
	return s.markTerminal(ctx, payoutID, map[string]any{
		"status":     StatusCompleted,
		"paid_at":    now,
		"updated_at": now,
	})
}

// MarkFailed records a rail rejection. The settled entries stay paid; the
// operator re-issues against the failed payout out of band.
func (s *Service) MarkFailed(ctx context.Context, payoutID string) (*Payout, error) {
	return s.markTerminal(ctx, payoutID, map[string]any{
		"status":     StatusFailed,
		"updated_at": time.Now(),
	})
}

func (s *Service) markTerminal(ctx context.Context, payoutID string, updates map[string]any) (*Payout, error) {
	result := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status IN ?", payoutID, []Status{StatusPending, StatusProcessing}).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, errutil.UnprocessableEntity("payout is already in a terminal state", nil)
	}

	return s.Get(ctx, payoutID)
}
