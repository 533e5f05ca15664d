package creator

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/pkg/db/option"
	"wellnest-affiliate/pkg/errutil"
	"wellnest-affiliate/pkg/repository"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config

	creators repository.Repository[Creator]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		cfg:  p.Config,

		creators: repository.ProvideStore[Creator](p.DB),
	}
}

type ApplyRequest struct {
	Email        string  `json:"email" binding:"required,email"`
	DisplayName  string  `json:"display_name" binding:"required"`
	RecruiterID  *string `json:"recruiter_id"`
	PayoutMethod string  `json:"payout_method"`
}

// Apply registers a new creator in pending status. The recruiter is fixed here
// and never reassignable afterwards; the recruiter chain is validated to stay a
// forest before the row is written.
func (s *Service) Apply(ctx context.Context, req *ApplyRequest) (*Creator, error) {
	if req == nil || req.Email == "" || req.DisplayName == "" {
		return nil, errutil.BadRequest("email and display_name are required", nil)
	}

	existing, err := s.creators.FindOne(ctx, &Creator{Email: req.Email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("a creator with this email already exists", nil)
	}

	newID := s.node.Generate().String()

	if req.RecruiterID != nil {
		if err := s.validateRecruiterChain(ctx, *req.RecruiterID, newID); err != nil {
			return nil, err
		}
	}

	record := &Creator{
		ID:           newID,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Status:       StatusPending,
		Tier:         0,
		RecruiterID:  req.RecruiterID,
		PayoutMethod: req.PayoutMethod,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.creators.Create(ctx, record); err != nil {
		return nil, err
	}

	zap.L().Info("creator applied",
		zap.String("creator_id", record.ID),
		zap.Bool("recruited", req.RecruiterID != nil),
	)

	return record, nil
}

// validateRecruiterChain walks the proposed recruiter upward to termination and
// rejects the assignment if the walk revisits any node or the creator being
// assigned. Depth-capping at read time is not a substitute for this check.
func (s *Service) validateRecruiterChain(ctx context.Context, recruiterID, assigneeID string) error {
	if recruiterID == assigneeID {
		return errutil.UnprocessableEntity("creator cannot recruit themselves", nil)
	}

	visited := map[string]bool{assigneeID: true}
	currentID := recruiterID

	for currentID != "" {
		if visited[currentID] {
			return errutil.UnprocessableEntity("recruiter assignment would create a cycle", nil)
		}
		visited[currentID] = true

		current, err := s.creators.FindOne(ctx, &Creator{ID: currentID})
		if err != nil {
			return err
		}
		if current == nil {
			if currentID == recruiterID {
				return errutil.BadRequest("recruiter not found", nil)
			}
			// broken link mid-chain: treat as chain end
			return nil
		}

		if current.RecruiterID == nil {
			return nil
		}
		currentID = *current.RecruiterID
	}

	return nil
}

func (s *Service) Get(ctx context.Context, creatorID string) (*Creator, error) {
	record, err := s.creators.FindOne(ctx, &Creator{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}
	return record, nil
}

func (s *Service) Approve(ctx context.Context, creatorID string) (*Creator, error) {
	return s.transition(ctx, creatorID, []Status{StatusPending}, StatusActive)
}

func (s *Service) Reject(ctx context.Context, creatorID string) (*Creator, error) {
	return s.transition(ctx, creatorID, []Status{StatusPending, StatusActive, StatusPaused}, StatusRejected)
}

func (s *Service) Pause(ctx context.Context, creatorID string) (*Creator, error) {
	return s.transition(ctx, creatorID, []Status{StatusActive}, StatusPaused)
}

func (s *Service) Reactivate(ctx context.Context, creatorID string) (*Creator, error) {
	return s.transition(ctx, creatorID, []Status{StatusPaused}, StatusActive)
}

// transition applies a guarded status change and keeps the recruiter's
// recruit_count and tier in step. Count maintenance is a conditional
// increment/decrement tied to this specific transition, not a recount.
func (s *Service) transition(ctx context.Context, creatorID string, from []Status, to Status) (*Creator, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("creator_id", creatorID),
		zap.String("to_status", string(to)),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Scopes(option.LockingUpdate)
		creatorsTx := s.creators.WithTrx(tx)

		current, err := creatorsTx.FindOne(ctx, &Creator{ID: creatorID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return errutil.NotFound("creator not found", nil)
		}

		allowed := false
		for _, status := range from {
			if current.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return errutil.UnprocessableEntity(
				fmt.Sprintf("cannot transition creator from %s to %s", current.Status, to), nil)
		}

		wasActive := current.Status == StatusActive
		becomesActive := to == StatusActive

		if err := creatorsTx.Update(ctx, creatorID, map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		}); err != nil {
			return err
		}

		if current.RecruiterID == nil || wasActive == becomesActive {
			return nil
		}

		delta := 1
		if wasActive {
			delta = -1
		}
		return s.adjustRecruitCount(ctx, tx, *current.RecruiterID, delta)
	}); err != nil {
		zap.L().With(opts...).Error("creator status transition failed", zap.Error(err))
		return nil, err
	}

	zap.L().With(opts...).Info("creator status transitioned")

	return s.creators.FindOne(ctx, &Creator{ID: creatorID})
}

// adjustRecruitCount moves the recruiter's denormalized counter and recomputes
// their tier from the tier table inside the caller's transaction.
func (s *Service) adjustRecruitCount(ctx context.Context, tx *gorm.DB, recruiterID string, delta int) error {
	if err := tx.WithContext(ctx).Model(&Creator{}).
		Where("id = ?", recruiterID).
		Updates(map[string]any{
			"recruit_count": gorm.Expr("recruit_count + ?", delta),
			"updated_at":    time.Now(),
		}).Error; err != nil {
		return err
	}

	recruiter, err := s.creators.WithTrx(tx).FindOne(ctx, &Creator{ID: recruiterID})
	if err != nil {
		return err
	}
	if recruiter == nil {
		return nil
	}

	newTier := TierForRecruits(recruiter.RecruitCount)
	if newTier == recruiter.Tier {
		return nil
	}

	zap.L().Info("creator tier recomputed",
		zap.String("creator_id", recruiterID),
		zap.Int("recruit_count", recruiter.RecruitCount),
		zap.Int("tier", newTier),
	)

	return s.creators.WithTrx(tx).Update(ctx, recruiterID, map[string]any{
		"tier":       newTier,
		"updated_at": time.Now(),
	})
}

// GetTierStatus reports the creator's current tier, override rate, and
// distance to the next tier.
func (s *Service) GetTierStatus(ctx context.Context, creatorID string) (*TierStatus, error) {
	record, err := s.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	status := TierStatusForRecruits(record.RecruitCount)
	return &status, nil
}

// RecruiterChain returns the ordered chain of active recruiters above a
// creator, nearest first, bounded by maxDepth. Inactive recruiters are skipped
// but do not break the chain.
func (s *Service) RecruiterChain(ctx context.Context, creatorID string, maxDepth int) ([]*Creator, error) {
	record, err := s.creators.FindOne(ctx, &Creator{ID: creatorID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("creator not found", nil)
	}

	chain := make([]*Creator, 0, maxDepth)
	visited := map[string]bool{record.ID: true}
	current := record

	for depth := 0; depth < maxDepth && current.RecruiterID != nil; depth++ {
		recruiterID := *current.RecruiterID
		if visited[recruiterID] {
			return nil, errutil.Internal("recruiter chain revisits a creator", nil)
		}
		visited[recruiterID] = true

		recruiter, err := s.creators.FindOne(ctx, &Creator{ID: recruiterID})
		if err != nil {
			return nil, err
		}
		if recruiter == nil {
			break
		}

		if recruiter.IsActive() {
			chain = append(chain, recruiter)
		}
		current = recruiter
	}

	return chain, nil
}

// ReconcileRecruitCounts recounts active recruits per creator and repairs any
// drift in the denormalized counters. Safety net only; the status-transition
// path is the primary writer.
func (s *Service) ReconcileRecruitCounts(ctx context.Context) (int, error) {
	recruiters, err := s.creators.Find(ctx, &Creator{})
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, recruiter := range recruiters {
		var actual int64
		if err := s.db.WithContext(ctx).Model(&Creator{}).
			Where("recruiter_id = ? AND status = ?", recruiter.ID, StatusActive).
			Count(&actual).Error; err != nil {
			return repaired, err
		}

		if int(actual) == recruiter.RecruitCount {
			continue
		}

		zap.L().Warn("recruit count drift detected",
			zap.String("creator_id", recruiter.ID),
			zap.Int("stored", recruiter.RecruitCount),
			zap.Int64("actual", actual),
		)

		if err := s.creators.Update(ctx, recruiter.ID, map[string]any{
			"recruit_count": actual,
			"tier":          TierForRecruits(int(actual)),
			"updated_at":    time.Now(),
		}); err != nil {
			return repaired, err
		}
		repaired++
	}

	return repaired, nil
}
