package creator

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Creator{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:     db,
		Node:   node,
		Config: &config.Config{},
	})
	return svc, db
}

func seedCreator(t *testing.T, db *gorm.DB, record *Creator) *Creator {
	t.Helper()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
		record.UpdatedAt = time.Now()
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestApplyAndGet(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.Apply(context.Background(), &ApplyRequest{
		Email:       "ana@example.com",
		DisplayName: "Ana",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, record.Status)
	require.Equal(t, 0, record.Tier)

	got, err := svc.Get(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, record.Email, got.Email)
}

func TestApplyDuplicateEmail(t *testing.T) {
	svc, db := newTestService(t)
	seedCreator(t, db, &Creator{ID: "c-1", Email: "dup@example.com", DisplayName: "Dup", Status: StatusActive})

	_, err := svc.Apply(context.Background(), &ApplyRequest{
		Email:       "dup@example.com",
		DisplayName: "Other",
	})
	require.Error(t, err)
}

func TestApplyUnknownRecruiter(t *testing.T) {
	svc, _ := newTestService(t)

	recruiterID := "missing"
	_, err := svc.Apply(context.Background(), &ApplyRequest{
		Email:       "new@example.com",
		DisplayName: "New",
		RecruiterID: &recruiterID,
	})
	require.Error(t, err)
}

func TestApplyRejectsRecruiterCycle(t *testing.T) {
	svc, db := newTestService(t)

	a := seedCreator(t, db, &Creator{ID: "c-a", Email: "a@example.com", DisplayName: "A", Status: StatusActive})
	b := seedCreator(t, db, &Creator{ID: "c-b", Email: "b@example.com", DisplayName: "B", Status: StatusActive, RecruiterID: &a.ID})

	// closing the loop a -> b -> a must fail at write time
	require.NoError(t, db.Model(&Creator{}).Where("id = ?", a.ID).Update("recruiter_id", b.ID).Error)

	recruiterID := b.ID
	_, err := svc.Apply(context.Background(), &ApplyRequest{
		Email:       "c@example.com",
		DisplayName: "C",
		RecruiterID: &recruiterID,
	})
	require.Error(t, err)
}

func TestApproveIncrementsRecruiterCount(t *testing.T) {
	svc, db := newTestService(t)

	recruiter := seedCreator(t, db, &Creator{ID: "c-r", Email: "r@example.com", DisplayName: "R", Status: StatusActive, RecruitCount: 4})
	recruit := seedCreator(t, db, &Creator{ID: "c-n", Email: "n@example.com", DisplayName: "N", Status: StatusPending, RecruiterID: &recruiter.ID})

	got, err := svc.Approve(context.Background(), recruit.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)

	updated, err := svc.Get(context.Background(), recruiter.ID)
	require.NoError(t, err)
	require.Equal(t, 5, updated.RecruitCount)
	require.Equal(t, 1, updated.Tier)
}

func TestPauseDecrementsRecruiterCount(t *testing.T) {
	svc, db := newTestService(t)

	recruiter := seedCreator(t, db, &Creator{ID: "c-r", Email: "r@example.com", DisplayName: "R", Status: StatusActive, RecruitCount: 5, Tier: 1})
	recruit := seedCreator(t, db, &Creator{ID: "c-n", Email: "n@example.com", DisplayName: "N", Status: StatusActive, RecruiterID: &recruiter.ID})

	_, err := svc.Pause(context.Background(), recruit.ID)
	require.NoError(t, err)

	updated, err := svc.Get(context.Background(), recruiter.ID)
	require.NoError(t, err)
	require.Equal(t, 4, updated.RecruitCount)
	require.Equal(t, 0, updated.Tier)
}

func TestTransitionGuards(t *testing.T) {
	svc, db := newTestService(t)
	seedCreator(t, db, &Creator{ID: "c-1", Email: "g@example.com", DisplayName: "G", Status: StatusPending})

	// pending creators cannot be paused
	_, err := svc.Pause(context.Background(), "c-1")
	require.Error(t, err)

	// rejected is reachable from pending and is terminal
	_, err = svc.Reject(context.Background(), "c-1")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "c-1")
	require.Error(t, err)
}

func TestRecruiterChainSkipsInactive(t *testing.T) {
	svc, db := newTestService(t)

	c := seedCreator(t, db, &Creator{ID: "c-c", Email: "c@example.com", DisplayName: "C", Status: StatusActive, Tier: 2})
	b := seedCreator(t, db, &Creator{ID: "c-b", Email: "b@example.com", DisplayName: "B", Status: StatusPaused, RecruiterID: &c.ID})
	a := seedCreator(t, db, &Creator{ID: "c-a", Email: "a@example.com", DisplayName: "A", Status: StatusActive, RecruiterID: &b.ID})

	chain, err := svc.RecruiterChain(context.Background(), a.ID, 5)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, c.ID, chain[0].ID)
}

func TestRecruiterChainDepthBound(t *testing.T) {
	svc, db := newTestService(t)

	var prev *string
	for _, id := range []string{"c-5", "c-4", "c-3", "c-2", "c-1"} {
		record := &Creator{ID: id, Email: id + "@example.com", DisplayName: id, Status: StatusActive, RecruiterID: prev}
		seedCreator(t, db, record)
		prev = &record.ID
	}

	chain, err := svc.RecruiterChain(context.Background(), "c-1", 2)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "c-2", chain[0].ID)
	require.Equal(t, "c-3", chain[1].ID)
}

func TestReconcileRecruitCounts(t *testing.T) {
	svc, db := newTestService(t)

	recruiter := seedCreator(t, db, &Creator{ID: "c-r", Email: "r@example.com", DisplayName: "R", Status: StatusActive, RecruitCount: 9, Tier: 1})
	for _, id := range []string{"c-1", "c-2", "c-3", "c-4", "c-5"} {
		seedCreator(t, db, &Creator{ID: id, Email: id + "@example.com", DisplayName: id, Status: StatusActive, RecruiterID: &recruiter.ID})
	}

	repaired, err := svc.ReconcileRecruitCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repaired)

	updated, err := svc.Get(context.Background(), recruiter.ID)
	require.NoError(t, err)
	require.Equal(t, 5, updated.RecruitCount)
	require.Equal(t, 1, updated.Tier)
}
