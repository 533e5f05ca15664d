package payout

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wellnest-affiliate/pkg/config"
	"wellnest-affiliate/services/commission"
	"wellnest-affiliate/services/creator"
	"wellnest-affiliate/services/referral"
	"wellnest-affiliate/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&creator.Creator{},
		&referral.TrackingLink{},
		&referral.CouponCode{},
		&referral.OrderAttribution{},
		&commission.Entry{},
		&Payout{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}

	creators := creator.NewService(creator.ServiceParams{DB: db, Node: node, Config: cfg})
	referrals := referral.NewService(referral.ServiceParams{DB: db, Node: node, Config: cfg})
	commissions := commission.NewService(commission.ServiceParams{
		DB: db, Node: node, Config: cfg, Creators: creators, Referrals: referrals,
	})

	svc := NewService(ServiceParams{
		DB: db, Node: node, Config: cfg, Commissions: commissions,
	})
	return svc, db
}

func seedCreator(t *testing.T, db *gorm.DB, id string) *creator.Creator {
	t.Helper()

	record := &creator.Creator{
		ID: id, Email: id + "@example.com", DisplayName: id,
		Status: creator.StatusActive, PayoutMethod: "ach",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func seedEntry(t *testing.T, db *gorm.DB, id, creatorID, amount string, status commission.EntryStatus) {
	t.Helper()

	require.NoError(t, db.Create(&commission.Entry{
		ID: id, OrderID: "order-" + id, CreatorID: creatorID,
		Kind: commission.KindDirect, BaseAmount: decimal.RequireFromString(amount),
		Rate: decimal.RequireFromString("0.10"), Amount: decimal.RequireFromString(amount),
		Currency: "USD", Status: status,
		HoldUntil: time.Now().Add(-time.Hour),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)
}

func TestRunBatchThresholdAndSettlement(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-small")
	seedCreator(t, db, "c-big")

	seedEntry(t, db, "e-1", "c-small", "35.00", commission.StatusApproved)
	seedEntry(t, db, "e-2", "c-big", "70.00", commission.StatusApproved)
	seedEntry(t, db, "e-3", "c-big", "50.00", commission.StatusApproved)

	result, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 2, result.Summary.CreatorsExamined)
	require.Equal(t, 1, result.Summary.PayoutsCreated)
	require.Equal(t, 2, result.Summary.EntriesSettled)
	require.True(t, result.Summary.TotalAmount.Equal(decimal.RequireFromString("120.00")))

	require.Len(t, result.Skipped, 1)
	require.Equal(t, "c-small", result.Skipped[0].CreatorID)
	require.True(t, result.Skipped[0].Amount.Equal(decimal.RequireFromString("35.00")))
	require.Equal(t, "below minimum payout threshold", result.Skipped[0].Reason)

	require.Len(t, result.Payouts, 1)
	payout := result.Payouts[0]
	require.Equal(t, "c-big", payout.CreatorID)
	require.True(t, payout.Amount.Equal(decimal.RequireFromString("120.00")))
	require.Equal(t, 2, payout.EntryCount)
	require.Equal(t, StatusPending, payout.Status)
	require.Equal(t, "ach", payout.PayoutMethod)

	var settled []commission.Entry
	require.NoError(t, db.Where("creator_id = ?", "c-big").Find(&settled).Error)
	for _, entry := range settled {
		require.Equal(t, commission.StatusPaid, entry.Status)
		require.NotNil(t, entry.PayoutID)
		require.Equal(t, payout.ID, *entry.PayoutID)
	}

	// the small balance stays approved for a future run
	var untouched commission.Entry
	require.NoError(t, db.Where("id = ?", "e-1").First(&untouched).Error)
	require.Equal(t, commission.StatusApproved, untouched.Status)
}

func TestRunBatchNoDoublePayout(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-big")
	seedEntry(t, db, "e-1", "c-big", "120.00", commission.StatusApproved)

	first, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Summary.PayoutsCreated)

	second, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, second.Summary.PayoutsCreated)
	require.Zero(t, second.Summary.CreatorsExamined)

	var count int64
	require.NoError(t, db.Model(&Payout{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRunBatchCreatorFilter(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-1")
	seedCreator(t, db, "c-2")
	seedEntry(t, db, "e-1", "c-1", "80.00", commission.StatusApproved)
	seedEntry(t, db, "e-2", "c-2", "90.00", commission.StatusApproved)

	result, err := svc.RunBatch(context.Background(), []string{"c-1"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.PayoutsCreated)
	require.Equal(t, "c-1", result.Payouts[0].CreatorID)

	var untouched commission.Entry
	require.NoError(t, db.Where("id = ?", "e-2").First(&untouched).Error)
	require.Equal(t, commission.StatusApproved, untouched.Status)
}

func TestRunBatchIgnoresPendingEntries(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-1")
	seedEntry(t, db, "e-1", "c-1", "40.00", commission.StatusApproved)
	seedEntry(t, db, "e-2", "c-1", "40.00", commission.StatusPending)

	// approved balance alone is below threshold, pending must not count
	result, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, result.Summary.PayoutsCreated)
	require.Len(t, result.Skipped, 1)
	require.True(t, result.Skipped[0].Amount.Equal(decimal.RequireFromString("40.00")))
}

func TestMarkCompleted(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-1")
	seedEntry(t, db, "e-1", "c-1", "120.00", commission.StatusApproved)

	result, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Payouts, 1)

	completed, err := svc.MarkCompleted(context.Background(), result.Payouts[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.PaidAt)

	_, err = svc.MarkCompleted(context.Background(), result.Payouts[0].ID)
	require.Error(t, err)
}

func TestMarkFailed(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-1")
	seedEntry(t, db, "e-1", "c-1", "120.00", commission.StatusApproved)

	result, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Payouts, 1)

	failed, err := svc.MarkFailed(context.Background(), result.Payouts[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Nil(t, failed.PaidAt)

	// terminal either way, cannot complete a failed payout
	_, err = svc.MarkCompleted(context.Background(), result.Payouts[0].ID)
	require.Error(t, err)
}

func TestAttributionMirroredPaid(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, "c-1")
	require.NoError(t, db.Create(&referral.OrderAttribution{
		ID: "att-1", OrderID: "order-e-1", CreatorID: "c-1",
		Method: referral.MethodCouponCode, NetRevenue: decimal.RequireFromString("1200.00"),
		Currency: "USD", Status: referral.AttributionApproved,
		OrderTime: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)
	seedEntry(t, db, "e-1", "c-1", "120.00", commission.StatusApproved)

	_, err := svc.RunBatch(context.Background(), nil)
	require.NoError(t, err)

	var att referral.OrderAttribution
	require.NoError(t, db.Where("order_id = ?", "order-e-1").First(&att).Error)
	require.Equal(t, referral.AttributionPaid, att.Status)
}
