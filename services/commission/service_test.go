package commission

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
	"wellnest-affiliate/pkg/db/pagination"
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
		&Entry{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}

	creators := creator.NewService(creator.ServiceParams{DB: db, Node: node, Config: cfg})
	referrals := referral.NewService(referral.ServiceParams{DB: db, Node: node, Config: cfg})

	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Config:    cfg,
		Creators:  creators,
		Referrals: referrals,
	})
	return svc, db
}

func seedCreator(t *testing.T, db *gorm.DB, record *creator.Creator) *creator.Creator {
	t.Helper()

	record.Email = record.ID + "@example.com"
	record.DisplayName = record.ID
	record.CreatedAt = time.Now()
	record.UpdatedAt = time.Now()
	require.NoError(t, db.Create(record).Error)
	return record
}

func seedAttribution(t *testing.T, db *gorm.DB, orderID, creatorID, revenue string, orderTime time.Time) *referral.OrderAttribution {
	t.Helper()

	record := &referral.OrderAttribution{
		ID:         "att-" + orderID,
		OrderID:    orderID,
		CreatorID:  creatorID,
		Method:     referral.MethodCouponCode,
		NetRevenue: decimal.RequireFromString(revenue),
		Currency:   "USD",
		Status:     referral.AttributionPending,
		OrderTime:  orderTime,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestCalculateForOrderDirectOnly(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})
	attribution := seedAttribution(t, db, "order-1", "c-a", "400.00", time.Now())

	entries, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, KindDirect, entries[0].Kind)
	require.Equal(t, StatusPending, entries[0].Status)
	require.True(t, entries[0].Rate.Equal(decimal.RequireFromString("0.10")))
	require.True(t, entries[0].Amount.Equal(decimal.RequireFromString("40.00")))
}

func TestCalculateForOrderCappedChain(t *testing.T) {
	svc, db := newTestService(t)

	c := seedCreator(t, db, &creator.Creator{ID: "c-c", Status: creator.StatusActive, RecruitCount: 10, Tier: 2})
	b := seedCreator(t, db, &creator.Creator{ID: "c-b", Status: creator.StatusActive, RecruitCount: 20, Tier: 4, RecruiterID: &c.ID})
	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive, RecruiterID: &b.ID})

	attribution := seedAttribution(t, db, "order-1", "c-a", "1000.00", time.Now())

	entries, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byCreator := make(map[string]*Entry, len(entries))
	total := decimal.Zero
	for _, entry := range entries {
		byCreator[entry.CreatorID] = entry
		total = total.Add(entry.Amount)
	}

	require.True(t, byCreator["c-a"].Amount.Equal(decimal.RequireFromString("100.00")))
	require.True(t, byCreator["c-b"].Amount.Equal(decimal.RequireFromString("66.67")))
	require.True(t, byCreator["c-c"].Amount.Equal(decimal.RequireFromString("33.33")))
	require.True(t, total.Equal(decimal.RequireFromString("200.00")))

	require.Equal(t, KindOverride, byCreator["c-b"].Kind)
	require.True(t, byCreator["c-b"].Rate.Equal(decimal.RequireFromString("0.08")))
}

func TestCalculateForOrderIdempotent(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})
	attribution := seedAttribution(t, db, "order-1", "c-a", "400.00", time.Now())

	first, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)
	second, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)
	require.Len(t, second, len(first))

	count, err := svc.entries.Count(context.Background(), &Entry{OrderID: "order-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestHandleOrderPaidEndToEnd(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})
	require.NoError(t, db.Create(&referral.CouponCode{
		ID: "cp-1", CreatorID: "c-a", Code: "ANA10",
		TotalRevenue: decimal.Zero, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)

	result, err := svc.HandleOrderPaid(context.Background(), &referral.OrderPaidEvent{
		OrderID:    "order-1",
		NetRevenue: decimal.RequireFromString("400.00"),
		CouponCode: "ANA10",
	})
	require.NoError(t, err)
	require.True(t, result.Attribution.Attributed())
	require.Len(t, result.Entries, 1)
	require.True(t, result.Entries[0].Amount.Equal(decimal.RequireFromString("40.00")))
}

func TestHandleOrderPaidUnattributed(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.HandleOrderPaid(context.Background(), &referral.OrderPaidEvent{
		OrderID:    "order-1",
		NetRevenue: decimal.RequireFromString("400.00"),
	})
	require.NoError(t, err)
	require.False(t, result.Attribution.Attributed())
	require.Empty(t, result.Entries)
}

func TestAdvanceHoldsRespectsHoldUntil(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})
	orderTime := time.Now()
	attribution := seedAttribution(t, db, "order-1", "c-a", "400.00", orderTime)

	entries, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// 29 days in: still pending
	advanced, err := svc.AdvanceHolds(context.Background(), orderTime.Add(29*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, advanced)

	// 30 days in: approved
	advanced, err = svc.AdvanceHolds(context.Background(), orderTime.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, advanced)

	// re-running is a no-op
	advanced, err = svc.AdvanceHolds(context.Background(), orderTime.Add(31*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, advanced)

	stored, err := svc.entries.FindOne(context.Background(), &Entry{OrderID: "order-1"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
}

func TestReverseTransitionsNonTerminalEntries(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})
	attribution := seedAttribution(t, db, "order-1", "c-a", "400.00", time.Now())

	_, err := svc.CalculateForOrder(context.Background(), attribution)
	require.NoError(t, err)

	reversed, err := svc.Reverse(context.Background(), "order-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, reversed)

	// idempotent
	reversed, err = svc.Reverse(context.Background(), "order-1")
	require.NoError(t, err)
	require.Zero(t, reversed)

	stored, err := svc.entries.FindOne(context.Background(), &Entry{OrderID: "order-1"})
	require.NoError(t, err)
	require.Equal(t, StatusReversed, stored.Status)
	require.NotNil(t, stored.ReversedAt)

	att, err := svc.referrals.GetAttribution(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, referral.AttributionRefunded, att.Status)
}

func TestReverseEntrylessAttribution(t *testing.T) {
	svc, db := newTestService(t)

	// a method-none attribution is logged but earns no ledger lines; a refund
	// still flips it to refunded instead of failing
	require.NoError(t, db.Create(&referral.OrderAttribution{
		ID: "att-1", OrderID: "order-1", CreatorID: "c-a",
		Method: referral.MethodNone, NetRevenue: decimal.RequireFromString("400.00"),
		Currency: "USD", Status: referral.AttributionPending,
		OrderTime: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)

	reversed, err := svc.Reverse(context.Background(), "order-1")
	require.NoError(t, err)
	require.Zero(t, reversed)

	att, err := svc.referrals.GetAttribution(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, referral.AttributionRefunded, att.Status)

	// an order with neither attribution nor entries is still an error
	_, err = svc.Reverse(context.Background(), "order-unknown")
	require.Error(t, err)
}

func TestDuplicateOrderLinesRejected(t *testing.T) {
	_, db := newTestService(t)

	line := func(id string) *Entry {
		return &Entry{
			ID: id, OrderID: "order-1", CreatorID: "c-a",
			Kind: KindDirect, Level: 0,
			BaseAmount: decimal.RequireFromString("400.00"),
			Rate:       decimal.RequireFromString("0.10"),
			Amount:     decimal.RequireFromString("40.00"),
			Currency:   "USD", Status: StatusPending,
			HoldUntil: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
	}

	require.NoError(t, db.Create(line("e-1")).Error)

	// same order, creator, kind and level: a concurrent recalculation must
	// hit the unique index instead of doubling the ledger
	require.Error(t, db.Create(line("e-2")).Error)
}

func TestReverseDoesNotTouchPaidEntries(t *testing.T) {
	svc, db := newTestService(t)

	payoutID := "po-1"
	require.NoError(t, db.Create(&Entry{
		ID: "e-1", OrderID: "order-1", CreatorID: "c-a",
		Kind: KindDirect, BaseAmount: decimal.RequireFromString("400.00"),
		Rate: decimal.RequireFromString("0.10"), Amount: decimal.RequireFromString("40.00"),
		Currency: "USD", Status: StatusPaid, PayoutID: &payoutID,
		HoldUntil: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Error)

	reversed, err := svc.Reverse(context.Background(), "order-1")
	require.NoError(t, err)
	require.Zero(t, reversed)

	stored, err := svc.entries.FindOne(context.Background(), &Entry{ID: "e-1"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, stored.Status)
}

func TestListEntriesPagination(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&Entry{
			ID: "e-" + string(rune('a'+i)), OrderID: "order-" + string(rune('a'+i)), CreatorID: "c-a",
			Kind: KindDirect, BaseAmount: decimal.RequireFromString("10.00"),
			Rate: decimal.RequireFromString("0.10"), Amount: decimal.RequireFromString("1.00"),
			Currency: "USD", Status: StatusPending, HoldUntil: time.Now(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: time.Now(),
		}).Error)
	}

	first, info, err := svc.ListEntries(context.Background(), "c-a", &pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "e-e", first[0].ID)

	second, info, err := svc.ListEntries(context.Background(), "c-a", &pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "e-c", second[0].ID)

	third, info, err := svc.ListEntries(context.Background(), "c-a", &pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, third, 1)
	require.False(t, info.HasMore)
	require.Equal(t, "e-a", third[0].ID)
}

func TestBalanceAndEarningsOverview(t *testing.T) {
	svc, db := newTestService(t)

	seedCreator(t, db, &creator.Creator{ID: "c-a", Status: creator.StatusActive})

	amounts := map[string]struct {
		amount string
		status EntryStatus
	}{
		"e-1": {"40.00", StatusPending},
		"e-2": {"25.00", StatusApproved},
		"e-3": {"60.00", StatusPaid},
		"e-4": {"10.00", StatusReversed},
	}
	for id, spec := range amounts {
		require.NoError(t, db.Create(&Entry{
			ID: id, OrderID: "order-" + id, CreatorID: "c-a",
			Kind: KindDirect, BaseAmount: decimal.RequireFromString(spec.amount),
			Rate: decimal.RequireFromString("0.10"), Amount: decimal.RequireFromString(spec.amount),
			Currency: "USD", Status: spec.status,
			HoldUntil: time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}).Error)
	}

	payable, err := svc.Balance(context.Background(), "c-a", StatusApproved)
	require.NoError(t, err)
	require.True(t, payable.Equal(decimal.RequireFromString("25.00")))

	overview, err := svc.GetEarningsOverview(context.Background(), "c-a")
	require.NoError(t, err)
	require.True(t, overview.OnHold.Equal(decimal.RequireFromString("40.00")))
	require.True(t, overview.Payable.Equal(decimal.RequireFromString("25.00")))
	require.True(t, overview.Paid.Equal(decimal.RequireFromString("60.00")))
	require.True(t, overview.Reversed.Equal(decimal.RequireFromString("10.00")))
	require.True(t, overview.Lifetime.Equal(decimal.RequireFromString("125.00")))
	require.True(t, overview.ThisMonth.Equal(decimal.RequireFromString("125.00")))
}
