package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	KindDirect   EntryKind = "direct"
	KindOverride EntryKind = "override"
)

type EntryStatus string

const (
	StatusPending  EntryStatus = "pending"
	StatusApproved EntryStatus = "approved"
	StatusPaid     EntryStatus = "paid"
	StatusReversed EntryStatus = "reversed"
)

// Entry is the unit of money owed to a creator for one order. Amounts are
// immutable after creation; only Status, PayoutID and the timestamps move.
type Entry struct {
	ID         string          `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
	OrderID    string          `gorm:"column:order_id;index;not null;uniqueIndex:uq_commission_entries_line,priority:1"`
	CreatorID  string          `gorm:"column:creator_id;index;not null;uniqueIndex:uq_commission_entries_line,priority:2"`
	Kind       EntryKind       `gorm:"column:kind;type:varchar(10);not null;uniqueIndex:uq_commission_entries_line,priority:3"`
	Level      int             `gorm:"column:level;default:0;uniqueIndex:uq_commission_entries_line,priority:4"`
	BaseAmount decimal.Decimal `gorm:"column:base_amount;type:decimal(12,2);not null"`
	Rate       decimal.Decimal `gorm:"column:rate;type:decimal(6,4);not null"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency   string          `gorm:"column:currency;type:varchar(3);default:'USD'"`
	Status     EntryStatus     `gorm:"column:status;type:varchar(20);default:'pending';index"`
	HoldUntil  time.Time       `gorm:"column:hold_until;index;not null"`
	PayoutID   *string         `gorm:"column:payout_id;index"`
	ReversedAt *time.Time      `gorm:"column:reversed_at"`
}

func (Entry) TableName() string {
	return "commission_entries"
}

// EarningsOverview is the creator-portal aggregate view.
type EarningsOverview struct {
	CreatorID string          `json:"creator_id"`
	Lifetime  decimal.Decimal `json:"lifetime"`
	OnHold    decimal.Decimal `json:"on_hold"`
	Payable   decimal.Decimal `json:"payable"`
	Paid      decimal.Decimal `json:"paid"`
	Reversed  decimal.Decimal `json:"reversed"`
	ThisMonth decimal.Decimal `json:"this_month"`
}
