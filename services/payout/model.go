package payout

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payout is one batch disbursement to one creator for one period. The ledger
// entries it settles carry its id; Amount is their sum at settlement time.
type Payout struct {
	ID           string          `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
	Code         string          `gorm:"column:code;uniqueIndex"`
	CreatorID    string          `gorm:"column:creator_id;index;not null"`
	PeriodStart  time.Time       `gorm:"column:period_start;not null"`
	PeriodEnd    time.Time       `gorm:"column:period_end;not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency     string          `gorm:"column:currency;type:varchar(3);default:'USD'"`
	EntryCount   int             `gorm:"column:entry_count;default:0"`
	PayoutMethod string          `gorm:"column:payout_method"`
	Status       Status          `gorm:"column:status;type:varchar(20);default:'pending'"`
	PaidAt       *time.Time      `gorm:"column:paid_at"`
}

// SkippedCreator explains why a creator earned no payout in a batch run.
type SkippedCreator struct {
	CreatorID string          `json:"creator_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

// BatchResult is the operator-facing report of one batch run.
type BatchResult struct {
	Payouts []*Payout        `json:"payouts"`
	Skipped []SkippedCreator `json:"skipped"`
	Summary BatchSummary     `json:"summary"`
}

type BatchSummary struct {
	CreatorsExamined int             `json:"creators_examined"`
	PayoutsCreated   int             `json:"payouts_created"`
	EntriesSettled   int             `json:"entries_settled"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}
