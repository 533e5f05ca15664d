package creator

import (
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusRejected Status = "rejected"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusActive, StatusPaused, StatusRejected:
		return string(s)
	default:
		return ""
	}
}

// Creator is a referral-program participant. Rows are never hard-deleted;
// deactivation is a status transition so attribution history stays auditable.
type Creator struct {
	ID           string    `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	DisplayName  string    `gorm:"column:display_name;not null"`
	Status       Status    `gorm:"column:status;type:varchar(20);default:'pending';index"`
	Tier         int       `gorm:"column:tier;default:0"`
	RecruiterID  *string   `gorm:"column:recruiter_id;index"`
	RecruitCount int       `gorm:"column:recruit_count;default:0"`
	PayoutMethod string    `gorm:"column:payout_method;type:varchar(30)"`
}

func (c *Creator) IsActive() bool {
	return c.Status == StatusActive
}
