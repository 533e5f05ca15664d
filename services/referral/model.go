package referral

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AttributionMethod string

const (
	MethodLinkClick  AttributionMethod = "link_click"
	MethodCouponCode AttributionMethod = "coupon_code"
	MethodNone       AttributionMethod = "none"
)

type AttributionStatus string

const (
	AttributionPending  AttributionStatus = "pending"
	AttributionApproved AttributionStatus = "approved"
	AttributionPaid     AttributionStatus = "paid"
	AttributionRefunded AttributionStatus = "refunded"
)

// TrackingLink is a creator-owned redirect URL. Exactly one default link per
// creator, enforced at creation time.
type TrackingLink struct {
	ID              string    `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	CreatorID       string    `gorm:"column:creator_id;index;not null"`
	Slug            string    `gorm:"column:slug;uniqueIndex;not null"`
	DestinationPath string    `gorm:"column:destination_path;not null"`
	ClickCount      int64     `gorm:"column:click_count;default:0"`
	ConversionCount int64     `gorm:"column:conversion_count;default:0"`
	IsDefault       bool      `gorm:"column:is_default;default:false"`
}

// CouponCode is a creator-owned checkout code. Exactly one primary code per
// creator, enforced at creation time.
type CouponCode struct {
	ID           string          `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
	CreatorID    string          `gorm:"column:creator_id;index;not null"`
	Code         string          `gorm:"column:code;uniqueIndex;not null"`
	UseCount     int64           `gorm:"column:use_count;default:0"`
	TotalRevenue decimal.Decimal `gorm:"column:total_revenue;type:decimal(12,2);default:0"`
	IsPrimary    bool            `gorm:"column:is_primary;default:false"`
}

// OrderAttribution links a paid order to at most one referring creator. Rows
// are append-mostly: the only mutable field is Status, which mirrors the
// commission lifecycle for display.
type OrderAttribution struct {
	ID         string            `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time         `gorm:"column:created_at"`
	UpdatedAt  time.Time         `gorm:"column:updated_at"`
	OrderID    string            `gorm:"column:order_id;uniqueIndex;not null"`
	CreatorID  string            `gorm:"column:creator_id;index"`
	Method     AttributionMethod `gorm:"column:method;type:varchar(20);not null"`
	NetRevenue decimal.Decimal   `gorm:"column:net_revenue;type:decimal(12,2);not null"`
	Currency   string            `gorm:"column:currency;type:varchar(3);default:'USD'"`
	Status     AttributionStatus `gorm:"column:status;type:varchar(20);default:'pending'"`
	OrderTime  time.Time         `gorm:"column:order_time;not null"`
	Metadata   datatypes.JSON    `gorm:"column:metadata"`
}

// Attributed reports whether the order earned a commission-eligible
// attribution (method none rows are analytics-only).
func (a *OrderAttribution) Attributed() bool {
	return a.Method != MethodNone && a.CreatorID != ""
}

// OrderPaidEvent is the payload emitted by the checkout collaborator on
// payment success.
type OrderPaidEvent struct {
	OrderID      string          `json:"order_id" binding:"required"`
	NetRevenue   decimal.Decimal `json:"net_revenue" binding:"required"`
	Currency     string          `json:"currency"`
	CouponCode   string          `json:"coupon_code"`
	TrackingSlug string          `json:"tracking_slug"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
