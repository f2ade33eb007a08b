package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 折扣码
// ============================================================================

const (
	DiscountTypeTimeLimited   = "TIME_LIMITED"   // 限时折扣
	DiscountTypeQuantityBased = "QUANTITY_BASED" // 限量折扣
)

const (
	DiscountStatusActive   = "ACTIVE"
	DiscountStatusExpired  = "EXPIRED"
	DiscountStatusDepleted = "DEPLETED"
	DiscountStatusInactive = "INACTIVE"
)

// DiscountCode 折扣码表
// code 在同一认证机构内唯一；used_quantity 只增不减，
// 限量折扣的消耗通过条件更新保证不超卖
type DiscountCode struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccID              int64           `gorm:"uniqueIndex:uk_acc_code;not null" json:"acc_id"`
	Code               string          `gorm:"type:varchar(64);uniqueIndex:uk_acc_code;not null" json:"code"`
	DiscountType       string          `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"discount_percentage"` // 0-100
	ApplicableCourses  string          `gorm:"type:varchar(512)" json:"applicable_courses"`           // 逗号分隔的课程ID，为空表示全部适用
	StartDate          *time.Time      `json:"start_date"`
	EndDate            *time.Time      `json:"end_date"`
	TotalQuantity      int             `gorm:"not null;default:0" json:"total_quantity"`
	UsedQuantity       int             `gorm:"not null;default:0" json:"used_quantity"`
	Status             string          `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DiscountCode) TableName() string {
	return "discount_code"
}

// AppliesTo 判断折扣码是否适用于指定课程
// 适用课程列表为空时对该机构全部课程生效
func (d *DiscountCode) AppliesTo(courseID int64) bool {
	if strings.TrimSpace(d.ApplicableCourses) == "" {
		return true
	}
	for _, part := range strings.Split(d.ApplicableCourses, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		if id == courseID {
			return true
		}
	}
	return false
}
