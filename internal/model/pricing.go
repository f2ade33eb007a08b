package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoursePricing 课程定价表
// 同一 (course_id, acc_id) 在任意时刻最多一条生效记录，
// 定价变更通过新增生效区间实现，旧记录只关闭区间，从不删除
type CoursePricing struct {
	ID                          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID                    int64           `gorm:"index:idx_course_acc;not null" json:"course_id"`
	AccID                       int64           `gorm:"index:idx_course_acc;not null" json:"acc_id"`
	BasePrice                   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"base_price"`
	Currency                    string          `gorm:"type:varchar(8);not null;default:usd" json:"currency"`
	GroupCommissionPct          decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"group_commission_pct"`
	TrainingCenterCommissionPct decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"training_center_commission_pct"`
	InstructorCommissionPct     decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"instructor_commission_pct"`
	EffectiveFrom               time.Time       `gorm:"index;not null" json:"effective_from"`
	EffectiveTo                 *time.Time      `json:"effective_to"` // 为空表示开区间，当前长期有效
	CreatedAt                   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CoursePricing) TableName() string {
	return "course_pricing"
}

// ActiveAt 判断定价在指定时刻是否生效
func (p *CoursePricing) ActiveAt(at time.Time) bool {
	if p.EffectiveFrom.After(at) {
		return false
	}
	if p.EffectiveTo != nil && p.EffectiveTo.Before(at) {
		return false
	}
	return true
}
