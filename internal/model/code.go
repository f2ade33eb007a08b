package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 证书码
// ============================================================================

const (
	CodeStatusAvailable = "AVAILABLE"
	CodeStatusUsed      = "USED"
	CodeStatusExpired   = "EXPIRED"
)

// CertificateCode 证书码表
// 12位大写字母数字随机码，全局唯一；随批次审核/支付确认原子批量生成。
// 使用时通过 AVAILABLE -> USED 条件更新保证最多消费一次，从不删除。
type CertificateCode struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code                 string          `gorm:"type:varchar(12);uniqueIndex;not null" json:"code"`
	BatchID              int64           `gorm:"index;not null" json:"batch_id"`
	TrainingCenterID     int64           `gorm:"index;not null" json:"training_center_id"`
	AccID                int64           `gorm:"index;not null" json:"acc_id"`
	CourseID             int64           `gorm:"not null" json:"course_id"`
	PurchasedPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"purchased_price"` // 折后单价
	DiscountApplied      bool            `gorm:"not null;default:false" json:"discount_applied"`
	DiscountCodeID       *int64          `json:"discount_code_id"`
	Status               string          `gorm:"type:varchar(20);index;not null;default:AVAILABLE" json:"status"`
	PurchasedAt          time.Time       `gorm:"not null" json:"purchased_at"`
	UsedAt               *time.Time      `json:"used_at"`
	UsedForCertificateID *int64          `json:"used_for_certificate_id"`
}

func (CertificateCode) TableName() string {
	return "certificate_code"
}
