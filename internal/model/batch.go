package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 证书码批次
// ============================================================================

const (
	PaymentMethodCreditCard = "CREDIT_CARD"
	PaymentMethodManual     = "MANUAL_PAYMENT"
)

const (
	BatchStatusPending   = "PENDING"
	BatchStatusApproved  = "APPROVED"  // 线下付款人工审核通过
	BatchStatusRejected  = "REJECTED"  // 线下付款人工审核驳回（终态）
	BatchStatusCompleted = "COMPLETED" // 信用卡支付确认完成
	BatchStatusFailed    = "FAILED"
)

// 批次状态只允许单向流转，PENDING 只能被消费一次
var ValidBatchTransitions = map[string][]string{
	BatchStatusPending: {BatchStatusApproved, BatchStatusRejected, BatchStatusCompleted, BatchStatusFailed},
}

func BatchCanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidBatchTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// CodeBatch 证书码批次表
// 一次购买请求对应一个批次；数量与金额创建后不可变，
// 状态只由支付确认或人工审核改变。
// 批次进入 APPROVED/COMPLETED 后，关联证书码数量必须恰好等于 quantity，
// 在此之前必须为零。
type CodeBatch struct {
	ID                int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchNo           string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"batch_no"`
	RequestID         string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	TrainingCenterID  int64            `gorm:"index;not null" json:"training_center_id"`
	AccID             int64            `gorm:"index;not null" json:"acc_id"`
	CourseID          int64            `gorm:"not null" json:"course_id"`
	Quantity          int              `gorm:"not null" json:"quantity"`
	TotalAmount       decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	DiscountAmount    decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	FinalAmount       decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"final_amount"`
	Currency          string           `gorm:"type:varchar(8);not null" json:"currency"`
	DiscountCodeID    *int64           `json:"discount_code_id"`
	PaymentMethod     string           `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus     string           `gorm:"type:varchar(20);index;not null" json:"payment_status"`
	TransactionID     int64            `gorm:"index" json:"transaction_id"`
	PaymentIntentID   string           `gorm:"type:varchar(128);index" json:"payment_intent_id"`
	PaymentReceiptURL string           `gorm:"type:varchar(512)" json:"payment_receipt_url"` // 线下付款凭证
	PaymentAmount     *decimal.Decimal `gorm:"type:decimal(12,2)" json:"payment_amount"`     // 线下付款声称金额
	VerifiedBy        *int64           `json:"verified_by"`
	VerifiedAt        *time.Time       `json:"verified_at"`
	RejectionReason   string           `gorm:"type:varchar(256)" json:"rejection_reason"`
	CreatedAt         time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CodeBatch) TableName() string {
	return "code_batch"
}
