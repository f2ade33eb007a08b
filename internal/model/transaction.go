package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeCodePurchase = "CODE_PURCHASE" // 证书码批量购买
	TransactionTypeTransfer     = "TRANSFER"      // 向收款方出账
	TransactionTypeRefund       = "REFUND"        // 退款
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusRefunded  = "REFUNDED"
)

// 交易状态单向流转，绝不回到 PENDING
var ValidTransactionTransitions = map[string][]string{
	TransactionStatusPending:   {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted: {TransactionStatusRefunded},
}

func TransactionCanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidTransactionTransitions[currentStatus]
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

// ============================================================================
// 交易实体
// ============================================================================

// Transaction 交易表
// 记录每一笔资金往来，是对账与分成的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改业务字段 —— 保证审计可追溯
// 2. 付款方/收款方使用显式枚举类型，不按字符串约定解析
// 3. 状态单向流转，completed_at 只在完成时落一次
type Transaction struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	TransactionType      string          `gorm:"type:varchar(20);not null" json:"transaction_type"`
	PayerType            string          `gorm:"type:varchar(20);not null" json:"payer_type"`
	PayerID              int64           `gorm:"index;not null" json:"payer_id"`
	PayeeType            string          `gorm:"type:varchar(20);not null" json:"payee_type"`
	PayeeID              int64           `gorm:"not null" json:"payee_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency             string          `gorm:"type:varchar(8);not null" json:"currency"`
	PaymentMethod        string          `gorm:"type:varchar(20)" json:"payment_method"`
	GatewayTransactionID string          `gorm:"type:varchar(128);index" json:"gateway_transaction_id"` // 支付网关侧的不透明标识
	Status               string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ReferenceType        string          `gorm:"type:varchar(32)" json:"reference_type"` // 如 CODE_BATCH
	ReferenceID          int64           `json:"reference_id"`
	CompletedAt          *time.Time      `json:"completed_at"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

const ReferenceTypeCodeBatch = "CODE_BATCH"
