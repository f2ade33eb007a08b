package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 分成台账
// ============================================================================

const (
	SettlementStatusPending = "PENDING"
	SettlementStatusSettled = "SETTLED"
)

// CommissionLedger 分成台账表
// 每笔完成的营收交易恰好写入一条；之后只允许翻转结算状态。
//
// 【不变式】group_commission_amount + acc_commission_amount == 交易金额
// 平台分成先四舍五入到两位小数，机构分成取差值，保证两者之和精确相等
type CommissionLedger struct {
	ID                        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID             int64           `gorm:"uniqueIndex;not null" json:"transaction_id"`
	AccID                     int64           `gorm:"index;not null" json:"acc_id"`
	TrainingCenterID          *int64          `json:"training_center_id"`
	GroupCommissionAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"group_commission_amount"`
	GroupCommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"group_commission_percentage"`
	AccCommissionAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"acc_commission_amount"`
	AccCommissionPercentage   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"acc_commission_percentage"`
	SettlementStatus          string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"settlement_status"`
	SettlementDate            *time.Time      `json:"settlement_date"`
	CreatedAt                 time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CommissionLedger) TableName() string {
	return "commission_ledger"
}
