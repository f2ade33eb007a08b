package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 出账转账
// ============================================================================

const (
	TransferStatusPending    = "PENDING"    // 待执行
	TransferStatusProcessing = "PROCESSING" // 正在调用网关
	TransferStatusCompleted  = "COMPLETED"  // 网关转账成功（终态）
	TransferStatusFailed     = "FAILED"     // 重试次数耗尽（终态）
	TransferStatusRetrying   = "RETRYING"   // 失败后等待下次重试
)

// Transfer 出账转账表
// 平台向收款方 Stripe 账户的资金划转，失败后按退避策略有限次重试。
//
// 【不变式】gross_amount = commission_amount + net_amount；
// retry_count 达到 max_retries 后状态固定为 FAILED，CanRetry 永远返回 false
type Transfer struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransferNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transfer_no"`
	TransactionID    int64           `gorm:"index;not null" json:"transaction_id"`
	PayeeType        string          `gorm:"type:varchar(20);not null" json:"payee_type"`
	PayeeID          int64           `gorm:"index;not null" json:"payee_id"`
	StripeAccountID  string          `gorm:"type:varchar(64);not null" json:"stripe_account_id"`
	GrossAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"gross_amount"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"commission_amount"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_amount"`
	Currency         string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status           string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	StripeTransferID string          `gorm:"type:varchar(128)" json:"stripe_transfer_id"`
	RetryCount       int             `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries       int             `gorm:"not null" json:"max_retries"`
	LastError        string          `gorm:"type:varchar(512)" json:"last_error"`
	NextRetryAt      *time.Time      `gorm:"index" json:"next_retry_at"` // 退避调度时间，为空表示立即可执行
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transfer) TableName() string {
	return "transfer"
}

// CanRetry 是否还允许发起重试
// 人工触发与定时任务都必须先过这一道闸，避免两条路径逻辑分叉
func (t *Transfer) CanRetry() bool {
	if t.Status != TransferStatusPending && t.Status != TransferStatusRetrying {
		return false
	}
	return t.RetryCount < t.MaxRetries
}
