package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 通知事件类型（消息体里的 event 字段）
const (
	EventManualPaymentApproved = "manual_payment.approved"
	EventManualPaymentRejected = "manual_payment.rejected"
	EventCodePurchaseCompleted = "code_purchase.completed"
	EventPurchaseRefunded      = "code_purchase.refunded"
	EventSettlementCompleted   = "settlement.completed"
)

// OutboxMessage 事务发件箱
// 通知类消息与业务数据同事务落库，由后台任务异步投递到 Kafka，
// 投递失败绝不影响已提交的业务事务
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
