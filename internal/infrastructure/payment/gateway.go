package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 支付网关适配层
// ============================================================================
//
// 核心流程只依赖这里的接口，网关返回统一的成功/失败结构，
// payment intent 标识是不透明字符串，原样透传。

// 网关侧支付意图状态
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusRequiresAction = "requires_payment_method"
	IntentStatusProcessing     = "processing"
	IntentStatusCanceled       = "canceled"
)

// IntentResult 创建/确认支付意图的结果
type IntentResult struct {
	Success      bool   `json:"success"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// RefundResult 退款结果
type RefundResult struct {
	Success      bool   `json:"success"`
	RefundID     string `json:"refund_id"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TransferResult 向关联账户转账的结果
type TransferResult struct {
	Success      bool   `json:"success"`
	TransferID   string `json:"transfer_id"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Gateway 支付网关接口
type Gateway interface {
	// CreateIntent 创建支付意图，纯请求/响应，失败不产生任何本地副作用，可安全重试
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*IntentResult, error)

	// ConfirmIntent 查询支付意图的真实状态
	// 【关键点】绝不信任客户端声称的支付成功，落库前必须回查网关
	ConfirmIntent(ctx context.Context, intentID string) (*IntentResult, error)

	// Refund 对支付意图发起退款，amount 为零值时全额退款
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) (*RefundResult, error)

	// CreateTransfer 向收款方关联账户转账
	CreateTransfer(ctx context.Context, destinationAccount string, amount decimal.Decimal, currency string) (*TransferResult, error)

	// VerifyWebhookSignature 校验回调签名，验签不过的回调一律丢弃
	VerifyWebhookSignature(payload []byte, signatureHeader string) bool
}
