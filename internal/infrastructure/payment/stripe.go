package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"certmarket/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// webhook 时间戳容忍窗口，防止重放
const webhookTolerance = 5 * time.Minute

// StripeGateway 基于 Stripe REST API 的网关实现
// 表单编码请求 + Bearer 鉴权，金额一律按最小货币单位（分）传输
type StripeGateway struct {
	client        *resty.Client
	webhookSecret string
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type stripeTransfer struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewStripeGateway 创建 Stripe 网关客户端
func NewStripeGateway(cfg *config.StripeConfig) *StripeGateway {
	client := resty.New().
		SetBaseURL(cfg.APIBase).
		SetAuthToken(cfg.APIKey).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &StripeGateway{
		client:        client,
		webhookSecret: cfg.WebhookSecret,
	}
}

// toMinorUnit 金额转最小货币单位
func toMinorUnit(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).String()
}

// CreateIntent 创建支付意图
func (g *StripeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*IntentResult, error) {
	form := map[string]string{
		"amount":   toMinorUnit(amount),
		"currency": currency,
	}
	for k, v := range metadata {
		form[fmt.Sprintf("metadata[%s]", k)] = v
	}

	var intent stripeIntent
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(form).
		SetResult(&intent).
		SetError(&intent).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, fmt.Errorf("调用支付网关失败: %w", err)
	}

	if resp.IsError() || intent.Error != nil {
		msg := resp.Status()
		if intent.Error != nil {
			msg = intent.Error.Message
		}
		return &IntentResult{Success: false, ErrorMessage: msg}, nil
	}

	return &IntentResult{
		Success:      true,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
	}, nil
}

// ConfirmIntent 回查支付意图状态
func (g *StripeGateway) ConfirmIntent(ctx context.Context, intentID string) (*IntentResult, error) {
	var intent stripeIntent
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&intent).
		SetError(&intent).
		Get("/v1/payment_intents/" + intentID)
	if err != nil {
		return nil, fmt.Errorf("调用支付网关失败: %w", err)
	}

	if resp.IsError() || intent.Error != nil {
		msg := resp.Status()
		if intent.Error != nil {
			msg = intent.Error.Message
		}
		return &IntentResult{Success: false, IntentID: intentID, ErrorMessage: msg}, nil
	}

	return &IntentResult{
		Success:  intent.Status == IntentStatusSucceeded,
		IntentID: intent.ID,
		Status:   intent.Status,
	}, nil
}

// Refund 发起退款
func (g *StripeGateway) Refund(ctx context.Context, intentID string, amount decimal.Decimal) (*RefundResult, error) {
	form := map[string]string{
		"payment_intent": intentID,
	}
	if amount.IsPositive() {
		form["amount"] = toMinorUnit(amount)
	}

	var refund stripeRefund
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(form).
		SetResult(&refund).
		SetError(&refund).
		Post("/v1/refunds")
	if err != nil {
		return nil, fmt.Errorf("调用支付网关失败: %w", err)
	}

	if resp.IsError() || refund.Error != nil {
		msg := resp.Status()
		if refund.Error != nil {
			msg = refund.Error.Message
		}
		return &RefundResult{Success: false, ErrorMessage: msg}, nil
	}

	return &RefundResult{Success: true, RefundID: refund.ID}, nil
}

// CreateTransfer 向关联账户转账
func (g *StripeGateway) CreateTransfer(ctx context.Context, destinationAccount string, amount decimal.Decimal, currency string) (*TransferResult, error) {
	var transfer stripeTransfer
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(map[string]string{
			"amount":      toMinorUnit(amount),
			"currency":    currency,
			"destination": destinationAccount,
		}).
		SetResult(&transfer).
		SetError(&transfer).
		Post("/v1/transfers")
	if err != nil {
		return nil, fmt.Errorf("调用支付网关失败: %w", err)
	}

	if resp.IsError() || transfer.Error != nil {
		msg := resp.Status()
		if transfer.Error != nil {
			msg = transfer.Error.Message
		}
		return &TransferResult{Success: false, ErrorMessage: msg}, nil
	}

	return &TransferResult{Success: true, TransferID: transfer.ID}, nil
}

// VerifyWebhookSignature 校验回调签名
//
// 签名头格式：t=<unix时间戳>,v1=<hex(hmac-sha256(secret, "t.payload"))>
// 时间戳超出容忍窗口视为重放，直接拒绝
func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(tsInt, 0)); d > webhookTolerance || d < -webhookTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// SignWebhookPayload 按网关的签名方案生成签名头（测试与本地联调使用）
func SignWebhookPayload(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
