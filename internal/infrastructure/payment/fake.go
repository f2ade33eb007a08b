package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FakeGateway 内存版网关，供单测与本地联调使用
// 按需预置意图状态与转账失败次数，行为与真实网关的结果结构一致
type FakeGateway struct {
	mu sync.Mutex

	intentSeq    int
	intents      map[string]string // intentID -> status
	transferSeq  int
	TransferFail int // 前 N 次转账调用返回失败
	TransferErr  bool
	ConfirmCalls int
	TransferCall int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{intents: make(map[string]string)}
}

// SetIntentStatus 预置支付意图状态
func (g *FakeGateway) SetIntentStatus(intentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID] = status
}

func (g *FakeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*IntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentSeq++
	intentID := fmt.Sprintf("pi_fake_%d", g.intentSeq)
	g.intents[intentID] = IntentStatusRequiresAction
	return &IntentResult{
		Success:      true,
		IntentID:     intentID,
		ClientSecret: intentID + "_secret",
		Status:       IntentStatusRequiresAction,
	}, nil
}

func (g *FakeGateway) ConfirmIntent(ctx context.Context, intentID string) (*IntentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ConfirmCalls++
	status, ok := g.intents[intentID]
	if !ok {
		return &IntentResult{Success: false, IntentID: intentID, ErrorMessage: "no such payment_intent"}, nil
	}
	return &IntentResult{
		Success:  status == IntentStatusSucceeded,
		IntentID: intentID,
		Status:   status,
	}, nil
}

func (g *FakeGateway) Refund(ctx context.Context, intentID string, amount decimal.Decimal) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.intents[intentID]; !ok {
		return &RefundResult{Success: false, ErrorMessage: "no such payment_intent"}, nil
	}
	return &RefundResult{Success: true, RefundID: "re_fake_" + intentID}, nil
}

func (g *FakeGateway) CreateTransfer(ctx context.Context, destinationAccount string, amount decimal.Decimal, currency string) (*TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.TransferCall++
	if g.TransferErr {
		return nil, fmt.Errorf("调用支付网关失败: 网络超时")
	}
	if g.TransferFail > 0 {
		g.TransferFail--
		return &TransferResult{Success: false, ErrorMessage: "insufficient platform balance"}, nil
	}
	g.transferSeq++
	return &TransferResult{Success: true, TransferID: fmt.Sprintf("tr_fake_%d", g.transferSeq)}, nil
}

func (g *FakeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	return signatureHeader != ""
}
