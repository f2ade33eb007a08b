package payment

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestVerifyWebhookSignature(t *testing.T) {
	g := &StripeGateway{webhookSecret: "whsec_test"}
	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	valid := SignWebhookPayload("whsec_test", payload, time.Now())

	cases := []struct {
		name    string
		payload []byte
		header  string
		want    bool
	}{
		{name: "合法签名", payload: payload, header: valid, want: true},
		{name: "空签名头", payload: payload, header: "", want: false},
		{name: "格式错误", payload: payload, header: "garbage", want: false},
		{name: "密钥不符", payload: payload, header: SignWebhookPayload("whsec_other", payload, time.Now()), want: false},
		{name: "载荷被篡改", payload: []byte(`{"tampered":true}`), header: valid, want: false},
		{name: "时间戳过期", payload: payload, header: SignWebhookPayload("whsec_test", payload, time.Now().Add(-10*time.Minute)), want: false},
		{name: "时间戳超前", payload: payload, header: SignWebhookPayload("whsec_test", payload, time.Now().Add(10*time.Minute)), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.VerifyWebhookSignature(tc.payload, tc.header); got != tc.want {
				t.Fatalf("VerifyWebhookSignature = %v, 期望 %v", got, tc.want)
			}
		})
	}
}

// 多个 v1 签名时任一匹配即通过（密钥轮换期间网关会带多个签名）
func TestVerifyWebhookSignatureMultipleV1(t *testing.T) {
	g := &StripeGateway{webhookSecret: "whsec_test"}
	payload := []byte(`{"id":"evt_1"}`)

	valid := SignWebhookPayload("whsec_test", payload, time.Now())
	stale := SignWebhookPayload("whsec_old", payload, time.Now())

	ts := strings.TrimPrefix(strings.SplitN(valid, ",", 2)[0], "t=")
	v1New := strings.TrimPrefix(strings.SplitN(valid, ",", 2)[1], "v1=")
	v1Old := strings.TrimPrefix(strings.SplitN(stale, ",", 2)[1], "v1=")

	// 旧密钥的签名拼在前面，任一匹配即通过
	header := fmt.Sprintf("t=%s,v1=%s,v1=%s", ts, v1Old, v1New)
	if !g.VerifyWebhookSignature(payload, header) {
		t.Fatalf("多签名头应通过校验")
	}
}
