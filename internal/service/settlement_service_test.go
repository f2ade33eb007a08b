package service

import (
	"context"
	"testing"
	"time"

	"certmarket/internal/model"
	"certmarket/pkg/idgen"

	"github.com/shopspring/decimal"
)

func TestSplitCommission(t *testing.T) {
	cases := []struct {
		name      string
		amount    string
		pct       string
		wantGroup string
		wantAcc   string
	}{
		{name: "整除", amount: "800.00", pct: "20", wantGroup: "160.00", wantAcc: "640.00"},
		{name: "四舍五入", amount: "99.99", pct: "33.33", wantGroup: "33.33", wantAcc: "66.66"},
		{name: "进位", amount: "10.05", pct: "12.5", wantGroup: "1.26", wantAcc: "8.79"},
		{name: "零抽成", amount: "500.00", pct: "0", wantGroup: "0.00", wantAcc: "500.00"},
		{name: "全额抽成", amount: "500.00", pct: "100", wantGroup: "500.00", wantAcc: "0.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			split := SplitCommission(amount, decimal.RequireFromString(tc.pct))

			if !split.GroupAmount.Equal(decimal.RequireFromString(tc.wantGroup)) {
				t.Fatalf("平台分成 = %s, 期望 %s", split.GroupAmount, tc.wantGroup)
			}
			if !split.AccAmount.Equal(decimal.RequireFromString(tc.wantAcc)) {
				t.Fatalf("机构分成 = %s, 期望 %s", split.AccAmount, tc.wantAcc)
			}
			if !split.GroupAmount.Add(split.AccAmount).Equal(amount) {
				t.Fatalf("分成之和 %s != 交易金额 %s", split.GroupAmount.Add(split.AccAmount), amount)
			}
		})
	}
}

// 任意金额与比例下，两边分成之和都必须精确等于交易金额
func TestSplitCommissionSumInvariant(t *testing.T) {
	amounts := []string{"0.01", "0.03", "1.00", "33.33", "99.99", "1234.56", "80000.00"}
	pcts := []string{"0", "1", "7.5", "12.34", "20", "33.33", "50", "99.99", "100"}

	for _, a := range amounts {
		for _, p := range pcts {
			amount := decimal.RequireFromString(a)
			split := SplitCommission(amount, decimal.RequireFromString(p))
			if !split.GroupAmount.Add(split.AccAmount).Equal(amount) {
				t.Fatalf("amount=%s pct=%s: 分成之和 %s 不等于交易金额",
					a, p, split.GroupAmount.Add(split.AccAmount))
			}
			if split.GroupAmount.IsNegative() || split.AccAmount.IsNegative() {
				t.Fatalf("amount=%s pct=%s: 出现负数分成", a, p)
			}
		}
	}
}

func TestSettleMonth(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	acc, tc := seedParties(t, db)
	svc := NewSettlementService(db, cfg)
	ctx := context.Background()

	// 本月两笔待结算台账（800 和 200），外加一笔已结算的不应重复计入
	mkEntry := func(amount string, status string) {
		trans := &model.Transaction{
			TransactionNo:   idgen.GenerateTransactionNo(),
			TransactionType: model.TransactionTypeCodePurchase,
			PayerType:       model.PartyTypeTrainingCenter,
			PayerID:         tc.ID,
			PayeeType:       model.PartyTypeGroup,
			Amount:          decimal.RequireFromString(amount),
			Currency:        "usd",
			Status:          model.TransactionStatusCompleted,
		}
		if err := db.Create(trans).Error; err != nil {
			t.Fatalf("创建交易失败: %v", err)
		}
		split := SplitCommission(trans.Amount, acc.CommissionPercentage)
		entry := &model.CommissionLedger{
			TransactionID:             trans.ID,
			AccID:                     acc.ID,
			GroupCommissionAmount:     split.GroupAmount,
			GroupCommissionPercentage: acc.CommissionPercentage,
			AccCommissionAmount:       split.AccAmount,
			AccCommissionPercentage:   decimal.NewFromInt(80),
			SettlementStatus:          status,
		}
		if err := db.Create(entry).Error; err != nil {
			t.Fatalf("创建台账失败: %v", err)
		}
	}
	mkEntry("800.00", model.SettlementStatusPending)
	mkEntry("200.00", model.SettlementStatusPending)
	mkEntry("500.00", model.SettlementStatusSettled)

	now := time.Now().UTC()
	result, err := svc.SettleMonth(ctx, acc.ID, now.Year(), now.Month(), 1)
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if result.EntryCount != 2 {
		t.Fatalf("结算条目 = %d, 期望 2", result.EntryCount)
	}
	// 1000 总额，20% 抽成，应付机构 800
	if !result.PayoutAmount.Equal(decimal.RequireFromString("800.00")) {
		t.Fatalf("应付金额 = %s, 期望 800.00", result.PayoutAmount)
	}
	if !result.GroupAmount.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("平台留存 = %s, 期望 200.00", result.GroupAmount)
	}

	// 生成了待执行的出账转账单
	var transfer model.Transfer
	if err := db.Where("id = ?", result.TransferID).First(&transfer).Error; err != nil {
		t.Fatalf("查询转账单失败: %v", err)
	}
	if transfer.Status != model.TransferStatusPending {
		t.Fatalf("转账单状态 = %s, 期望 PENDING", transfer.Status)
	}
	if !transfer.NetAmount.Equal(result.PayoutAmount) {
		t.Fatalf("转账金额 = %s, 期望 %s", transfer.NetAmount, result.PayoutAmount)
	}
	if transfer.StripeAccountID != acc.StripeAccountID {
		t.Fatalf("收款账户 = %s, 期望 %s", transfer.StripeAccountID, acc.StripeAccountID)
	}

	// 重复结算同一个月是空操作
	again, err := svc.SettleMonth(ctx, acc.ID, now.Year(), now.Month(), 1)
	if err != nil {
		t.Fatalf("重复结算失败: %v", err)
	}
	if again.EntryCount != 0 {
		t.Fatalf("重复结算条目 = %d, 期望 0", again.EntryCount)
	}

	var transferCount int64
	db.Model(&model.Transfer{}).Count(&transferCount)
	if transferCount != 1 {
		t.Fatalf("转账单数量 = %d, 期望 1", transferCount)
	}
}

func TestSettleMonthNoEntries(t *testing.T) {
	db := newTestDB(t)
	acc, _ := seedParties(t, db)
	svc := NewSettlementService(db, newTestConfig())

	result, err := svc.SettleMonth(context.Background(), acc.ID, 2026, time.January, 1)
	if err != nil {
		t.Fatalf("空月结算失败: %v", err)
	}
	if result.EntryCount != 0 || result.TransferID != 0 {
		t.Fatalf("空月结算不应产生条目或转账单: %+v", result)
	}
}
