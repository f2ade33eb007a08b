package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"certmarket/internal/infrastructure/payment"
	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/pkg/idgen"

	"github.com/shopspring/decimal"
)

func newPurchaseEnv(t *testing.T) (*PurchaseService, *payment.FakeGateway, *model.AccreditationBody, *model.TrainingCenter) {
	t.Helper()
	db := newTestDB(t)
	gateway := payment.NewFakeGateway()
	acc, tc := seedParties(t, db)
	seedPricing(t, db, 1, acc.ID)
	svc := NewPurchaseService(db, nil, newTestConfig(), gateway)
	return svc, gateway, acc, tc
}

func TestCalculatePrice(t *testing.T) {
	svc, _, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()
	now := time.Now()

	seedDiscount(t, svc.db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "SAVE20",
		DiscountType:       model.DiscountTypeTimeLimited,
		DiscountPercentage: decimal.NewFromInt(20),
		StartDate:          timePtr(now.Add(-time.Hour)),
		EndDate:            timePtr(now.Add(time.Hour)),
	})

	validation, err := svc.ValidatePurchaseRequest(ctx, tc.ID, acc.ID, 1, now)
	if err != nil {
		t.Fatalf("前置校验失败: %v", err)
	}

	// 10 个 x 100，八折后 800；平台 20% 抽成 160
	calc, err := svc.CalculatePrice(ctx, validation, 10, "SAVE20", 1, now)
	if err != nil {
		t.Fatalf("价格计算失败: %v", err)
	}
	if !calc.TotalAmount.Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("总额 = %s, 期望 1000.00", calc.TotalAmount)
	}
	if !calc.DiscountAmount.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("折扣 = %s, 期望 200.00", calc.DiscountAmount)
	}
	if !calc.FinalAmount.Equal(decimal.RequireFromString("800.00")) {
		t.Fatalf("实付 = %s, 期望 800.00", calc.FinalAmount)
	}
	if !calc.CommissionAmount.Equal(decimal.RequireFromString("160.00")) {
		t.Fatalf("平台分成 = %s, 期望 160.00", calc.CommissionAmount)
	}
	if !calc.ProviderAmount.Equal(decimal.RequireFromString("640.00")) {
		t.Fatalf("机构分成 = %s, 期望 640.00", calc.ProviderAmount)
	}

	// 无效折扣码是硬错误，不会按原价静默继续
	var discountErr *DiscountInvalidError
	if _, err := svc.CalculatePrice(ctx, validation, 10, "NOPE", 1, now); !errors.As(err, &discountErr) {
		t.Fatalf("期望 DiscountInvalidError, 实际 %v", err)
	} else if discountErr.Reason != DiscountReasonNotFound {
		t.Fatalf("reason = %s, 期望 not_found", discountErr.Reason)
	}
}

func TestValidatePurchaseRequest(t *testing.T) {
	svc, _, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.ValidatePurchaseRequest(ctx, tc.ID, acc.ID, 1, now); err != nil {
		t.Fatalf("合法请求校验失败: %v", err)
	}

	// 未授权的机构
	other := &model.AccreditationBody{
		Name:                 "另一机构",
		Status:               model.PartyStatusActive,
		CommissionPercentage: decimal.NewFromInt(10),
	}
	if err := svc.db.Create(other).Error; err != nil {
		t.Fatalf("创建机构失败: %v", err)
	}
	if _, err := svc.ValidatePurchaseRequest(ctx, tc.ID, other.ID, 1, now); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("期望 ErrNotAuthorized, 实际 %v", err)
	}

	// 停用的机构
	svc.db.Model(acc).Update("status", model.PartyStatusInactive)
	if _, err := svc.ValidatePurchaseRequest(ctx, tc.ID, acc.ID, 1, now); !errors.Is(err, ErrACCInactive) {
		t.Fatalf("期望 ErrACCInactive, 实际 %v", err)
	}
}

func TestCardPurchase(t *testing.T) {
	svc, gateway, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()
	now := time.Now()

	seedDiscount(t, svc.db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "SAVE20",
		DiscountType:       model.DiscountTypeTimeLimited,
		DiscountPercentage: decimal.NewFromInt(20),
		StartDate:          timePtr(now.Add(-time.Hour)),
		EndDate:            timePtr(now.Add(time.Hour)),
	})

	intent, _, err := svc.CreatePaymentIntent(ctx, &PurchaseRequest{
		RequestID:        "req-card-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         10,
		DiscountCode:     "SAVE20",
	})
	if err != nil {
		t.Fatalf("创建支付意图失败: %v", err)
	}
	gateway.SetIntentStatus(intent.IntentID, payment.IntentStatusSucceeded)

	req := &PurchaseRequest{
		RequestID:        "req-card-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         10,
		DiscountCode:     "SAVE20",
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentIntentID:  intent.IntentID,
	}
	result, err := svc.ProcessPurchase(ctx, req)
	if err != nil {
		t.Fatalf("购买失败: %v", err)
	}
	if result.PaymentStatus != model.BatchStatusCompleted {
		t.Fatalf("批次状态 = %s, 期望 COMPLETED", result.PaymentStatus)
	}
	if !result.FinalAmount.Equal(decimal.RequireFromString("800.00")) {
		t.Fatalf("实付 = %s, 期望 800.00", result.FinalAmount)
	}

	// 恰好铸造 10 个码，码全局唯一
	codes, err := svc.codeRepo.ListByBatch(ctx, result.BatchID)
	if err != nil {
		t.Fatalf("查询证书码失败: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("证书码数量 = %d, 期望 10", len(codes))
	}
	seen := make(map[string]bool)
	for _, code := range codes {
		if seen[code.Code] {
			t.Fatalf("证书码重复: %s", code.Code)
		}
		seen[code.Code] = true
		if code.Status != model.CodeStatusAvailable {
			t.Fatalf("码状态 = %s, 期望 AVAILABLE", code.Status)
		}
		if !code.PurchasedPrice.Equal(decimal.RequireFromString("80.00")) {
			t.Fatalf("折后单价 = %s, 期望 80.00", code.PurchasedPrice)
		}
		if !code.DiscountApplied {
			t.Fatalf("码未标记折扣")
		}
	}

	// 交易完成，台账分成 160/640 且之和等于实付
	trans, err := svc.transRepo.GetByID(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("查询交易失败: %v", err)
	}
	if trans.Status != model.TransactionStatusCompleted {
		t.Fatalf("交易状态 = %s, 期望 COMPLETED", trans.Status)
	}
	if trans.CompletedAt == nil {
		t.Fatalf("completed_at 未落")
	}

	var entry model.CommissionLedger
	if err := svc.db.Where("transaction_id = ?", trans.ID).First(&entry).Error; err != nil {
		t.Fatalf("查询台账失败: %v", err)
	}
	if !entry.GroupCommissionAmount.Equal(decimal.RequireFromString("160.00")) {
		t.Fatalf("平台分成 = %s, 期望 160.00", entry.GroupCommissionAmount)
	}
	if !entry.AccCommissionAmount.Equal(decimal.RequireFromString("640.00")) {
		t.Fatalf("机构分成 = %s, 期望 640.00", entry.AccCommissionAmount)
	}

	// 折扣使用计数 +1（按批次计一次，不按码数计）
	var dc model.DiscountCode
	svc.db.Where("code = ?", "SAVE20").First(&dc)
	if dc.UsedQuantity != 1 {
		t.Fatalf("折扣使用次数 = %d, 期望 1", dc.UsedQuantity)
	}

	// 通知消息已入发件箱
	var outboxCount int64
	svc.db.Model(&model.OutboxMessage{}).Count(&outboxCount)
	if outboxCount != 1 {
		t.Fatalf("发件箱消息数 = %d, 期望 1", outboxCount)
	}

	// 相同 request_id 幂等返回既有批次，不重复铸码
	again, err := svc.ProcessPurchase(ctx, req)
	if err != nil {
		t.Fatalf("幂等重放失败: %v", err)
	}
	if again.BatchID != result.BatchID {
		t.Fatalf("幂等重放返回了新批次: %d != %d", again.BatchID, result.BatchID)
	}
	count, _ := svc.codeRepo.CountByBatch(ctx, result.BatchID)
	if count != 10 {
		t.Fatalf("幂等重放后码数 = %d, 期望 10", count)
	}
}

// 网关侧支付未成功时拒绝落库，不留下任何批次
func TestCardPurchaseVerificationFailed(t *testing.T) {
	svc, gateway, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()

	gateway.SetIntentStatus("pi_pending", payment.IntentStatusProcessing)

	_, err := svc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:        "req-fail-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         2,
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentIntentID:  "pi_pending",
	})
	if !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("期望 ErrPaymentVerificationFailed, 实际 %v", err)
	}

	var batchCount int64
	svc.db.Model(&model.CodeBatch{}).Count(&batchCount)
	if batchCount != 0 {
		t.Fatalf("验证失败不应留下批次, 实际 %d 个", batchCount)
	}
}

func TestManualPurchaseCreatesPendingBatch(t *testing.T) {
	svc, _, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()

	amount := decimal.RequireFromString("500.00")
	result, err := svc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:         "req-manual-1",
		TrainingCenterID:  tc.ID,
		AccID:             acc.ID,
		CourseID:          1,
		Quantity:          5,
		PaymentMethod:     model.PaymentMethodManual,
		PaymentReceiptURL: "https://receipts.example.com/r1.pdf",
		PaymentAmount:     &amount,
	})
	if err != nil {
		t.Fatalf("线下购买失败: %v", err)
	}
	if result.PaymentStatus != model.BatchStatusPending {
		t.Fatalf("批次状态 = %s, 期望 PENDING", result.PaymentStatus)
	}

	// 审核前不铸码
	count, _ := svc.codeRepo.CountByBatch(ctx, result.BatchID)
	if count != 0 {
		t.Fatalf("审核前码数 = %d, 期望 0", count)
	}

	trans, err := svc.transRepo.GetByID(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("查询交易失败: %v", err)
	}
	if trans.Status != model.TransactionStatusPending {
		t.Fatalf("交易状态 = %s, 期望 PENDING", trans.Status)
	}

	// 缺少凭证直接拒绝
	_, err = svc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:        "req-manual-2",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         5,
		PaymentMethod:    model.PaymentMethodManual,
	})
	if !errors.Is(err, ErrReceiptRequired) {
		t.Fatalf("期望 ErrReceiptRequired, 实际 %v", err)
	}

	// 空 intent_id 不会误中 payment_intent_id 为空串的线下批次
	if _, err := svc.ConfirmCardPayment(ctx, ""); !errors.Is(err, repository.ErrBatchNotFound) {
		t.Fatalf("空 intent_id 期望 ErrBatchNotFound, 实际 %v", err)
	}
}

// 重复确认同一支付意图必须是无副作用的空操作
func TestConfirmCardPaymentIdempotent(t *testing.T) {
	svc, gateway, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()

	intent, _, err := svc.CreatePaymentIntent(ctx, &PurchaseRequest{
		RequestID:        "req-confirm-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         4,
	})
	if err != nil {
		t.Fatalf("创建支付意图失败: %v", err)
	}
	gateway.SetIntentStatus(intent.IntentID, payment.IntentStatusSucceeded)

	result, err := svc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:        "req-confirm-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         4,
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentIntentID:  intent.IntentID,
	})
	if err != nil {
		t.Fatalf("购买失败: %v", err)
	}

	// webhook 与客户端确认可能晚于同步完成路径到达，连发两次
	for i := 0; i < 2; i++ {
		confirm, err := svc.ConfirmCardPayment(ctx, intent.IntentID)
		if err != nil {
			t.Fatalf("第%d次确认出错: %v", i+1, err)
		}
		if confirm.BatchID != result.BatchID || confirm.PaymentStatus != model.BatchStatusCompleted {
			t.Fatalf("第%d次确认 batch=%d status=%s", i+1, confirm.BatchID, confirm.PaymentStatus)
		}
	}

	// 码数、台账、发件箱都保持首次完成时的样子
	count, _ := svc.codeRepo.CountByBatch(ctx, result.BatchID)
	if count != 4 {
		t.Fatalf("重复确认后码数 = %d, 期望 4", count)
	}
	var ledgerCount int64
	svc.db.Model(&model.CommissionLedger{}).Where("transaction_id = ?", result.TransactionID).Count(&ledgerCount)
	if ledgerCount != 1 {
		t.Fatalf("重复确认后台账行数 = %d, 期望 1", ledgerCount)
	}
	var outboxCount int64
	svc.db.Model(&model.OutboxMessage{}).Count(&outboxCount)
	if outboxCount != 1 {
		t.Fatalf("重复确认后发件箱消息数 = %d, 期望 1", outboxCount)
	}
}

// webhook 先于同步路径处理时，PENDING 的信用卡批次由确认入口补完
func TestConfirmCardPaymentCompletesPendingBatch(t *testing.T) {
	svc, gateway, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()

	gateway.SetIntentStatus("pi_webhook_1", payment.IntentStatusSucceeded)

	batch := &model.CodeBatch{
		BatchNo:          idgen.GenerateBatchNo(),
		RequestID:        "req-webhook-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         2,
		TotalAmount:      decimal.RequireFromString("200.00"),
		FinalAmount:      decimal.RequireFromString("200.00"),
		Currency:         "usd",
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentStatus:    model.BatchStatusPending,
		PaymentIntentID:  "pi_webhook_1",
	}
	if err := svc.batchRepo.Create(ctx, nil, batch); err != nil {
		t.Fatalf("创建批次失败: %v", err)
	}
	trans := &model.Transaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		TransactionType:      model.TransactionTypeCodePurchase,
		PayerType:            model.PartyTypeTrainingCenter,
		PayerID:              tc.ID,
		PayeeType:            model.PartyTypeGroup,
		Amount:               decimal.RequireFromString("200.00"),
		Currency:             "usd",
		PaymentMethod:        model.PaymentMethodCreditCard,
		GatewayTransactionID: "pi_webhook_1",
		Status:               model.TransactionStatusPending,
		ReferenceType:        model.ReferenceTypeCodeBatch,
		ReferenceID:          batch.ID,
	}
	if err := svc.transRepo.Create(ctx, nil, trans); err != nil {
		t.Fatalf("创建交易失败: %v", err)
	}
	if err := svc.batchRepo.SetTransactionID(ctx, nil, batch.ID, trans.ID); err != nil {
		t.Fatalf("关联交易失败: %v", err)
	}

	confirm, err := svc.ConfirmCardPayment(ctx, "pi_webhook_1")
	if err != nil {
		t.Fatalf("确认支付失败: %v", err)
	}
	if confirm.PaymentStatus != model.BatchStatusCompleted {
		t.Fatalf("批次状态 = %s, 期望 COMPLETED", confirm.PaymentStatus)
	}

	count, _ := svc.codeRepo.CountByBatch(ctx, batch.ID)
	if count != 2 {
		t.Fatalf("确认后码数 = %d, 期望 2", count)
	}
	fresh, _ := svc.transRepo.GetByID(ctx, trans.ID)
	if fresh.Status != model.TransactionStatusCompleted {
		t.Fatalf("交易状态 = %s, 期望 COMPLETED", fresh.Status)
	}

	// 同一回调重放不再铸码
	if _, err := svc.ConfirmCardPayment(ctx, "pi_webhook_1"); err != nil {
		t.Fatalf("重放确认出错: %v", err)
	}
	count, _ = svc.codeRepo.CountByBatch(ctx, batch.ID)
	if count != 2 {
		t.Fatalf("重放后码数 = %d, 期望 2", count)
	}
}

func TestRefundPurchase(t *testing.T) {
	svc, gateway, acc, tc := newPurchaseEnv(t)
	ctx := context.Background()

	intent, _, err := svc.CreatePaymentIntent(ctx, &PurchaseRequest{
		RequestID:        "req-refund-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         3,
	})
	if err != nil {
		t.Fatalf("创建支付意图失败: %v", err)
	}
	gateway.SetIntentStatus(intent.IntentID, payment.IntentStatusSucceeded)

	result, err := svc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:        "req-refund-1",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         3,
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentIntentID:  intent.IntentID,
	})
	if err != nil {
		t.Fatalf("购买失败: %v", err)
	}

	// 先用掉一个码，退款只作废剩余的
	codes, _ := svc.codeRepo.ListByBatch(ctx, result.BatchID)
	if err := svc.codeRepo.Use(ctx, codes[0].Code, 42); err != nil {
		t.Fatalf("使用证书码失败: %v", err)
	}

	if _, err := svc.RefundPurchase(ctx, result.BatchID, 7); err != nil {
		t.Fatalf("退款失败: %v", err)
	}

	trans, _ := svc.transRepo.GetByID(ctx, result.TransactionID)
	if trans.Status != model.TransactionStatusRefunded {
		t.Fatalf("交易状态 = %s, 期望 REFUNDED", trans.Status)
	}

	codes, _ = svc.codeRepo.ListByBatch(ctx, result.BatchID)
	var used, expired int
	for _, code := range codes {
		switch code.Status {
		case model.CodeStatusUsed:
			used++
		case model.CodeStatusExpired:
			expired++
		}
	}
	if used != 1 || expired != 2 {
		t.Fatalf("退款后 used=%d expired=%d, 期望 1/2", used, expired)
	}

	// 重复退款被状态机拒绝
	if _, err := svc.RefundPurchase(ctx, result.BatchID, 7); err == nil {
		t.Fatalf("重复退款应失败")
	}
}
