package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"certmarket/internal/infrastructure/payment"
	"certmarket/internal/model"
	"certmarket/internal/repository"

	"github.com/shopspring/decimal"
)

// 铺一个待审核的线下付款批次：10 个 x 100，八折实付 800
func seedManualBatch(t *testing.T, svc *PurchaseService, acc *model.AccreditationBody, tc *model.TrainingCenter, requestID string) *PurchaseResult {
	t.Helper()
	now := time.Now()

	seedDiscount(t, svc.db, &model.DiscountCode{
		AccID:              acc.ID,
		Code:               "MANUAL20-" + requestID,
		DiscountType:       model.DiscountTypeTimeLimited,
		DiscountPercentage: decimal.NewFromInt(20),
		StartDate:          timePtr(now.Add(-time.Hour)),
		EndDate:            timePtr(now.Add(time.Hour)),
	})

	claimed := decimal.RequireFromString("800.00")
	result, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		RequestID:         requestID,
		TrainingCenterID:  tc.ID,
		AccID:             acc.ID,
		CourseID:          1,
		Quantity:          10,
		DiscountCode:      "MANUAL20-" + requestID,
		PaymentMethod:     model.PaymentMethodManual,
		PaymentReceiptURL: "https://receipts.example.com/bank-slip.pdf",
		PaymentAmount:     &claimed,
	})
	if err != nil {
		t.Fatalf("创建线下批次失败: %v", err)
	}
	return result
}

func newApprovalEnv(t *testing.T) (*ApprovalService, *PurchaseService, *model.AccreditationBody, *model.TrainingCenter) {
	t.Helper()
	db := newTestDB(t)
	gateway := payment.NewFakeGateway()
	acc, tc := seedParties(t, db)
	seedPricing(t, db, 1, acc.ID)
	cfg := newTestConfig()
	purchaseSvc := NewPurchaseService(db, nil, cfg, gateway)
	approvalSvc := NewApprovalService(db, nil, cfg, purchaseSvc)
	return approvalSvc, purchaseSvc, acc, tc
}

func TestApproveBatch(t *testing.T) {
	approvalSvc, purchaseSvc, acc, tc := newApprovalEnv(t)
	ctx := context.Background()

	batch := seedManualBatch(t, purchaseSvc, acc, tc, "req-approve-1")

	result, err := approvalSvc.Approve(ctx, batch.BatchID, 9, decimal.RequireFromString("800.00"))
	if err != nil {
		t.Fatalf("审核通过失败: %v", err)
	}
	if result.PaymentStatus != model.BatchStatusApproved {
		t.Fatalf("批次状态 = %s, 期望 APPROVED", result.PaymentStatus)
	}

	// 审核通过后铸码交付
	count, _ := purchaseSvc.codeRepo.CountByBatch(ctx, batch.BatchID)
	if count != 10 {
		t.Fatalf("码数 = %d, 期望 10", count)
	}

	// 审核人与审核时间落章
	fresh, _ := purchaseSvc.batchRepo.GetByID(ctx, batch.BatchID)
	if fresh.VerifiedBy == nil || *fresh.VerifiedBy != 9 {
		t.Fatalf("verified_by 未落章: %v", fresh.VerifiedBy)
	}
	if fresh.VerifiedAt == nil {
		t.Fatalf("verified_at 未落章")
	}

	// 交易完成 + 台账分成之和等于实付
	trans, _ := purchaseSvc.transRepo.GetByID(ctx, batch.TransactionID)
	if trans.Status != model.TransactionStatusCompleted {
		t.Fatalf("交易状态 = %s, 期望 COMPLETED", trans.Status)
	}
	var entry model.CommissionLedger
	if err := purchaseSvc.db.Where("transaction_id = ?", trans.ID).First(&entry).Error; err != nil {
		t.Fatalf("查询台账失败: %v", err)
	}
	sum := entry.GroupCommissionAmount.Add(entry.AccCommissionAmount)
	if !sum.Equal(decimal.RequireFromString("800.00")) {
		t.Fatalf("分成之和 = %s, 期望 800.00", sum)
	}

	// 并发/重复审批：第二次必须观察到"已处理"，不重复铸码
	_, err = approvalSvc.Approve(ctx, batch.BatchID, 10, decimal.RequireFromString("800.00"))
	if !errors.Is(err, ErrBatchNotPending) && !errors.Is(err, repository.ErrBatchAlreadyProcessed) {
		t.Fatalf("重复审批期望已处理错误, 实际 %v", err)
	}
	count, _ = purchaseSvc.codeRepo.CountByBatch(ctx, batch.BatchID)
	if count != 10 {
		t.Fatalf("重复审批后码数 = %d, 期望 10", count)
	}
}

// 到账金额不符时拒绝并返回两边金额，批次保持待审核
func TestApproveAmountMismatch(t *testing.T) {
	approvalSvc, purchaseSvc, acc, tc := newApprovalEnv(t)
	ctx := context.Background()

	batch := seedManualBatch(t, purchaseSvc, acc, tc, "req-mismatch-1")

	_, err := approvalSvc.Approve(ctx, batch.BatchID, 9, decimal.RequireFromString("750.00"))
	var mismatch *AmountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("期望 AmountMismatchError, 实际 %v", err)
	}
	if !mismatch.Expected.Equal(decimal.RequireFromString("800.00")) {
		t.Fatalf("expected = %s, 期望 800.00", mismatch.Expected)
	}
	if !mismatch.Provided.Equal(decimal.RequireFromString("750.00")) {
		t.Fatalf("provided = %s, 期望 750.00", mismatch.Provided)
	}

	fresh, _ := purchaseSvc.batchRepo.GetByID(ctx, batch.BatchID)
	if fresh.PaymentStatus != model.BatchStatusPending {
		t.Fatalf("批次状态 = %s, 期望保持 PENDING", fresh.PaymentStatus)
	}
	count, _ := purchaseSvc.codeRepo.CountByBatch(ctx, batch.BatchID)
	if count != 0 {
		t.Fatalf("金额不符不应铸码, 实际 %d 个", count)
	}

	// 分位容差内放行
	if _, err := approvalSvc.Approve(ctx, batch.BatchID, 9, decimal.RequireFromString("800.01")); err != nil {
		t.Fatalf("容差内审批失败: %v", err)
	}
}

func TestRejectBatch(t *testing.T) {
	approvalSvc, purchaseSvc, acc, tc := newApprovalEnv(t)
	ctx := context.Background()

	batch := seedManualBatch(t, purchaseSvc, acc, tc, "req-reject-1")

	if _, err := approvalSvc.Reject(ctx, batch.BatchID, 9, ""); !errors.Is(err, ErrRejectReasonMissing) {
		t.Fatalf("无原因驳回应被拒绝, 实际 %v", err)
	}

	result, err := approvalSvc.Reject(ctx, batch.BatchID, 9, "凭证模糊无法核对")
	if err != nil {
		t.Fatalf("驳回失败: %v", err)
	}
	if result.PaymentStatus != model.BatchStatusRejected {
		t.Fatalf("批次状态 = %s, 期望 REJECTED", result.PaymentStatus)
	}

	fresh, _ := purchaseSvc.batchRepo.GetByID(ctx, batch.BatchID)
	if fresh.RejectionReason != "凭证模糊无法核对" {
		t.Fatalf("驳回原因 = %q", fresh.RejectionReason)
	}

	// 不铸码、交易置失败、不写台账
	count, _ := purchaseSvc.codeRepo.CountByBatch(ctx, batch.BatchID)
	if count != 0 {
		t.Fatalf("驳回不应铸码, 实际 %d 个", count)
	}
	trans, _ := purchaseSvc.transRepo.GetByID(ctx, batch.TransactionID)
	if trans.Status != model.TransactionStatusFailed {
		t.Fatalf("交易状态 = %s, 期望 FAILED", trans.Status)
	}
	var ledgerCount int64
	purchaseSvc.db.Model(&model.CommissionLedger{}).Count(&ledgerCount)
	if ledgerCount != 0 {
		t.Fatalf("驳回不应写台账, 实际 %d 条", ledgerCount)
	}

	// 驳回后不允许再审核通过
	_, err = approvalSvc.Approve(ctx, batch.BatchID, 9, decimal.RequireFromString("800.00"))
	if !errors.Is(err, ErrBatchNotPending) {
		t.Fatalf("终态批次审批期望 ErrBatchNotPending, 实际 %v", err)
	}
}

// 信用卡批次不进人工审核
func TestApproveRejectsCardBatch(t *testing.T) {
	approvalSvc, purchaseSvc, acc, tc := newApprovalEnv(t)
	ctx := context.Background()

	gateway := purchaseSvc.gateway.(*payment.FakeGateway)
	intent, _, err := purchaseSvc.CreatePaymentIntent(ctx, &PurchaseRequest{
		RequestID:        "req-card-approve",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         1,
	})
	if err != nil {
		t.Fatalf("创建支付意图失败: %v", err)
	}
	gateway.SetIntentStatus(intent.IntentID, payment.IntentStatusSucceeded)

	result, err := purchaseSvc.ProcessPurchase(ctx, &PurchaseRequest{
		RequestID:        "req-card-approve",
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		CourseID:         1,
		Quantity:         1,
		PaymentMethod:    model.PaymentMethodCreditCard,
		PaymentIntentID:  intent.IntentID,
	})
	if err != nil {
		t.Fatalf("购买失败: %v", err)
	}

	_, err = approvalSvc.Approve(ctx, result.BatchID, 9, decimal.RequireFromString("100.00"))
	if !errors.Is(err, ErrBatchNotManual) {
		t.Fatalf("期望 ErrBatchNotManual, 实际 %v", err)
	}
}
