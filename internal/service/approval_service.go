package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/infrastructure/lock"
	"certmarket/internal/model"
	"certmarket/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrBatchNotManual      = errors.New("批次不是线下付款，无需人工审核")
	ErrBatchNotPending     = errors.New("批次不在待审核状态")
	ErrRejectReasonMissing = errors.New("驳回必须填写原因")
)

// 金额比对容差，吸收线下转账的分位尾差
var amountTolerance = decimal.NewFromFloat(0.01)

// AmountMismatchError 审核员确认的到账金额与应付金额不符
// 携带两边金额，前端直接展示给审核员
type AmountMismatchError struct {
	Expected decimal.Decimal `json:"expected"`
	Provided decimal.Decimal `json:"provided"`
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("到账金额与应付金额不符: 应付=%s, 实到=%s", e.Expected.String(), e.Provided.String())
}

// ApprovalResult 审核结果
type ApprovalResult struct {
	BatchID       int64  `json:"batch_id"`
	BatchNo       string `json:"batch_no"`
	PaymentStatus string `json:"payment_status"`
	Message       string `json:"message,omitempty"`
}

// ApprovalService 线下付款人工审核
//
// 【关键点】审核通过与信用卡支付成功最终落到同一条完成路径
// （铸码、交易流转、折扣消耗、台账、通知），审核只是多了一道
// 金额核对和人工落章
type ApprovalService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	batchRepo   *repository.BatchRepository
	partyRepo   *repository.PartyRepository
	transRepo   *repository.TransactionRepository
	outboxRepo  *repository.OutboxRepository
	purchaseSvc *PurchaseService
}

func NewApprovalService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, purchaseSvc *PurchaseService) *ApprovalService {
	return &ApprovalService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		batchRepo:   repository.NewBatchRepository(db),
		partyRepo:   repository.NewPartyRepository(db),
		transRepo:   repository.NewTransactionRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		purchaseSvc: purchaseSvc,
	}
}

// Approve 审核通过
// 校验到账金额与应付金额一致后铸码交付；
// 金额不符返回 AmountMismatchError，批次保持待审核原样
func (s *ApprovalService) Approve(ctx context.Context, batchID, reviewerID int64, confirmedAmount decimal.Decimal) (*ApprovalResult, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if err := s.checkReviewable(batch); err != nil {
		return nil, err
	}

	// 金额核对在加锁前做，不符的请求不值得排队
	if confirmedAmount.Sub(batch.FinalAmount).Abs().GreaterThan(amountTolerance) {
		return nil, &AmountMismatchError{Expected: batch.FinalAmount, Provided: confirmedAmount}
	}

	if s.redisClient != nil {
		approvalLock := lock.NewBatchApprovalLock(s.redisClient, batch.ID, uuid.NewString())
		if err := approvalLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("批次正在被审核: %w", err)
		}
		defer approvalLock.Unlock(ctx)
	}

	acc, err := s.partyRepo.GetACC(ctx, batch.AccID)
	if err != nil {
		return nil, err
	}

	var discount *model.DiscountCode
	if batch.DiscountCodeID != nil {
		discount, err = repository.NewDiscountRepository(s.db).GetByID(ctx, *batch.DiscountCodeID)
		if err != nil {
			return nil, err
		}
	}

	trans, err := s.transRepo.GetByID(ctx, batch.TransactionID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 先落审核章，条件更新挡住并发审批和重复提交
		if err := s.batchRepo.MarkReviewed(ctx, tx, batch.ID, model.BatchStatusPending, model.BatchStatusApproved, reviewerID, ""); err != nil {
			return err
		}

		if _, err := s.purchaseSvc.codeRepo.MintBatchCodes(ctx, tx, batch, discount != nil, s.cfg.Business.CodeMintMaxAttempts); err != nil {
			return fmt.Errorf("铸造证书码失败: %w", err)
		}

		if err := s.transRepo.UpdateStatus(ctx, tx, trans.ID, model.TransactionStatusPending, model.TransactionStatusCompleted); err != nil {
			return fmt.Errorf("更新交易状态失败: %w", err)
		}
		trans.Amount = batch.FinalAmount

		if discount != nil {
			if err := s.purchaseSvc.discountSvc.Consume(ctx, tx, discount); err != nil {
				return fmt.Errorf("消耗折扣码失败: %w", err)
			}
		}

		if _, err := s.purchaseSvc.settlementSvc.WriteLedgerEntry(ctx, tx, trans, acc, batch.TrainingCenterID); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":       model.EventManualPaymentApproved,
			"batch_id":    batch.ID,
			"batch_no":    batch.BatchNo,
			"tc_id":       batch.TrainingCenterID,
			"reviewer_id": reviewerID,
			"quantity":    batch.Quantity,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: batch.BatchNo,
			Topic:      s.cfg.Kafka.Topic.Notification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("批次审核通过: batchNo=%s, reviewerID=%d, 数量=%d",
		batch.BatchNo, reviewerID, batch.Quantity)

	return &ApprovalResult{
		BatchID:       batch.ID,
		BatchNo:       batch.BatchNo,
		PaymentStatus: model.BatchStatusApproved,
		Message:       "审核通过，证书码已发放",
	}, nil
}

// Reject 驳回
// 不铸码不写台账；批次带上驳回原因，交易置失败
func (s *ApprovalService) Reject(ctx context.Context, batchID, reviewerID int64, reason string) (*ApprovalResult, error) {
	if reason == "" {
		return nil, ErrRejectReasonMissing
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if err := s.checkReviewable(batch); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.MarkReviewed(ctx, tx, batch.ID, model.BatchStatusPending, model.BatchStatusRejected, reviewerID, reason); err != nil {
			return err
		}

		if err := s.transRepo.UpdateStatus(ctx, tx, batch.TransactionID, model.TransactionStatusPending, model.TransactionStatusFailed); err != nil {
			return fmt.Errorf("更新交易状态失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":       model.EventManualPaymentRejected,
			"batch_id":    batch.ID,
			"batch_no":    batch.BatchNo,
			"tc_id":       batch.TrainingCenterID,
			"reviewer_id": reviewerID,
			"reason":      reason,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: batch.BatchNo,
			Topic:      s.cfg.Kafka.Topic.Notification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("批次已驳回: batchNo=%s, reviewerID=%d, 原因=%s", batch.BatchNo, reviewerID, reason)

	return &ApprovalResult{
		BatchID:       batch.ID,
		BatchNo:       batch.BatchNo,
		PaymentStatus: model.BatchStatusRejected,
		Message:       "批次已驳回",
	}, nil
}

// ListPending 认证机构待审核队列
func (s *ApprovalService) ListPending(ctx context.Context, accID int64, page, pageSize int) ([]*model.CodeBatch, int64, error) {
	return s.batchRepo.ListPendingManualByACC(ctx, accID, page, pageSize)
}

func (s *ApprovalService) checkReviewable(batch *model.CodeBatch) error {
	if batch.PaymentMethod != model.PaymentMethodManual {
		return ErrBatchNotManual
	}
	if batch.PaymentStatus != model.BatchStatusPending {
		return ErrBatchNotPending
	}
	return nil
}
