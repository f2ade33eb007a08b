package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/infrastructure/lock"
	"certmarket/internal/infrastructure/payment"
	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrTransferNotRetryable = errors.New("转账单不可重试")

// TransferResult 一次转账执行的结果
type TransferExecResult struct {
	TransferID       int64  `json:"transfer_id"`
	TransferNo       string `json:"transfer_no"`
	Status           string `json:"status"`
	RetryCount       int    `json:"retry_count"`
	StripeTransferID string `json:"stripe_transfer_id,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// TransferService 出账转账执行与重试
//
// 【关键点】人工触发和定时任务共用 Execute 这一条路径：
// 1. CanRetry 不过闸的，不碰网关直接拒绝
// 2. 条件更新抢占 PROCESSING，两个执行方只放行一个
// 3. 失败按指数退避排期，额度耗尽进入 FAILED 终态
type TransferService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	gateway      payment.Gateway
	transferRepo *repository.TransferRepository
	transRepo    *repository.TransactionRepository
	partyRepo    *repository.PartyRepository
}

func NewTransferService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gateway payment.Gateway) *TransferService {
	return &TransferService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		gateway:      gateway,
		transferRepo: repository.NewTransferRepository(db),
		transRepo:    repository.NewTransactionRepository(db),
		partyRepo:    repository.NewPartyRepository(db),
	}
}

// CreateForTransaction 为一笔已有出账交易补建转账单
func (s *TransferService) CreateForTransaction(ctx context.Context, trans *model.Transaction, stripeAccountID string, commission model.CommissionLedger) (*model.Transfer, error) {
	transfer := &model.Transfer{
		TransferNo:       idgen.GenerateTransferNo(),
		TransactionID:    trans.ID,
		PayeeType:        trans.PayeeType,
		PayeeID:          trans.PayeeID,
		StripeAccountID:  stripeAccountID,
		GrossAmount:      commission.GroupCommissionAmount.Add(commission.AccCommissionAmount),
		CommissionAmount: commission.GroupCommissionAmount,
		NetAmount:        commission.AccCommissionAmount,
		Currency:         trans.Currency,
		Status:           model.TransferStatusPending,
		MaxRetries:       s.cfg.Business.MaxTransferRetries,
	}
	if err := s.transferRepo.Create(ctx, nil, transfer); err != nil {
		return nil, fmt.Errorf("创建转账单失败: %w", err)
	}
	return transfer, nil
}

// Retry 人工触发重试
// 终态或额度耗尽的转账单直接拒绝，不产生任何网关调用
func (s *TransferService) Retry(ctx context.Context, transferID, actorID int64) (*TransferExecResult, error) {
	transfer, err := s.transferRepo.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	if !transfer.CanRetry() {
		return nil, fmt.Errorf("%w: status=%s, retry_count=%d/%d",
			ErrTransferNotRetryable, transfer.Status, transfer.RetryCount, transfer.MaxRetries)
	}

	log.Printf("人工触发转账重试: transferNo=%s, actorID=%d", transfer.TransferNo, actorID)
	return s.Execute(ctx, transfer)
}

// Execute 执行一次转账尝试
func (s *TransferService) Execute(ctx context.Context, transfer *model.Transfer) (*TransferExecResult, error) {
	if s.redisClient != nil {
		transferLock := lock.NewTransferLock(s.redisClient, transfer.ID, uuid.NewString())
		ok, err := transferLock.TryLock(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, repository.ErrTransferNotClaimable
		}
		defer transferLock.Unlock(ctx)
	}

	// 抢占 PROCESSING，抢不到说明另一个执行方在跑
	if err := s.transferRepo.ClaimProcessing(ctx, transfer.ID); err != nil {
		return nil, err
	}

	result, err := s.gateway.CreateTransfer(ctx, transfer.StripeAccountID, transfer.NetAmount, transfer.Currency)
	if err != nil {
		return s.handleFailure(ctx, transfer, err.Error())
	}
	if !result.Success {
		return s.handleFailure(ctx, transfer, result.ErrorMessage)
	}

	if err := s.transferRepo.MarkCompleted(ctx, transfer.ID, result.TransferID); err != nil {
		return nil, fmt.Errorf("标记转账完成失败: %w", err)
	}

	// 关联的出账交易跟着完成；转账单才是执行状态的权威来源，
	// 这里失败只记日志不回滚
	if err := s.transRepo.UpdateStatus(ctx, nil, transfer.TransactionID, model.TransactionStatusPending, model.TransactionStatusCompleted); err != nil {
		log.Printf("更新出账交易状态失败: transferNo=%s, err=%v", transfer.TransferNo, err)
	}

	log.Printf("转账成功: transferNo=%s, 金额=%s, stripeTransferID=%s",
		transfer.TransferNo, transfer.NetAmount.String(), result.TransferID)

	return &TransferExecResult{
		TransferID:       transfer.ID,
		TransferNo:       transfer.TransferNo,
		Status:           model.TransferStatusCompleted,
		RetryCount:       transfer.RetryCount,
		StripeTransferID: result.TransferID,
	}, nil
}

// handleFailure 本次尝试失败：还有额度就按指数退避排期，否则进终态
func (s *TransferService) handleFailure(ctx context.Context, transfer *model.Transfer, lastError string) (*TransferExecResult, error) {
	nextCount := transfer.RetryCount + 1

	if nextCount >= transfer.MaxRetries {
		if err := s.transferRepo.MarkFailed(ctx, transfer.ID, lastError); err != nil {
			return nil, fmt.Errorf("标记转账失败失败: %w", err)
		}
		if err := s.transRepo.UpdateStatus(ctx, nil, transfer.TransactionID, model.TransactionStatusPending, model.TransactionStatusFailed); err != nil {
			log.Printf("更新出账交易状态失败: transferNo=%s, err=%v", transfer.TransferNo, err)
		}
		log.Printf("转账重试额度耗尽: transferNo=%s, 最后错误=%s", transfer.TransferNo, lastError)
		return &TransferExecResult{
			TransferID: transfer.ID,
			TransferNo: transfer.TransferNo,
			Status:     model.TransferStatusFailed,
			RetryCount: nextCount,
			LastError:  lastError,
		}, nil
	}

	nextRetryAt := time.Now().Add(s.backoff(transfer.RetryCount))
	if err := s.transferRepo.MarkRetrying(ctx, transfer.ID, lastError, nextRetryAt); err != nil {
		return nil, fmt.Errorf("标记转账重试失败: %w", err)
	}

	log.Printf("转账失败待重试: transferNo=%s, 第%d次, 下次=%s, 错误=%s",
		transfer.TransferNo, nextCount, nextRetryAt.Format(time.RFC3339), lastError)

	return &TransferExecResult{
		TransferID: transfer.ID,
		TransferNo: transfer.TransferNo,
		Status:     model.TransferStatusRetrying,
		RetryCount: nextCount,
		LastError:  lastError,
	}, nil
}

// backoff 指数退避：base * 2^retryCount，封顶 max
func (s *TransferService) backoff(retryCount int) time.Duration {
	base := time.Duration(s.cfg.Business.TransferRetryBaseMinutes) * time.Minute
	max := time.Duration(s.cfg.Business.TransferRetryMaxMinutes) * time.Minute

	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// GetTransfer 转账单详情
func (s *TransferService) GetTransfer(ctx context.Context, transferID int64) (*model.Transfer, error) {
	return s.transferRepo.GetByID(ctx, transferID)
}

// ListByPayee 收款方转账列表
func (s *TransferService) ListByPayee(ctx context.Context, payeeType string, payeeID int64, page, pageSize int) ([]*model.Transfer, int64, error) {
	return s.transferRepo.ListByPayee(ctx, payeeType, payeeID, page, pageSize)
}
