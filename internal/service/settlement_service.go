package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionSplit 一笔交易金额的分成结果
type CommissionSplit struct {
	GroupAmount decimal.Decimal `json:"group_amount"`
	AccAmount   decimal.Decimal `json:"acc_amount"`
}

// SplitCommission 计算平台/机构分成
//
// 【关键点】平台分成四舍五入到两位小数，机构分成取差值而不是单独再舍入，
// 保证 group + acc 与交易金额精确相等。
// 信用卡与线下付款两条完成路径都走这一个函数，杜绝算法漂移
func SplitCommission(amount, accCommissionPercentage decimal.Decimal) CommissionSplit {
	groupAmount := amount.Mul(accCommissionPercentage).Div(decimal.NewFromInt(100)).Round(2)
	return CommissionSplit{
		GroupAmount: groupAmount,
		AccAmount:   amount.Sub(groupAmount),
	}
}

// SettlementResult 月度结算结果
type SettlementResult struct {
	AccID        int64           `json:"acc_id"`
	EntryCount   int             `json:"entry_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`   // 结算窗口内交易总额
	PayoutAmount decimal.Decimal `json:"payout_amount"`  // 应付给机构的金额
	GroupAmount  decimal.Decimal `json:"group_amount"`   // 平台留存
	TransferID   int64           `json:"transfer_id"`    // 生成的出账转账单
	SettledAt    time.Time       `json:"settled_at"`
}

// SettlementService 分成结算引擎
// 台账写入发生在交易完成路径里；这里负责周期性聚合与出账
type SettlementService struct {
	db              *gorm.DB
	cfg             *config.Config
	ledgerRepo      *repository.LedgerRepository
	partyRepo       *repository.PartyRepository
	transferRepo    *repository.TransferRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewSettlementService(db *gorm.DB, cfg *config.Config) *SettlementService {
	return &SettlementService{
		db:              db,
		cfg:             cfg,
		ledgerRepo:      repository.NewLedgerRepository(db),
		partyRepo:       repository.NewPartyRepository(db),
		transferRepo:    repository.NewTransferRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// WriteLedgerEntry 为一笔完成的营收交易写台账
// 必须在交易完成的同一个事务内调用，每笔交易恰好一条
func (s *SettlementService) WriteLedgerEntry(ctx context.Context, tx *gorm.DB, trans *model.Transaction, acc *model.AccreditationBody, trainingCenterID int64) (*model.CommissionLedger, error) {
	split := SplitCommission(trans.Amount, acc.CommissionPercentage)

	tcID := trainingCenterID
	entry := &model.CommissionLedger{
		TransactionID:             trans.ID,
		AccID:                     acc.ID,
		TrainingCenterID:          &tcID,
		GroupCommissionAmount:     split.GroupAmount,
		GroupCommissionPercentage: acc.CommissionPercentage,
		AccCommissionAmount:       split.AccAmount,
		AccCommissionPercentage:   decimal.NewFromInt(100).Sub(acc.CommissionPercentage),
		SettlementStatus:          model.SettlementStatusPending,
	}

	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("写入分成台账失败: %w", err)
	}
	return entry, nil
}

// SettleMonth 对某机构结算指定自然月
// 聚合窗口内待结算台账，逐条翻转状态，为机构分成总额生成出账转账单
func (s *SettlementService) SettleMonth(ctx context.Context, accID int64, year int, month time.Month, actorID int64) (*SettlementResult, error) {
	acc, err := s.partyRepo.GetACC(ctx, accID)
	if err != nil {
		return nil, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	entries, err := s.ledgerRepo.ListPendingByACCWindow(ctx, accID, from, to)
	if err != nil {
		return nil, fmt.Errorf("查询待结算台账失败: %w", err)
	}
	if len(entries) == 0 {
		return &SettlementResult{AccID: accID, SettledAt: time.Now()}, nil
	}

	now := time.Now()
	result := &SettlementResult{AccID: accID, SettledAt: now}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			settled, err := s.ledgerRepo.MarkSettled(ctx, tx, entry.ID, now)
			if err != nil {
				return fmt.Errorf("翻转结算状态失败: %w", err)
			}
			if !settled {
				// 并发结算已把这条计走
				continue
			}
			result.EntryCount++
			result.TotalAmount = result.TotalAmount.Add(entry.GroupCommissionAmount).Add(entry.AccCommissionAmount)
			result.PayoutAmount = result.PayoutAmount.Add(entry.AccCommissionAmount)
			result.GroupAmount = result.GroupAmount.Add(entry.GroupCommissionAmount)
		}

		if result.EntryCount == 0 || !result.PayoutAmount.IsPositive() {
			return nil
		}

		account, err := model.ResolvePayeeAccount(model.PartyTypeACC, acc, nil)
		if err != nil {
			return err
		}

		// 出账交易 + 转账单，由转账重试任务异步执行
		trans := &model.Transaction{
			TransactionNo:   idgen.GenerateTransactionNo(),
			TransactionType: model.TransactionTypeTransfer,
			PayerType:       model.PartyTypeGroup,
			PayerID:         0,
			PayeeType:       model.PartyTypeACC,
			PayeeID:         acc.ID,
			Amount:          result.PayoutAmount,
			Currency:        s.cfg.Stripe.Currency,
			Status:          model.TransactionStatusPending,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("创建出账交易失败: %w", err)
		}

		transfer := &model.Transfer{
			TransferNo:       idgen.GenerateTransferNo(),
			TransactionID:    trans.ID,
			PayeeType:        model.PartyTypeACC,
			PayeeID:          acc.ID,
			StripeAccountID:  account,
			GrossAmount:      result.TotalAmount,
			CommissionAmount: result.GroupAmount,
			NetAmount:        result.PayoutAmount,
			Currency:         s.cfg.Stripe.Currency,
			Status:           model.TransferStatusPending,
			MaxRetries:       s.cfg.Business.MaxTransferRetries,
		}
		if err := s.transferRepo.Create(ctx, tx, transfer); err != nil {
			return fmt.Errorf("创建转账单失败: %w", err)
		}
		result.TransferID = transfer.ID

		payload, _ := json.Marshal(map[string]interface{}{
			"event":         model.EventSettlementCompleted,
			"acc_id":        acc.ID,
			"year":          year,
			"month":         int(month),
			"entry_count":   result.EntryCount,
			"payout_amount": result.PayoutAmount,
			"transfer_id":   transfer.ID,
			"actor_id":      actorID,
			"settled_at":    now.Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: transfer.TransferNo,
			Topic:      s.cfg.Kafka.Topic.Settlement,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入结算消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Printf("月度结算完成: accID=%d, %d-%02d, 条目=%d, 应付=%s",
		accID, year, int(month), result.EntryCount, result.PayoutAmount.String())

	return result, nil
}

// ListLedger 机构台账查询
func (s *SettlementService) ListLedger(ctx context.Context, accID int64, status string, page, pageSize int) ([]*model.CommissionLedger, int64, error) {
	return s.ledgerRepo.ListByACC(ctx, accID, status, page, pageSize)
}
