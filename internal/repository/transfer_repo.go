package repository

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransferNotFound     = errors.New("转账单不存在")
	ErrTransferNotClaimable = errors.New("转账单当前不可执行")
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *gorm.DB, transfer *model.Transfer) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(transfer).Error
}

func (r *TransferRepository) GetByID(ctx context.Context, id int64) (*model.Transfer, error) {
	var transfer model.Transfer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &transfer, nil
}

// ClaimProcessing 把转账单从待执行态抢占为 PROCESSING
//
// 【关键点】人工重试和定时任务可能同时到达，
// 条件更新保证只有一个执行方抢到；抢不到的观察到"不可执行"
func (r *TransferRepository) ClaimProcessing(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Transfer{}).
		Where("id = ? AND status IN ?", id, []string{model.TransferStatusPending, model.TransferStatusRetrying}).
		Update("status", model.TransferStatusProcessing)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTransferNotClaimable
	}

	return nil
}

// MarkCompleted 转账成功，落网关转账ID
func (r *TransferRepository) MarkCompleted(ctx context.Context, id int64, stripeTransferID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Transfer{}).
		Where("id = ? AND status = ?", id, model.TransferStatusProcessing).
		Updates(map[string]interface{}{
			"status":             model.TransferStatusCompleted,
			"stripe_transfer_id": stripeTransferID,
		}).Error
}

// MarkRetrying 本次失败但还有重试额度，记错误并排期下次执行
func (r *TransferRepository) MarkRetrying(ctx context.Context, id int64, lastError string, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Transfer{}).
		Where("id = ? AND status = ?", id, model.TransferStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.TransferStatusRetrying,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    lastError,
			"next_retry_at": &nextRetryAt,
		}).Error
}

// MarkFailed 重试额度耗尽，进入终态
func (r *TransferRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&model.Transfer{}).
		Where("id = ? AND status = ?", id, model.TransferStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.TransferStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    lastError,
			"next_retry_at": nil,
		}).Error
}

// GetDue 到期可执行的转账单（新建的和退避到点的）
func (r *TransferRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*model.Transfer, error) {
	var transfers []*model.Transfer
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{model.TransferStatusPending, model.TransferStatusRetrying}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

// GetStuckProcessing 长时间停留在 PROCESSING 的转账单（进程崩溃遗留）
func (r *TransferRepository) GetStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Transfer, error) {
	var transfers []*model.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.TransferStatusProcessing, before).
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

// ListByPayee 收款方视角的转账列表
func (r *TransferRepository) ListByPayee(ctx context.Context, payeeType string, payeeID int64, page, pageSize int) ([]*model.Transfer, int64, error) {
	var transfers []*model.Transfer
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.Transfer{}).
		Where("payee_type = ? AND payee_id = ?", payeeType, payeeID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transfers).Error

	return transfers, total, err
}
