package repository

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound      = errors.New("交易不存在")
	ErrTransactionStatusInvalid = errors.New("交易状态不合法")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateStatus 条件状态流转，COMPLETED 时落 completed_at
// 状态单向流转：影响行数为 0 表示状态已被别的路径推进（如重复回调）
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.TransactionCanTransitionTo(fromStatus, toStatus) {
		return ErrTransactionStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.TransactionStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTransactionStatusInvalid
	}

	return nil
}

// ListByPayer 付款方视角的交易列表
func (r *TransactionRepository) ListByPayer(ctx context.Context, payerType string, payerID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("payer_type = ? AND payer_id = ?", payerType, payerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
