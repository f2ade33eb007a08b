package repository

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBatchNotFound         = errors.New("批次不存在")
	ErrBatchStatusInvalid    = errors.New("批次状态不合法")
	ErrBatchAlreadyProcessed = errors.New("批次已被处理")
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, tx *gorm.DB, batch *model.CodeBatch) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *BatchRepository) GetByID(ctx context.Context, batchID int64) (*model.CodeBatch, error) {
	var batch model.CodeBatch
	err := r.db.WithContext(ctx).Where("id = ?", batchID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// GetByRequestID 幂等查询，不存在时返回 nil 而不是错误
func (r *BatchRepository) GetByRequestID(ctx context.Context, requestID string) (*model.CodeBatch, error) {
	var batch model.CodeBatch
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*model.CodeBatch, error) {
	// 线下批次的 payment_intent_id 是空串，空查询会误中
	if intentID == "" {
		return nil, ErrBatchNotFound
	}

	var batch model.CodeBatch
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// UpdateStatus 条件状态流转
//
// 【关键点】WHERE 带上 fromStatus，影响行数为 0 说明批次已被别人处理，
// 这是并发审批/重复回调的最终防线
func (r *BatchRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, batchID int64, fromStatus, toStatus string) error {
	if !model.BatchCanTransitionTo(fromStatus, toStatus) {
		return ErrBatchStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.CodeBatch{}).
		Where("id = ? AND payment_status = ?", batchID, fromStatus).
		Update("payment_status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBatchAlreadyProcessed
	}

	return nil
}

// MarkReviewed 人工审核落章：状态流转 + 审核人 + 审核时间（驳回时附原因）
// 与 UpdateStatus 同样依赖条件更新保证恰好一次
func (r *BatchRepository) MarkReviewed(ctx context.Context, tx *gorm.DB, batchID int64, fromStatus, toStatus string, reviewerID int64, reason string) error {
	if !model.BatchCanTransitionTo(fromStatus, toStatus) {
		return ErrBatchStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	updates := map[string]interface{}{
		"payment_status": toStatus,
		"verified_by":    reviewerID,
		"verified_at":    &now,
	}
	if reason != "" {
		updates["rejection_reason"] = reason
	}

	result := tx.WithContext(ctx).
		Model(&model.CodeBatch{}).
		Where("id = ? AND payment_status = ?", batchID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBatchAlreadyProcessed
	}

	return nil
}

func (r *BatchRepository) SetTransactionID(ctx context.Context, tx *gorm.DB, batchID, transactionID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.CodeBatch{}).
		Where("id = ?", batchID).
		Update("transaction_id", transactionID).Error
}

// ListByTrainingCenter 培训中心侧的批次列表
func (r *BatchRepository) ListByTrainingCenter(ctx context.Context, tcID int64, page, pageSize int) ([]*model.CodeBatch, int64, error) {
	var batches []*model.CodeBatch
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CodeBatch{}).Where("training_center_id = ?", tcID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&batches).Error

	return batches, total, err
}

// ListPendingManualByACC 认证机构侧待审核的线下付款批次
func (r *BatchRepository) ListPendingManualByACC(ctx context.Context, accID int64, page, pageSize int) ([]*model.CodeBatch, int64, error) {
	var batches []*model.CodeBatch
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.CodeBatch{}).
		Where("acc_id = ? AND payment_method = ? AND payment_status = ?",
			accID, model.PaymentMethodManual, model.BatchStatusPending)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&batches).Error

	return batches, total, err
}
