package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certmarket/internal/model"
	"certmarket/pkg/codegen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCodeNotFound     = errors.New("证书码不存在")
	ErrCodeNotAvailable = errors.New("证书码不可用")
	ErrCodeMintFailed   = errors.New("证书码生成失败")
)

type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// MintBatchCodes 为批次铸造 quantity 个证书码
//
// 【关键点】必须在批次状态流转的同一个事务里调用：
// 事务提交后码数恰好等于批次数量，回滚后一个都不存在。
// 随机码撞唯一索引时重新生成，最多 maxAttempts 次
func (r *CodeRepository) MintBatchCodes(ctx context.Context, tx *gorm.DB, batch *model.CodeBatch, discountApplied bool, maxAttempts int) ([]*model.CertificateCode, error) {
	if tx == nil {
		tx = r.db
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	// 折后单价，最后一位按四舍五入记账
	price := batch.FinalAmount.Div(decimal.NewFromInt(int64(batch.Quantity))).Round(2)

	now := time.Now()
	codes := make([]*model.CertificateCode, 0, batch.Quantity)
	for i := 0; i < batch.Quantity; i++ {
		var lastErr error
		created := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			codeStr, err := codegen.NewCertificateCode()
			if err != nil {
				return nil, err
			}
			code := &model.CertificateCode{
				Code:             codeStr,
				BatchID:          batch.ID,
				TrainingCenterID: batch.TrainingCenterID,
				AccID:            batch.AccID,
				CourseID:         batch.CourseID,
				PurchasedPrice:   price,
				DiscountApplied:  discountApplied,
				DiscountCodeID:   batch.DiscountCodeID,
				Status:           model.CodeStatusAvailable,
				PurchasedAt:      now,
			}
			if err := tx.WithContext(ctx).Create(code).Error; err != nil {
				// 唯一索引冲突时换一个码重试
				lastErr = err
				continue
			}
			codes = append(codes, code)
			created = true
			break
		}
		if !created {
			return nil, fmt.Errorf("%w: %v", ErrCodeMintFailed, lastErr)
		}
	}
	return codes, nil
}

func (r *CodeRepository) CountByBatch(ctx context.Context, batchID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CertificateCode{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	return count, err
}

func (r *CodeRepository) ListByBatch(ctx context.Context, batchID int64) ([]*model.CertificateCode, error) {
	var codes []*model.CertificateCode
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&codes).Error
	return codes, err
}

func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*model.CertificateCode, error) {
	var c model.CertificateCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Use 消费一个证书码
//
// 【关键点】AVAILABLE -> USED 条件更新，影响行数为 0 即"已被用掉或不可用"，
// 保证每个码最多兑换一张证书
func (r *CodeRepository) Use(ctx context.Context, code string, certificateID int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.CertificateCode{}).
		Where("code = ? AND status = ?", code, model.CodeStatusAvailable).
		Updates(map[string]interface{}{
			"status":                  model.CodeStatusUsed,
			"used_at":                 &now,
			"used_for_certificate_id": certificateID,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCodeNotAvailable
	}

	return nil
}

// ExpireAvailableByBatch 退款后将批次内未使用的码全部作废
func (r *CodeRepository) ExpireAvailableByBatch(ctx context.Context, tx *gorm.DB, batchID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CertificateCode{}).
		Where("batch_id = ? AND status = ?", batchID, model.CodeStatusAvailable).
		Update("status", model.CodeStatusExpired)
	return result.RowsAffected, result.Error
}

// CountAvailableByTrainingCenter 培训中心剩余可用码数
func (r *CodeRepository) CountAvailableByTrainingCenter(ctx context.Context, tcID, accID, courseID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CertificateCode{}).
		Where("training_center_id = ? AND acc_id = ? AND course_id = ? AND status = ?",
			tcID, accID, courseID, model.CodeStatusAvailable).
		Count(&count).Error
	return count, err
}
