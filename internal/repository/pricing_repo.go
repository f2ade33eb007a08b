package repository

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var ErrPricingNotFound = errors.New("课程定价不存在")

type PricingRepository struct {
	db *gorm.DB
}

func NewPricingRepository(db *gorm.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// GetEffective 查询 (course, acc) 在指定时刻的生效定价
// 取生效区间覆盖 at 且 effective_from 最新的一条
func (r *PricingRepository) GetEffective(ctx context.Context, courseID, accID int64, at time.Time) (*model.CoursePricing, error) {
	var pricing model.CoursePricing
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND acc_id = ?", courseID, accID).
		Where("effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to >= ?", at).
		Order("effective_from DESC").
		First(&pricing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPricingNotFound
		}
		return nil, err
	}
	return &pricing, nil
}

func (r *PricingRepository) Create(ctx context.Context, tx *gorm.DB, pricing *model.CoursePricing) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(pricing).Error
}

// CloseOpenWindows 关闭该课程当前敞开的定价区间
// 定价从不删除，换价时把旧区间封口到新区间生效前一刻
func (r *PricingRepository) CloseOpenWindows(ctx context.Context, tx *gorm.DB, courseID, accID int64, closeAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.CoursePricing{}).
		Where("course_id = ? AND acc_id = ?", courseID, accID).
		Where("effective_to IS NULL OR effective_to > ?", closeAt).
		Update("effective_to", closeAt).Error
}
