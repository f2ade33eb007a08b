package repository

import (
	"context"
	"errors"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDiscountNotFound = errors.New("折扣码不存在")
	ErrDiscountDepleted = errors.New("折扣码剩余数量不足")
)

type DiscountRepository struct {
	db *gorm.DB
}

func NewDiscountRepository(db *gorm.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

func (r *DiscountRepository) Create(ctx context.Context, dc *model.DiscountCode) error {
	return r.db.WithContext(ctx).Create(dc).Error
}

// GetByCodeAndACC 按机构维度查询折扣码（code 仅在机构内唯一）
func (r *DiscountRepository) GetByCodeAndACC(ctx context.Context, code string, accID int64) (*model.DiscountCode, error) {
	var dc model.DiscountCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND acc_id = ?", code, accID).
		First(&dc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscountNotFound
		}
		return nil, err
	}
	return &dc, nil
}

func (r *DiscountRepository) GetByID(ctx context.Context, id int64) (*model.DiscountCode, error) {
	var dc model.DiscountCode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscountNotFound
		}
		return nil, err
	}
	return &dc, nil
}

// Consume 消耗一次折扣码（按批次计一次，不按码数计）
//
// 【关键点】限量折扣用条件自增堵住"校验后并发提交"的超卖窗口：
// UPDATE ... SET used_quantity = used_quantity + 1 WHERE used_quantity < total_quantity
// 影响行数为 0 说明并发下已被用尽，整个购买事务回滚
func (r *DiscountRepository) Consume(ctx context.Context, tx *gorm.DB, dc *model.DiscountCode) error {
	if tx == nil {
		tx = r.db
	}

	if dc.DiscountType == model.DiscountTypeQuantityBased {
		result := tx.WithContext(ctx).
			Model(&model.DiscountCode{}).
			Where("id = ? AND used_quantity < total_quantity", dc.ID).
			UpdateColumn("used_quantity", gorm.Expr("used_quantity + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDiscountDepleted
		}
		return nil
	}

	// 限时折扣只做使用计数，没有数量上限
	return tx.WithContext(ctx).
		Model(&model.DiscountCode{}).
		Where("id = ?", dc.ID).
		UpdateColumn("used_quantity", gorm.Expr("used_quantity + 1")).Error
}

// MarkDepleted 限量折扣用尽后翻转状态（展示用，消耗判定不依赖它）
func (r *DiscountRepository) MarkDepleted(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.DiscountCode{}).
		Where("id = ? AND used_quantity >= total_quantity AND discount_type = ?", id, model.DiscountTypeQuantityBased).
		Update("status", model.DiscountStatusDepleted).Error
}
