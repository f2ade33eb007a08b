package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certmarket/internal/model"
	"certmarket/internal/repository"

	"gorm.io/gorm"
)

var ErrPricingWindowInvalid = errors.New("定价生效区间不合法")

// PricingService 课程定价解析
// 购买链路上只读；定价变更通过新增生效区间实现
type PricingService struct {
	pricingRepo *repository.PricingRepository
	db          *gorm.DB
}

func NewPricingService(db *gorm.DB) *PricingService {
	return &PricingService{
		pricingRepo: repository.NewPricingRepository(db),
		db:          db,
	}
}

// Resolve 查询 (course, acc) 在 at 时刻的生效定价
// 没有命中任何生效区间时返回 repository.ErrPricingNotFound，
// 调用方必须视为"该课程当前不可购买"
func (s *PricingService) Resolve(ctx context.Context, courseID, accID int64, at time.Time) (*model.CoursePricing, error) {
	return s.pricingRepo.GetEffective(ctx, courseID, accID, at)
}

// CreatePricing 新增定价（认证机构操作）
// 旧定价不删除，只把敞开的区间封口到新定价生效前
func (s *PricingService) CreatePricing(ctx context.Context, pricing *model.CoursePricing) error {
	if pricing.EffectiveTo != nil && !pricing.EffectiveTo.After(pricing.EffectiveFrom) {
		return ErrPricingWindowInvalid
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.pricingRepo.CloseOpenWindows(ctx, tx, pricing.CourseID, pricing.AccID, pricing.EffectiveFrom); err != nil {
			return fmt.Errorf("关闭旧定价区间失败: %w", err)
		}
		if err := s.pricingRepo.Create(ctx, tx, pricing); err != nil {
			return fmt.Errorf("创建定价失败: %w", err)
		}
		return nil
	})
}
