package service

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"
	"certmarket/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 折扣码校验失败原因，原样透出给调用方
const (
	DiscountReasonNotFound      = "not_found"
	DiscountReasonInactive      = "inactive"
	DiscountReasonNotStarted    = "not_started"
	DiscountReasonExpired       = "expired"
	DiscountReasonDepleted      = "depleted"
	DiscountReasonNotApplicable = "not_applicable"
)

var (
	ErrDiscountFieldsInvalid = errors.New("折扣码字段不合法")
)

// DiscountValidation 折扣码校验结果
type DiscountValidation struct {
	Valid      bool                `json:"valid"`
	Reason     string              `json:"reason,omitempty"`
	Percentage decimal.Decimal     `json:"percentage"`
	Discount   *model.DiscountCode `json:"-"`
}

// DiscountService 折扣引擎
// Validate 只读不消耗；Consume 在购买真正提交时才调用，
// 校验通过但最终放弃支付的请求不占用限量折扣的额度
type DiscountService struct {
	discountRepo *repository.DiscountRepository
	db           *gorm.DB
}

func NewDiscountService(db *gorm.DB) *DiscountService {
	return &DiscountService{
		discountRepo: repository.NewDiscountRepository(db),
		db:           db,
	}
}

// Validate 校验折扣码，逐条短路
func (s *DiscountService) Validate(ctx context.Context, code string, accID, courseID int64, at time.Time) (*DiscountValidation, error) {
	dc, err := s.discountRepo.GetByCodeAndACC(ctx, code, accID)
	if err != nil {
		if errors.Is(err, repository.ErrDiscountNotFound) {
			return &DiscountValidation{Valid: false, Reason: DiscountReasonNotFound}, nil
		}
		return nil, err
	}

	if dc.Status != model.DiscountStatusActive {
		return &DiscountValidation{Valid: false, Reason: DiscountReasonInactive}, nil
	}

	if dc.DiscountType == model.DiscountTypeTimeLimited {
		if dc.StartDate != nil && at.Before(*dc.StartDate) {
			return &DiscountValidation{Valid: false, Reason: DiscountReasonNotStarted}, nil
		}
		if dc.EndDate != nil && at.After(*dc.EndDate) {
			return &DiscountValidation{Valid: false, Reason: DiscountReasonExpired}, nil
		}
	}

	if dc.DiscountType == model.DiscountTypeQuantityBased && dc.UsedQuantity >= dc.TotalQuantity {
		return &DiscountValidation{Valid: false, Reason: DiscountReasonDepleted}, nil
	}

	if !dc.AppliesTo(courseID) {
		return &DiscountValidation{Valid: false, Reason: DiscountReasonNotApplicable}, nil
	}

	return &DiscountValidation{
		Valid:      true,
		Percentage: dc.DiscountPercentage,
		Discount:   dc,
	}, nil
}

// ComputeDiscount 按百分比计算折扣金额
// 四舍五入到两位小数，不为负，不超过基数本身
func ComputeDiscount(baseAmount, percentage decimal.Decimal) decimal.Decimal {
	if percentage.IsNegative() || baseAmount.IsNegative() {
		return decimal.Zero
	}
	discount := baseAmount.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
	if discount.GreaterThan(baseAmount) {
		return baseAmount
	}
	return discount
}

// Consume 消耗一次折扣码（每批次一次，不按码数计）
// 只能在购买/审批事务内调用，限量码用尽时返回 repository.ErrDiscountDepleted
func (s *DiscountService) Consume(ctx context.Context, tx *gorm.DB, dc *model.DiscountCode) error {
	if err := s.discountRepo.Consume(ctx, tx, dc); err != nil {
		return err
	}
	// 用尽后翻转展示状态，失败不影响消耗本身
	return s.discountRepo.MarkDepleted(ctx, tx, dc.ID)
}

// CreateDiscount 创建折扣码（认证机构操作），按类型校验必填字段
func (s *DiscountService) CreateDiscount(ctx context.Context, dc *model.DiscountCode) error {
	if dc.DiscountPercentage.IsNegative() || dc.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return ErrDiscountFieldsInvalid
	}

	switch dc.DiscountType {
	case model.DiscountTypeTimeLimited:
		if dc.StartDate == nil || dc.EndDate == nil || !dc.EndDate.After(*dc.StartDate) {
			return ErrDiscountFieldsInvalid
		}
	case model.DiscountTypeQuantityBased:
		if dc.TotalQuantity < 1 {
			return ErrDiscountFieldsInvalid
		}
	default:
		return ErrDiscountFieldsInvalid
	}

	if dc.Status == "" {
		dc.Status = model.DiscountStatusActive
	}

	return s.discountRepo.Create(ctx, dc)
}
