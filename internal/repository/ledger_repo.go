package repository

import (
	"context"
	"errors"
	"time"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var ErrLedgerNotFound = errors.New("台账记录不存在")

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.CommissionLedger) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID int64) (*model.CommissionLedger, error) {
	var entry model.CommissionLedger
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ListPendingByACCWindow 某机构指定时间窗内待结算的台账
func (r *LedgerRepository) ListPendingByACCWindow(ctx context.Context, accID int64, from, to time.Time) ([]*model.CommissionLedger, error) {
	var entries []*model.CommissionLedger
	err := r.db.WithContext(ctx).
		Where("acc_id = ? AND settlement_status = ?", accID, model.SettlementStatusPending).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// MarkSettled 翻转结算状态
// WHERE 带 PENDING 条件，并发结算时同一条台账只会被计入一次
func (r *LedgerRepository) MarkSettled(ctx context.Context, tx *gorm.DB, id int64, settledAt time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CommissionLedger{}).
		Where("id = ? AND settlement_status = ?", id, model.SettlementStatusPending).
		Updates(map[string]interface{}{
			"settlement_status": model.SettlementStatusSettled,
			"settlement_date":   &settledAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByACC 机构台账列表（可按结算状态过滤）
func (r *LedgerRepository) ListByACC(ctx context.Context, accID int64, status string, page, pageSize int) ([]*model.CommissionLedger, int64, error) {
	var entries []*model.CommissionLedger
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CommissionLedger{}).Where("acc_id = ?", accID)
	if status != "" {
		query = query.Where("settlement_status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
