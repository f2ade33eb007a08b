package repository

import (
	"context"
	"errors"

	"certmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrACCNotFound            = errors.New("认证机构不存在")
	ErrTrainingCenterNotFound = errors.New("培训中心不存在")
	ErrAuthorizationNotFound  = errors.New("授权关系不存在")
)

type PartyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(db *gorm.DB) *PartyRepository {
	return &PartyRepository{db: db}
}

func (r *PartyRepository) GetACC(ctx context.Context, accID int64) (*model.AccreditationBody, error) {
	var acc model.AccreditationBody
	err := r.db.WithContext(ctx).Where("id = ?", accID).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrACCNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *PartyRepository) GetTrainingCenter(ctx context.Context, tcID int64) (*model.TrainingCenter, error) {
	var tc model.TrainingCenter
	err := r.db.WithContext(ctx).Where("id = ?", tcID).First(&tc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrainingCenterNotFound
		}
		return nil, err
	}
	return &tc, nil
}

// GetAuthorization 查询培训中心对认证机构的授权关系
func (r *PartyRepository) GetAuthorization(ctx context.Context, tcID, accID int64) (*model.TrainingCenterAuthorization, error) {
	var auth model.TrainingCenterAuthorization
	err := r.db.WithContext(ctx).
		Where("training_center_id = ? AND acc_id = ?", tcID, accID).
		First(&auth).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, err
	}
	return &auth, nil
}

// ListActiveACCIDs 列出全部有效认证机构ID（月度结算遍历用）
func (r *PartyRepository) ListActiveACCIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.AccreditationBody{}).
		Where("status = ?", model.PartyStatusActive).
		Pluck("id", &ids).Error
	return ids, err
}
