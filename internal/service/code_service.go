package service

import (
	"context"

	"certmarket/internal/model"
	"certmarket/internal/repository"

	"gorm.io/gorm"
)

// CodeService 证书码查询与兑换
type CodeService struct {
	codeRepo *repository.CodeRepository
}

func NewCodeService(db *gorm.DB) *CodeService {
	return &CodeService{
		codeRepo: repository.NewCodeRepository(db),
	}
}

// UseCode 用证书码兑换一张证书
// 条件更新保证一个码最多兑换一次，重复兑换返回 repository.ErrCodeNotAvailable
func (s *CodeService) UseCode(ctx context.Context, code string, certificateID int64) (*model.CertificateCode, error) {
	if err := s.codeRepo.Use(ctx, code, certificateID); err != nil {
		return nil, err
	}
	return s.codeRepo.GetByCode(ctx, code)
}

// GetCode 证书码详情
func (s *CodeService) GetCode(ctx context.Context, code string) (*model.CertificateCode, error) {
	return s.codeRepo.GetByCode(ctx, code)
}

// ListBatchCodes 批次内全部证书码
func (s *CodeService) ListBatchCodes(ctx context.Context, batchID int64) ([]*model.CertificateCode, error) {
	return s.codeRepo.ListByBatch(ctx, batchID)
}

// CountAvailable 培训中心在某课程下剩余可用码数
func (s *CodeService) CountAvailable(ctx context.Context, tcID, accID, courseID int64) (int64, error) {
	return s.codeRepo.CountAvailableByTrainingCenter(ctx, tcID, accID, courseID)
}
