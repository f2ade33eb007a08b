package service

import (
	"testing"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/infrastructure/database"
	"certmarket/internal/model"
	"certmarket/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	idgen.Init(1)
}

// newTestDB sqlite 内存库，表结构与生产迁移共用一份
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	// :memory: 每个连接都是独立库，必须收敛到单连接
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Notification: "certmarket.notification",
				Settlement:   "certmarket.settlement",
			},
		},
		Stripe: config.StripeConfig{
			Currency: "usd",
		},
		Business: config.BusinessConfig{
			MaxTransferRetries:       3,
			TransferRetryBaseMinutes: 5,
			TransferRetryMaxMinutes:  60,
			MaxOutboxRetries:         5,
			CodeMintMaxAttempts:      5,
		},
	}
}

// seedParties 一个有效机构（20% 平台抽成）+ 一个已授权培训中心
func seedParties(t *testing.T, db *gorm.DB) (*model.AccreditationBody, *model.TrainingCenter) {
	t.Helper()

	acc := &model.AccreditationBody{
		Name:                 "测试认证机构",
		Status:               model.PartyStatusActive,
		CommissionPercentage: decimal.NewFromInt(20),
		StripeAccountID:      "acct_test_acc",
	}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("创建机构失败: %v", err)
	}

	tc := &model.TrainingCenter{
		Name:            "测试培训中心",
		Status:          model.PartyStatusActive,
		StripeAccountID: "acct_test_tc",
	}
	if err := db.Create(tc).Error; err != nil {
		t.Fatalf("创建培训中心失败: %v", err)
	}

	auth := &model.TrainingCenterAuthorization{
		TrainingCenterID: tc.ID,
		AccID:            acc.ID,
		Status:           model.AuthorizationStatusApproved,
	}
	if err := db.Create(auth).Error; err != nil {
		t.Fatalf("创建授权关系失败: %v", err)
	}

	return acc, tc
}

// seedPricing 单价 100.00 的长期生效定价
func seedPricing(t *testing.T, db *gorm.DB, courseID, accID int64) *model.CoursePricing {
	t.Helper()

	pricing := &model.CoursePricing{
		CourseID:      courseID,
		AccID:         accID,
		BasePrice:     decimal.NewFromInt(100),
		Currency:      "usd",
		EffectiveFrom: time.Now().Add(-24 * time.Hour),
	}
	if err := db.Create(pricing).Error; err != nil {
		t.Fatalf("创建定价失败: %v", err)
	}
	return pricing
}

func seedDiscount(t *testing.T, db *gorm.DB, dc *model.DiscountCode) *model.DiscountCode {
	t.Helper()
	if dc.Status == "" {
		dc.Status = model.DiscountStatusActive
	}
	if err := db.Create(dc).Error; err != nil {
		t.Fatalf("创建折扣码失败: %v", err)
	}
	return dc
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func decimalPtr(v decimal.Decimal) *decimal.Decimal {
	return &v
}
