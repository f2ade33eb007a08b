package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 参与方类型常量
// ============================================================================
//
// 付款方/收款方不再使用字符串外键隐式约定，而是显式的枚举类型，
// 并通过 ResolvePayeeAccount 统一解析收款账户。

const (
	PartyTypeGroup          = "GROUP"           // 平台方
	PartyTypeACC            = "ACC"             // 认证机构
	PartyTypeTrainingCenter = "TRAINING_CENTER" // 培训中心
	PartyTypeInstructor     = "INSTRUCTOR"      // 讲师
)

const (
	PartyStatusActive   = "ACTIVE"
	PartyStatusInactive = "INACTIVE"
)

const (
	AuthorizationStatusPending  = "PENDING"
	AuthorizationStatusApproved = "APPROVED"
	AuthorizationStatusRejected = "REJECTED"
)

var ErrUnknownPartyType = errors.New("未知的参与方类型")

// AccreditationBody 认证机构（ACC）
// 拥有课程与证书模板，按比例参与交易分成
type AccreditationBody struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                 string          `gorm:"type:varchar(128);not null" json:"name"`
	Status               string          `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_percentage"` // 平台抽成比例（0-100）
	StripeAccountID      string          `gorm:"type:varchar(64)" json:"stripe_account_id"`               // 关联的 Stripe Connect 账户
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AccreditationBody) TableName() string {
	return "accreditation_body"
}

// TrainingCenter 培训中心
// 购买证书码并向学员发放证书
type TrainingCenter struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(128);not null" json:"name"`
	Status          string    `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	StripeAccountID string    `gorm:"type:varchar(64)" json:"stripe_account_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TrainingCenter) TableName() string {
	return "training_center"
}

// TrainingCenterAuthorization 培训中心-认证机构授权关系
// 只有授权状态为 APPROVED 的培训中心才能购买该机构的证书码
type TrainingCenterAuthorization struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TrainingCenterID int64     `gorm:"uniqueIndex:uk_tc_acc;not null" json:"training_center_id"`
	AccID            int64     `gorm:"uniqueIndex:uk_tc_acc;not null" json:"acc_id"`
	Status           string    `gorm:"type:varchar(20);not null;default:PENDING" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TrainingCenterAuthorization) TableName() string {
	return "training_center_authorization"
}

// ResolvePayeeAccount 根据参与方类型解析收款账户
// 转账创建时统一走这里，避免按字符串约定散落各处
func ResolvePayeeAccount(partyType string, acc *AccreditationBody, tc *TrainingCenter) (string, error) {
	switch partyType {
	case PartyTypeACC:
		if acc == nil {
			return "", ErrUnknownPartyType
		}
		return acc.StripeAccountID, nil
	case PartyTypeTrainingCenter:
		if tc == nil {
			return "", ErrUnknownPartyType
		}
		return tc.StripeAccountID, nil
	default:
		return "", ErrUnknownPartyType
	}
}
