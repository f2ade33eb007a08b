package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/infrastructure/lock"
	"certmarket/internal/infrastructure/payment"
	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrACCInactive               = errors.New("认证机构已停用")
	ErrNotAuthorized             = errors.New("培训中心未获得该机构授权")
	ErrQuantityInvalid           = errors.New("购买数量必须大于0")
	ErrPaymentMethodInvalid      = errors.New("不支持的支付方式")
	ErrPaymentIntentRequired     = errors.New("信用卡支付必须携带 payment_intent_id")
	ErrReceiptRequired           = errors.New("线下付款必须携带付款凭证和付款金额")
	ErrPaymentVerificationFailed = errors.New("支付验证未通过")
	ErrBatchNotRefundable        = errors.New("批次不满足退款条件")
)

// DiscountInvalidError 折扣码校验失败
// 携带具体原因透出给调用方；购买请求里带了无效折扣码是硬错误，不会静默忽略
type DiscountInvalidError struct {
	Reason string
}

func (e *DiscountInvalidError) Error() string {
	return "折扣码无效: " + e.Reason
}

// GatewayError 支付网关异常（网络/服务端错误），可能是瞬时的，调用方可重试
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return "支付网关异常: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ValidationResult 购买前置校验通过后携带的上下文
type ValidationResult struct {
	ACC     *model.AccreditationBody
	Pricing *model.CoursePricing
}

// PriceCalculation 价格计算结果
type PriceCalculation struct {
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	DiscountAmount   decimal.Decimal     `json:"discount_amount"`
	FinalAmount      decimal.Decimal     `json:"final_amount"`
	CommissionAmount decimal.Decimal     `json:"commission_amount"` // 平台分成（destination charge 拆分用）
	ProviderAmount   decimal.Decimal     `json:"provider_amount"`   // 机构侧金额
	Currency         string              `json:"currency"`
	Discount         *model.DiscountCode `json:"-"`
}

// PurchaseRequest 批量购买请求
type PurchaseRequest struct {
	RequestID         string           `json:"request_id"`
	TrainingCenterID  int64            `json:"training_center_id"`
	AccID             int64            `json:"acc_id"`
	CourseID          int64            `json:"course_id"`
	Quantity          int              `json:"quantity"`
	DiscountCode      string           `json:"discount_code"`
	PaymentMethod     string           `json:"payment_method"`
	PaymentIntentID   string           `json:"payment_intent_id"`
	PaymentReceiptURL string           `json:"payment_receipt_url"`
	PaymentAmount     *decimal.Decimal `json:"payment_amount"`
	ActorID           int64            `json:"-"` // 操作者，由调用层显式传入
}

// PurchaseResult 购买结果
type PurchaseResult struct {
	BatchID        int64           `json:"batch_id"`
	BatchNo        string          `json:"batch_no"`
	PaymentStatus  string          `json:"payment_status"`
	Quantity       int             `json:"quantity"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	TransactionID  int64           `json:"transaction_id"`
	Message        string          `json:"message,omitempty"`
}

// PurchaseService 证书码批量购买编排
//
// 【关键点】购买是整个系统最核心的操作，必须保证：
// 1. 幂等性：相同的 request_id 只会创建一个批次
// 2. 原子性：批次、证书码、交易、台账在一个事务里同生共死，
//    任何一步失败整体回滚，不留下半个批次
// 3. 不信任客户端：信用卡支付落库前必须回查网关确认
type PurchaseService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	gateway       payment.Gateway
	batchRepo     *repository.BatchRepository
	codeRepo      *repository.CodeRepository
	partyRepo     *repository.PartyRepository
	transRepo     *repository.TransactionRepository
	outboxRepo    *repository.OutboxRepository
	pricingSvc    *PricingService
	discountSvc   *DiscountService
	settlementSvc *SettlementService
}

func NewPurchaseService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gateway payment.Gateway) *PurchaseService {
	return &PurchaseService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		gateway:       gateway,
		batchRepo:     repository.NewBatchRepository(db),
		codeRepo:      repository.NewCodeRepository(db),
		partyRepo:     repository.NewPartyRepository(db),
		transRepo:     repository.NewTransactionRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		pricingSvc:    NewPricingService(db),
		discountSvc:   NewDiscountService(db),
		settlementSvc: NewSettlementService(db, cfg),
	}
}

// ValidatePurchaseRequest 购买前置校验
// 机构存在且有效、培训中心已获授权、定价可解析；
// 任一失败返回带类型的错误，由调用层映射成传输状态
func (s *PurchaseService) ValidatePurchaseRequest(ctx context.Context, tcID, accID, courseID int64, at time.Time) (*ValidationResult, error) {
	acc, err := s.partyRepo.GetACC(ctx, accID)
	if err != nil {
		return nil, err
	}
	if acc.Status != model.PartyStatusActive {
		return nil, ErrACCInactive
	}

	auth, err := s.partyRepo.GetAuthorization(ctx, tcID, accID)
	if err != nil {
		if errors.Is(err, repository.ErrAuthorizationNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if auth.Status != model.AuthorizationStatusApproved {
		return nil, ErrNotAuthorized
	}

	pricing, err := s.pricingSvc.Resolve(ctx, courseID, accID, at)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{ACC: acc, Pricing: pricing}, nil
}

// CalculatePrice 计算批次价格
// 携带折扣码但校验不通过时是硬错误，绝不静默按原价继续
func (s *PurchaseService) CalculatePrice(ctx context.Context, validation *ValidationResult, quantity int, discountCode string, courseID int64, at time.Time) (*PriceCalculation, error) {
	if quantity < 1 {
		return nil, ErrQuantityInvalid
	}

	unitPrice := validation.Pricing.BasePrice
	totalAmount := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)

	calc := &PriceCalculation{
		UnitPrice:   unitPrice,
		TotalAmount: totalAmount,
		Currency:    validation.Pricing.Currency,
	}

	if discountCode != "" {
		dv, err := s.discountSvc.Validate(ctx, discountCode, validation.ACC.ID, courseID, at)
		if err != nil {
			return nil, err
		}
		if !dv.Valid {
			return nil, &DiscountInvalidError{Reason: dv.Reason}
		}
		calc.DiscountAmount = ComputeDiscount(totalAmount, dv.Percentage)
		calc.Discount = dv.Discount
	}

	calc.FinalAmount = totalAmount.Sub(calc.DiscountAmount)
	if calc.FinalAmount.IsNegative() {
		calc.FinalAmount = decimal.Zero
	}

	split := SplitCommission(calc.FinalAmount, validation.ACC.CommissionPercentage)
	calc.CommissionAmount = split.GroupAmount
	calc.ProviderAmount = split.AccAmount

	return calc, nil
}

// CreatePaymentIntent 创建支付意图
// 纯请求/响应，失败不落任何本地数据，可安全重试
func (s *PurchaseService) CreatePaymentIntent(ctx context.Context, req *PurchaseRequest) (*payment.IntentResult, *PriceCalculation, error) {
	validation, err := s.ValidatePurchaseRequest(ctx, req.TrainingCenterID, req.AccID, req.CourseID, time.Now())
	if err != nil {
		return nil, nil, err
	}

	calc, err := s.CalculatePrice(ctx, validation, req.Quantity, req.DiscountCode, req.CourseID, time.Now())
	if err != nil {
		return nil, nil, err
	}

	result, err := s.gateway.CreateIntent(ctx, calc.FinalAmount, calc.Currency, map[string]string{
		"request_id":         req.RequestID,
		"training_center_id": fmt.Sprintf("%d", req.TrainingCenterID),
		"acc_id":             fmt.Sprintf("%d", req.AccID),
		"course_id":          fmt.Sprintf("%d", req.CourseID),
		"quantity":           fmt.Sprintf("%d", req.Quantity),
	})
	if err != nil {
		return nil, nil, &GatewayError{Err: err}
	}
	if !result.Success {
		return nil, nil, &GatewayError{Err: errors.New(result.ErrorMessage)}
	}

	return result, calc, nil
}

// ProcessPurchase 执行购买
func (s *PurchaseService) ProcessPurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	if req.Quantity < 1 {
		return nil, ErrQuantityInvalid
	}
	if req.PaymentMethod != model.PaymentMethodCreditCard && req.PaymentMethod != model.PaymentMethodManual {
		return nil, ErrPaymentMethodInvalid
	}

	// 幂等校验
	existing, err := s.batchRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询批次失败: %w", err)
	}
	if existing != nil {
		return batchToResult(existing, "批次已存在"), nil
	}

	// 分布式锁按培训中心维度串行化，锁持有者标识必须全局唯一
	if s.redisClient != nil {
		purchaseLock := lock.NewPurchaseLock(s.redisClient, req.TrainingCenterID, uuid.NewString())
		if err := purchaseLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer purchaseLock.Unlock(ctx)

		// 获取锁后再次检查幂等
		existing, err = s.batchRepo.GetByRequestID(ctx, req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("查询批次失败: %w", err)
		}
		if existing != nil {
			return batchToResult(existing, "批次已存在"), nil
		}
	}

	now := time.Now()
	validation, err := s.ValidatePurchaseRequest(ctx, req.TrainingCenterID, req.AccID, req.CourseID, now)
	if err != nil {
		return nil, err
	}

	calc, err := s.CalculatePrice(ctx, validation, req.Quantity, req.DiscountCode, req.CourseID, now)
	if err != nil {
		return nil, err
	}

	switch req.PaymentMethod {
	case model.PaymentMethodCreditCard:
		return s.processCardPurchase(ctx, req, validation, calc)
	default:
		return s.processManualPurchase(ctx, req, validation, calc)
	}
}

// processCardPurchase 信用卡支付：回查网关确认后同步铸码完成
func (s *PurchaseService) processCardPurchase(ctx context.Context, req *PurchaseRequest, validation *ValidationResult, calc *PriceCalculation) (*PurchaseResult, error) {
	if req.PaymentIntentID == "" {
		return nil, ErrPaymentIntentRequired
	}

	// 【关键点】不信任客户端声称的支付成功，必须回查网关
	confirm, err := s.gateway.ConfirmIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	if !confirm.Success {
		return nil, fmt.Errorf("%w: 网关状态=%s", ErrPaymentVerificationFailed, confirm.Status)
	}

	batch := s.newBatch(req, calc)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
			return fmt.Errorf("创建批次失败: %w", err)
		}

		trans := s.newPurchaseTransaction(req, calc, batch)
		if err := s.transRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("创建交易失败: %w", err)
		}
		if err := s.batchRepo.SetTransactionID(ctx, tx, batch.ID, trans.ID); err != nil {
			return fmt.Errorf("关联交易失败: %w", err)
		}
		batch.TransactionID = trans.ID

		if err := s.completeBatch(ctx, tx, batch, trans, validation.ACC, calc.Discount, model.BatchStatusCompleted); err != nil {
			return err
		}
		batch.PaymentStatus = model.BatchStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("购买完成: batchNo=%s, tcID=%d, 数量=%d, 实付=%s",
		batch.BatchNo, req.TrainingCenterID, req.Quantity, calc.FinalAmount.String())

	return batchToResult(batch, "购买成功"), nil
}

// processManualPurchase 线下付款：只落待审核批次，铸码等人工审核
func (s *PurchaseService) processManualPurchase(ctx context.Context, req *PurchaseRequest, validation *ValidationResult, calc *PriceCalculation) (*PurchaseResult, error) {
	if req.PaymentReceiptURL == "" || req.PaymentAmount == nil {
		return nil, ErrReceiptRequired
	}

	batch := s.newBatch(req, calc)
	batch.PaymentReceiptURL = req.PaymentReceiptURL
	batch.PaymentAmount = req.PaymentAmount

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
			return fmt.Errorf("创建批次失败: %w", err)
		}

		trans := s.newPurchaseTransaction(req, calc, batch)
		if err := s.transRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("创建交易失败: %w", err)
		}
		if err := s.batchRepo.SetTransactionID(ctx, tx, batch.ID, trans.ID); err != nil {
			return fmt.Errorf("关联交易失败: %w", err)
		}
		batch.TransactionID = trans.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("线下付款批次已创建待审核: batchNo=%s, tcID=%d, 数量=%d",
		batch.BatchNo, req.TrainingCenterID, req.Quantity)

	return batchToResult(batch, "批次已创建，等待人工审核"), nil
}

// ConfirmCardPayment 信用卡支付确认入口（webhook 与客户端主动确认共用）
//
// 【关键点】重复确认必须是无副作用的空操作：
// 批次已完成时直接返回，不再铸码、不再动交易状态
func (s *PurchaseService) ConfirmCardPayment(ctx context.Context, intentID string) (*PurchaseResult, error) {
	batch, err := s.batchRepo.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if batch.PaymentMethod != model.PaymentMethodCreditCard {
		return nil, ErrPaymentMethodInvalid
	}
	if batch.PaymentStatus != model.BatchStatusPending {
		// 已由同步路径或上一次回调处理过
		return batchToResult(batch, "批次已处理"), nil
	}

	confirm, err := s.gateway.ConfirmIntent(ctx, intentID)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	if !confirm.Success {
		return nil, fmt.Errorf("%w: 网关状态=%s", ErrPaymentVerificationFailed, confirm.Status)
	}

	acc, err := s.partyRepo.GetACC(ctx, batch.AccID)
	if err != nil {
		return nil, err
	}

	var discount *model.DiscountCode
	if batch.DiscountCodeID != nil {
		discount, err = repository.NewDiscountRepository(s.db).GetByID(ctx, *batch.DiscountCodeID)
		if err != nil {
			return nil, err
		}
	}

	trans, err := s.transRepo.GetByID(ctx, batch.TransactionID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.completeBatch(ctx, tx, batch, trans, acc, discount, model.BatchStatusCompleted)
	})
	if err != nil {
		return nil, err
	}
	batch.PaymentStatus = model.BatchStatusCompleted

	return batchToResult(batch, "支付确认成功"), nil
}

// RefundPurchase 对已完成的信用卡批次全额退款
// 未使用的证书码一并作废；交易 COMPLETED -> REFUNDED 单向流转
func (s *PurchaseService) RefundPurchase(ctx context.Context, batchID, actorID int64) (*PurchaseResult, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.PaymentMethod != model.PaymentMethodCreditCard || batch.PaymentStatus != model.BatchStatusCompleted {
		return nil, ErrBatchNotRefundable
	}

	refund, err := s.gateway.Refund(ctx, batch.PaymentIntentID, decimal.Zero)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	if !refund.Success {
		return nil, &GatewayError{Err: errors.New(refund.ErrorMessage)}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transRepo.UpdateStatus(ctx, tx, batch.TransactionID, model.TransactionStatusCompleted, model.TransactionStatusRefunded); err != nil {
			return fmt.Errorf("更新交易状态失败: %w", err)
		}

		expired, err := s.codeRepo.ExpireAvailableByBatch(ctx, tx, batch.ID)
		if err != nil {
			return fmt.Errorf("作废证书码失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"event":         model.EventPurchaseRefunded,
			"batch_id":      batch.ID,
			"refund_id":     refund.RefundID,
			"expired_codes": expired,
			"actor_id":      actorID,
			"refunded_at":   time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: batch.BatchNo,
			Topic:      s.cfg.Kafka.Topic.Notification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("批次退款完成: batchNo=%s, refundID=%s", batch.BatchNo, refund.RefundID)
	return batchToResult(batch, "退款成功"), nil
}

// GetBatch 批次详情
func (s *PurchaseService) GetBatch(ctx context.Context, batchID int64) (*model.CodeBatch, error) {
	return s.batchRepo.GetByID(ctx, batchID)
}

// ListBatches 培训中心批次列表
func (s *PurchaseService) ListBatches(ctx context.Context, tcID int64, page, pageSize int) ([]*model.CodeBatch, int64, error) {
	return s.batchRepo.ListByTrainingCenter(ctx, tcID, page, pageSize)
}

// completeBatch 批次完成的共同路径：铸码 + 状态流转 + 折扣消耗 + 台账 + 通知
// 信用卡同步完成、webhook 确认、线下审批都走这一段，保证算法与副作用一致
func (s *PurchaseService) completeBatch(ctx context.Context, tx *gorm.DB, batch *model.CodeBatch, trans *model.Transaction, acc *model.AccreditationBody, discount *model.DiscountCode, targetStatus string) error {
	if _, err := s.codeRepo.MintBatchCodes(ctx, tx, batch, discount != nil, s.cfg.Business.CodeMintMaxAttempts); err != nil {
		return fmt.Errorf("铸造证书码失败: %w", err)
	}

	if err := s.batchRepo.UpdateStatus(ctx, tx, batch.ID, model.BatchStatusPending, targetStatus); err != nil {
		return err
	}

	if err := s.transRepo.UpdateStatus(ctx, tx, trans.ID, model.TransactionStatusPending, model.TransactionStatusCompleted); err != nil {
		return fmt.Errorf("更新交易状态失败: %w", err)
	}
	trans.Amount = batch.FinalAmount

	if discount != nil {
		if err := s.discountSvc.Consume(ctx, tx, discount); err != nil {
			return fmt.Errorf("消耗折扣码失败: %w", err)
		}
	}

	if _, err := s.settlementSvc.WriteLedgerEntry(ctx, tx, trans, acc, batch.TrainingCenterID); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"event":        model.EventCodePurchaseCompleted,
		"batch_id":     batch.ID,
		"batch_no":     batch.BatchNo,
		"acc_id":       batch.AccID,
		"tc_id":        batch.TrainingCenterID,
		"quantity":     batch.Quantity,
		"final_amount": batch.FinalAmount,
	})
	outboxMsg := &model.OutboxMessage{
		MessageKey: batch.BatchNo,
		Topic:      s.cfg.Kafka.Topic.Notification,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入通知消息失败: %w", err)
	}

	return nil
}

func (s *PurchaseService) newBatch(req *PurchaseRequest, calc *PriceCalculation) *model.CodeBatch {
	batch := &model.CodeBatch{
		BatchNo:          idgen.GenerateBatchNo(),
		RequestID:        req.RequestID,
		TrainingCenterID: req.TrainingCenterID,
		AccID:            req.AccID,
		CourseID:         req.CourseID,
		Quantity:         req.Quantity,
		TotalAmount:      calc.TotalAmount,
		DiscountAmount:   calc.DiscountAmount,
		FinalAmount:      calc.FinalAmount,
		Currency:         calc.Currency,
		PaymentMethod:    req.PaymentMethod,
		PaymentStatus:    model.BatchStatusPending,
		PaymentIntentID:  req.PaymentIntentID,
	}
	if calc.Discount != nil {
		id := calc.Discount.ID
		batch.DiscountCodeID = &id
	}
	return batch
}

func (s *PurchaseService) newPurchaseTransaction(req *PurchaseRequest, calc *PriceCalculation, batch *model.CodeBatch) *model.Transaction {
	return &model.Transaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		TransactionType:      model.TransactionTypeCodePurchase,
		PayerType:            model.PartyTypeTrainingCenter,
		PayerID:              req.TrainingCenterID,
		PayeeType:            model.PartyTypeGroup,
		PayeeID:              0,
		Amount:               calc.FinalAmount,
		Currency:             calc.Currency,
		PaymentMethod:        req.PaymentMethod,
		GatewayTransactionID: req.PaymentIntentID,
		Status:               model.TransactionStatusPending,
		ReferenceType:        model.ReferenceTypeCodeBatch,
		ReferenceID:          batch.ID,
	}
}

func batchToResult(batch *model.CodeBatch, message string) *PurchaseResult {
	return &PurchaseResult{
		BatchID:        batch.ID,
		BatchNo:        batch.BatchNo,
		PaymentStatus:  batch.PaymentStatus,
		Quantity:       batch.Quantity,
		TotalAmount:    batch.TotalAmount,
		DiscountAmount: batch.DiscountAmount,
		FinalAmount:    batch.FinalAmount,
		TransactionID:  batch.TransactionID,
		Message:        message,
	}
}
