package handler

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"certmarket/internal/config"
	"certmarket/internal/infrastructure/payment"
	"certmarket/internal/model"
	"certmarket/internal/repository"
	"certmarket/internal/service"
	"certmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	gateway       payment.Gateway
	purchaseSvc   *service.PurchaseService
	approvalSvc   *service.ApprovalService
	transferSvc   *service.TransferService
	pricingSvc    *service.PricingService
	discountSvc   *service.DiscountService
	settlementSvc *service.SettlementService
	codeSvc       *service.CodeService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gateway payment.Gateway) *Handler {
	purchaseSvc := service.NewPurchaseService(db, rdb, cfg, gateway)
	return &Handler{
		gateway:       gateway,
		purchaseSvc:   purchaseSvc,
		approvalSvc:   service.NewApprovalService(db, rdb, cfg, purchaseSvc),
		transferSvc:   service.NewTransferService(db, rdb, cfg, gateway),
		pricingSvc:    service.NewPricingService(db),
		discountSvc:   service.NewDiscountService(db),
		settlementSvc: service.NewSettlementService(db, cfg),
		codeSvc:       service.NewCodeService(db),
	}
}

// actorID 从请求头取操作者，审批/退款/重试等人工操作必须携带
func actorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeServiceError 把服务层错误映射成业务错误码
func writeServiceError(c *gin.Context, err error) {
	var discountErr *service.DiscountInvalidError
	var mismatchErr *service.AmountMismatchError
	var gatewayErr *service.GatewayError

	switch {
	case errors.Is(err, repository.ErrACCNotFound):
		response.BusinessError(c, response.CodeACCNotFound, err.Error())
	case errors.Is(err, service.ErrACCInactive):
		response.BusinessError(c, response.CodeACCInactive, err.Error())
	case errors.Is(err, service.ErrNotAuthorized):
		response.BusinessError(c, response.CodeNotAuthorized, err.Error())
	case errors.Is(err, repository.ErrPricingNotFound):
		response.BusinessError(c, response.CodePricingNotFound, err.Error())
	case errors.As(err, &discountErr):
		response.BusinessErrorData(c, response.CodeDiscountInvalid, discountErr.Error(), gin.H{
			"reason": discountErr.Reason,
		})
	case errors.Is(err, repository.ErrDiscountDepleted):
		response.BusinessError(c, response.CodeDiscountInvalid, err.Error())
	case errors.As(err, &mismatchErr):
		response.BusinessErrorData(c, response.CodeAmountMismatch, mismatchErr.Error(), gin.H{
			"expected": mismatchErr.Expected,
			"provided": mismatchErr.Provided,
		})
	case errors.Is(err, repository.ErrBatchNotFound):
		response.BusinessError(c, response.CodeBatchNotFound, err.Error())
	case errors.Is(err, repository.ErrBatchAlreadyProcessed), errors.Is(err, service.ErrBatchNotPending):
		response.BusinessError(c, response.CodeBatchAlreadyProcessed, err.Error())
	case errors.Is(err, repository.ErrCodeNotFound), errors.Is(err, repository.ErrCodeNotAvailable):
		response.BusinessError(c, response.CodeCodeNotAvailable, err.Error())
	case errors.Is(err, service.ErrTransferNotRetryable):
		response.BusinessError(c, response.CodeTransferNotRetryable, err.Error())
	case errors.Is(err, repository.ErrTransferNotClaimable):
		response.BusinessError(c, response.CodeConcurrencyError, err.Error())
	case errors.Is(err, service.ErrPaymentVerificationFailed):
		response.BusinessError(c, response.CodePaymentVerificationError, err.Error())
	case errors.As(err, &gatewayErr):
		response.BusinessError(c, response.CodeGatewayError, gatewayErr.Error())
	case errors.Is(err, service.ErrQuantityInvalid),
		errors.Is(err, service.ErrPaymentMethodInvalid),
		errors.Is(err, service.ErrPaymentIntentRequired),
		errors.Is(err, service.ErrReceiptRequired),
		errors.Is(err, service.ErrRejectReasonMissing),
		errors.Is(err, service.ErrBatchNotManual),
		errors.Is(err, service.ErrBatchNotRefundable),
		errors.Is(err, service.ErrDiscountFieldsInvalid),
		errors.Is(err, service.ErrPricingWindowInvalid):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 购买相关接口
// ============================================================

// CreateIntentRequest 创建支付意图请求
type CreateIntentRequest struct {
	RequestID        string `json:"request_id" binding:"required"`
	TrainingCenterID int64  `json:"training_center_id" binding:"required"`
	AccID            int64  `json:"acc_id" binding:"required"`
	CourseID         int64  `json:"course_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required,gt=0"`
	DiscountCode     string `json:"discount_code"`
}

// CreateIntent 创建支付意图（信用卡支付第一步）
// POST /api/v1/purchase/intent
func (h *Handler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	intent, calc, err := h.purchaseSvc.CreatePaymentIntent(c.Request.Context(), &service.PurchaseRequest{
		RequestID:        req.RequestID,
		TrainingCenterID: req.TrainingCenterID,
		AccID:            req.AccID,
		CourseID:         req.CourseID,
		Quantity:         req.Quantity,
		DiscountCode:     req.DiscountCode,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"intent_id":       intent.IntentID,
		"client_secret":   intent.ClientSecret,
		"total_amount":    calc.TotalAmount,
		"discount_amount": calc.DiscountAmount,
		"final_amount":    calc.FinalAmount,
		"currency":        calc.Currency,
	})
}

// PurchaseRequest 批量购买请求
type PurchaseRequest struct {
	RequestID         string           `json:"request_id" binding:"required"`
	TrainingCenterID  int64            `json:"training_center_id" binding:"required"`
	AccID             int64            `json:"acc_id" binding:"required"`
	CourseID          int64            `json:"course_id" binding:"required"`
	Quantity          int              `json:"quantity" binding:"required,gt=0"`
	DiscountCode      string           `json:"discount_code"`
	PaymentMethod     string           `json:"payment_method" binding:"required"`
	PaymentIntentID   string           `json:"payment_intent_id"`
	PaymentReceiptURL string           `json:"payment_receipt_url"`
	PaymentAmount     *decimal.Decimal `json:"payment_amount"`
}

// ExecutePurchase 执行购买
// POST /api/v1/purchase/execute
//
// 【关键点】购买是整个系统最核心的操作：
// 1. 幂等性：相同的 request_id 只会创建一个批次
// 2. 原子性：批次、证书码、交易、台账同事务落库
// 3. 信用卡支付落库前必须回查网关
func (h *Handler) ExecutePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseSvc.ProcessPurchase(c.Request.Context(), &service.PurchaseRequest{
		RequestID:         req.RequestID,
		TrainingCenterID:  req.TrainingCenterID,
		AccID:             req.AccID,
		CourseID:          req.CourseID,
		Quantity:          req.Quantity,
		DiscountCode:      req.DiscountCode,
		PaymentMethod:     req.PaymentMethod,
		PaymentIntentID:   req.PaymentIntentID,
		PaymentReceiptURL: req.PaymentReceiptURL,
		PaymentAmount:     req.PaymentAmount,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// RefundPurchase 退款
// POST /api/v1/purchase/refund
func (h *Handler) RefundPurchase(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		response.ParamError(c, "缺少 X-Actor-ID 请求头")
		return
	}

	var req struct {
		BatchID int64 `json:"batch_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseSvc.RefundPurchase(c.Request.Context(), req.BatchID, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 支付回调
// ============================================================

// webhookEvent Stripe 风格的回调事件体
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// PaymentWebhook 网关回调
// POST /api/v1/payment/webhook
//
// 【关键点】验签不过的回调一律丢弃；重复回调是无副作用的空操作
func (h *Handler) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ParamError(c, "读取请求体失败")
		return
	}

	if !h.gateway.VerifyWebhookSignature(payload, c.GetHeader("Stripe-Signature")) {
		response.Error(c, response.CodeUnauthorized, "签名校验失败")
		return
	}

	// body 已整体读出用于验签，手动反序列化
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		response.ParamError(c, "事件体解析失败")
		return
	}

	if event.Type != "payment_intent.succeeded" {
		// 其他事件类型确认收到即可
		response.Success(c, gin.H{"received": true})
		return
	}

	result, err := h.purchaseSvc.ConfirmCardPayment(c.Request.Context(), event.Data.Object.ID)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			// 意图尚未关联任何批次，确认收到，等客户端完成购买
			response.Success(c, gin.H{"received": true})
			return
		}
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ConfirmPayment 客户端主动确认支付
// POST /api/v1/payment/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"payment_intent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseSvc.ConfirmCardPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 批次相关接口
// ============================================================

// GetBatch 批次详情
// GET /api/v1/batch/detail?batch_id=xxx
func (h *Handler) GetBatch(c *gin.Context) {
	batchID, err := strconv.ParseInt(c.Query("batch_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "batch_id 参数错误")
		return
	}

	batch, err := h.purchaseSvc.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, batch)
}

// ListBatches 培训中心批次列表
// GET /api/v1/batch/list?training_center_id=xxx&page=1&page_size=10
func (h *Handler) ListBatches(c *gin.Context) {
	tcID, err := strconv.ParseInt(c.Query("training_center_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "training_center_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	batches, total, err := h.purchaseSvc.ListBatches(c.Request.Context(), tcID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      batches,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListPendingBatches 认证机构待审核队列
// GET /api/v1/batch/pending?acc_id=xxx&page=1&page_size=10
func (h *Handler) ListPendingBatches(c *gin.Context) {
	accID, err := strconv.ParseInt(c.Query("acc_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "acc_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	batches, total, err := h.approvalSvc.ListPending(c.Request.Context(), accID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      batches,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ApproveBatchRequest 审核通过请求
type ApproveBatchRequest struct {
	BatchID         int64           `json:"batch_id" binding:"required"`
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount" binding:"required"`
}

// ApproveBatch 线下付款审核通过
// POST /api/v1/batch/approve
//
// 【关键点】审核员确认的到账金额必须与应付金额一致，
// 不符时返回两边金额，批次保持待审核
func (h *Handler) ApproveBatch(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		response.ParamError(c, "缺少 X-Actor-ID 请求头")
		return
	}

	var req ApproveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.approvalSvc.Approve(c.Request.Context(), req.BatchID, actor, req.ConfirmedAmount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// RejectBatchRequest 驳回请求
type RejectBatchRequest struct {
	BatchID int64  `json:"batch_id" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

// RejectBatch 线下付款驳回
// POST /api/v1/batch/reject
func (h *Handler) RejectBatch(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		response.ParamError(c, "缺少 X-Actor-ID 请求头")
		return
	}

	var req RejectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.approvalSvc.Reject(c.Request.Context(), req.BatchID, actor, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 证书码相关接口
// ============================================================

// ListBatchCodes 批次内证书码
// GET /api/v1/code/list?batch_id=xxx
func (h *Handler) ListBatchCodes(c *gin.Context) {
	batchID, err := strconv.ParseInt(c.Query("batch_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "batch_id 参数错误")
		return
	}

	codes, err := h.codeSvc.ListBatchCodes(c.Request.Context(), batchID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  codes,
		"total": len(codes),
	})
}

// GetCode 证书码详情
// GET /api/v1/code/detail?code=xxx
func (h *Handler) GetCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "code 参数不能为空")
		return
	}

	detail, err := h.codeSvc.GetCode(c.Request.Context(), code)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, detail)
}

// UseCodeRequest 兑换请求
type UseCodeRequest struct {
	Code          string `json:"code" binding:"required"`
	CertificateID int64  `json:"certificate_id" binding:"required"`
}

// UseCode 用证书码兑换证书
// POST /api/v1/code/use
func (h *Handler) UseCode(c *gin.Context) {
	var req UseCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	code, err := h.codeSvc.UseCode(c.Request.Context(), req.Code, req.CertificateID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, code)
}

// CountAvailableCodes 培训中心剩余可用码数
// GET /api/v1/code/available?training_center_id=xxx&acc_id=xxx&course_id=xxx
func (h *Handler) CountAvailableCodes(c *gin.Context) {
	tcID, err1 := strconv.ParseInt(c.Query("training_center_id"), 10, 64)
	accID, err2 := strconv.ParseInt(c.Query("acc_id"), 10, 64)
	courseID, err3 := strconv.ParseInt(c.Query("course_id"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		response.ParamError(c, "参数错误")
		return
	}

	count, err := h.codeSvc.CountAvailable(c.Request.Context(), tcID, accID, courseID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{"available": count})
}

// ============================================================
// 定价与折扣接口
// ============================================================

// CreatePricingRequest 新增定价请求
type CreatePricingRequest struct {
	CourseID      int64           `json:"course_id" binding:"required"`
	AccID         int64           `json:"acc_id" binding:"required"`
	BasePrice     decimal.Decimal `json:"base_price" binding:"required"`
	Currency      string          `json:"currency" binding:"required"`
	EffectiveFrom time.Time       `json:"effective_from" binding:"required"`
	EffectiveTo   *time.Time      `json:"effective_to"`
}

// CreatePricing 新增课程定价
// POST /api/v1/pricing/create
func (h *Handler) CreatePricing(c *gin.Context) {
	var req CreatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	pricing := &model.CoursePricing{
		CourseID:      req.CourseID,
		AccID:         req.AccID,
		BasePrice:     req.BasePrice,
		Currency:      req.Currency,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	}
	if err := h.pricingSvc.CreatePricing(c.Request.Context(), pricing); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, pricing)
}

// ResolvePricing 查询生效定价
// GET /api/v1/pricing/resolve?course_id=xxx&acc_id=xxx
func (h *Handler) ResolvePricing(c *gin.Context) {
	courseID, err1 := strconv.ParseInt(c.Query("course_id"), 10, 64)
	accID, err2 := strconv.ParseInt(c.Query("acc_id"), 10, 64)
	if err1 != nil || err2 != nil {
		response.ParamError(c, "参数错误")
		return
	}

	pricing, err := h.pricingSvc.Resolve(c.Request.Context(), courseID, accID, time.Now())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, pricing)
}

// CreateDiscountRequest 创建折扣码请求
type CreateDiscountRequest struct {
	AccID              int64           `json:"acc_id" binding:"required"`
	Code               string          `json:"code" binding:"required"`
	DiscountType       string          `json:"discount_type" binding:"required"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" binding:"required"`
	StartDate          *time.Time      `json:"start_date"`
	EndDate            *time.Time      `json:"end_date"`
	TotalQuantity      int             `json:"total_quantity"`
	ApplicableCourses  string          `json:"applicable_courses"`
}

// CreateDiscount 创建折扣码
// POST /api/v1/discount/create
func (h *Handler) CreateDiscount(c *gin.Context) {
	var req CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	dc := &model.DiscountCode{
		AccID:              req.AccID,
		Code:               req.Code,
		DiscountType:       req.DiscountType,
		DiscountPercentage: req.DiscountPercentage,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		TotalQuantity:      req.TotalQuantity,
		ApplicableCourses:  req.ApplicableCourses,
	}
	if err := h.discountSvc.CreateDiscount(c.Request.Context(), dc); err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, dc)
}

// ValidateDiscountRequest 折扣码校验请求
type ValidateDiscountRequest struct {
	Code     string `json:"code" binding:"required"`
	AccID    int64  `json:"acc_id" binding:"required"`
	CourseID int64  `json:"course_id" binding:"required"`
}

// ValidateDiscount 校验折扣码（只读，不消耗额度）
// POST /api/v1/discount/validate
func (h *Handler) ValidateDiscount(c *gin.Context) {
	var req ValidateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.discountSvc.Validate(c.Request.Context(), req.Code, req.AccID, req.CourseID, time.Now())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 结算与转账接口
// ============================================================

// ListLedger 机构分成台账
// GET /api/v1/ledger/list?acc_id=xxx&status=PENDING&page=1&page_size=10
func (h *Handler) ListLedger(c *gin.Context) {
	accID, err := strconv.ParseInt(c.Query("acc_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "acc_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.settlementSvc.ListLedger(c.Request.Context(), accID, c.Query("status"), page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// RunSettlementRequest 手动结算请求
type RunSettlementRequest struct {
	AccID int64 `json:"acc_id" binding:"required"`
	Year  int   `json:"year" binding:"required"`
	Month int   `json:"month" binding:"required,gte=1,lte=12"`
}

// RunSettlement 手动触发某机构某月结算（补结算用）
// POST /api/v1/settlement/run
func (h *Handler) RunSettlement(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		response.ParamError(c, "缺少 X-Actor-ID 请求头")
		return
	}

	var req RunSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.settlementSvc.SettleMonth(c.Request.Context(), req.AccID, req.Year, time.Month(req.Month), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// RetryTransfer 人工触发转账重试
// POST /api/v1/transfer/retry
func (h *Handler) RetryTransfer(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		response.ParamError(c, "缺少 X-Actor-ID 请求头")
		return
	}

	var req struct {
		TransferID int64 `json:"transfer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.transferSvc.Retry(c.Request.Context(), req.TransferID, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// GetTransfer 转账单详情
// GET /api/v1/transfer/detail?transfer_id=xxx
func (h *Handler) GetTransfer(c *gin.Context) {
	transferID, err := strconv.ParseInt(c.Query("transfer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "transfer_id 参数错误")
		return
	}

	transfer, err := h.transferSvc.GetTransfer(c.Request.Context(), transferID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, transfer)
}

// ListTransfers 收款方转账列表
// GET /api/v1/transfer/list?payee_type=ACC&payee_id=xxx&page=1&page_size=10
func (h *Handler) ListTransfers(c *gin.Context) {
	payeeID, err := strconv.ParseInt(c.Query("payee_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "payee_id 参数错误")
		return
	}
	payeeType := c.DefaultQuery("payee_type", model.PartyTypeACC)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transfers, total, err := h.transferSvc.ListByPayee(c.Request.Context(), payeeType, payeeID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transfers,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
