package handler

import (
	"certmarket/internal/config"
	"certmarket/internal/infrastructure/payment"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gateway payment.Gateway) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, gateway)

	api := r.Group("/api/v1")
	{
		// 购买相关
		purchase := api.Group("/purchase")
		{
			purchase.POST("/intent", h.CreateIntent)
			purchase.POST("/execute", h.ExecutePurchase)
			purchase.POST("/refund", h.RefundPurchase)
		}

		// 支付回调与确认
		pay := api.Group("/payment")
		{
			pay.POST("/webhook", h.PaymentWebhook)
			pay.POST("/confirm", h.ConfirmPayment)
		}

		// 批次相关
		batch := api.Group("/batch")
		{
			batch.GET("/detail", h.GetBatch)
			batch.GET("/list", h.ListBatches)
			batch.GET("/pending", h.ListPendingBatches)
			batch.POST("/approve", h.ApproveBatch)
			batch.POST("/reject", h.RejectBatch)
		}

		// 证书码相关
		code := api.Group("/code")
		{
			code.GET("/list", h.ListBatchCodes)
			code.GET("/detail", h.GetCode)
			code.GET("/available", h.CountAvailableCodes)
			code.POST("/use", h.UseCode)
		}

		// 定价与折扣
		pricing := api.Group("/pricing")
		{
			pricing.POST("/create", h.CreatePricing)
			pricing.GET("/resolve", h.ResolvePricing)
		}
		discount := api.Group("/discount")
		{
			discount.POST("/create", h.CreateDiscount)
			discount.POST("/validate", h.ValidateDiscount)
		}

		// 结算与转账
		settlement := api.Group("/settlement")
		{
			settlement.POST("/run", h.RunSettlement)
		}
		transfer := api.Group("/transfer")
		{
			transfer.GET("/detail", h.GetTransfer)
			transfer.GET("/list", h.ListTransfers)
			transfer.POST("/retry", h.RetryTransfer)
		}

		// 台账
		ledger := api.Group("/ledger")
		{
			ledger.GET("/list", h.ListLedger)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
