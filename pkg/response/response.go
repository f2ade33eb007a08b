package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
// 策略类错误（2xxx）与网关/并发类错误（3xxx）分开，
// 调用方据此判断是否可重试
const (
	CodeACCNotFound           = 2001
	CodeACCInactive           = 2002
	CodeNotAuthorized         = 2003
	CodePricingNotFound       = 2004
	CodeDiscountInvalid       = 2005
	CodeAmountMismatch        = 2006
	CodeBatchNotFound         = 2007
	CodeBatchAlreadyProcessed = 2008
	CodeDuplicateRequest      = 2009
	CodeCodeNotAvailable      = 2010
	CodeTransferNotRetryable  = 2011

	CodeGatewayError             = 3001
	CodePaymentVerificationError = 3002
	CodeConcurrencyError         = 3003
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// BusinessErrorData 携带附加数据的业务错误（如金额不匹配时返回期望值与实际值）
func BusinessErrorData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
