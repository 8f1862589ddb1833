package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeInsufficientCredits = 1001
	CodeInvitationExists    = 1002
	CodeWalletNotFound      = 1003
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

// PaymentRequired 积分不足专用：HTTP 402 + 结构化明细
// detail 形如 {error: "insufficient_credits", required, available, ...}
func PaymentRequired(c *gin.Context, detail interface{}) {
	c.JSON(http.StatusPaymentRequired, Response{
		Code:    CodeInsufficientCredits,
		Message: "积分不足，请升级套餐或邀请好友",
		Data:    detail,
	})
}
