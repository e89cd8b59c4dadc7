package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess             = 0
	CodeParamError          = 1000
	CodeAuthFailed          = 1001
	CodePermissionDenied    = 1002
	CodeResourceNotFound    = 1003
	CodeInsufficientBalance = 1004
	CodeMalformedKey        = 1005
	CodeLicenseInactive     = 1006
	CodeSignatureInvalid    = 1007
	CodeServerError         = 5000
	CodeServiceUnavailable  = 5001
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:             "success",
	CodeParamError:          "参数错误",
	CodeAuthFailed:          "认证失败",
	CodePermissionDenied:    "权限不足",
	CodeResourceNotFound:    "资源不存在",
	CodeInsufficientBalance: "剩余小时数不足",
	CodeMalformedKey:        "许可证密钥格式错误",
	CodeLicenseInactive:     "许可证已停用或吊销",
	CodeSignatureInvalid:    "签名校验失败",
	CodeServerError:         "服务器内部错误",
	CodeServiceUnavailable:  "服务暂时不可用，请稍后重试",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// BalanceError 余额不足
func BalanceError(c *gin.Context, message string) {
	Error(c, CodeInsufficientBalance, message)
}

// MalformedKeyError 密钥格式错误
func MalformedKeyError(c *gin.Context, message string) {
	Error(c, CodeMalformedKey, message)
}

// LicenseInactiveError 许可证已停用或吊销
func LicenseInactiveError(c *gin.Context, message string) {
	Error(c, CodeLicenseInactive, message)
}

// SignatureError 签名校验失败。回调场景下返回非 2xx，
// 让支付处理器按失败重试
func SignatureError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeSignatureInvalid]
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code:    CodeSignatureInvalid,
		Message: message,
		Data:    nil,
	})
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// UnavailableError 服务暂时不可用
func UnavailableError(c *gin.Context, message string) {
	Error(c, CodeServiceUnavailable, message)
}
