package handler

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/response"
	"github.com/qs3c/license_go_server/internal/service"
)

// SignatureHeader 支付处理器在该请求头携带 HMAC-SHA256 签名（十六进制）
const SignatureHeader = "X-Signature"

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// HandlePayment 支付回调入口。签名对原始报文计算，
// 必须在 JSON 解析之前读取完整 body
// POST /api/v1/webhooks/payment
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ParamError(c, "")
		return
	}

	if !h.webhookService.VerifySignature(body, c.GetHeader(SignatureHeader)) {
		response.SignatureError(c, "")
		return
	}

	var payload dto.PaymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.ParamError(c, "报文格式错误")
		return
	}
	if payload.EventID == "" || payload.LicenseKey == "" || payload.Hours <= 0 {
		response.ParamError(c, "报文字段缺失或非法")
		return
	}

	result, err := h.webhookService.Handle(c.Request.Context(), &payload, body)
	if err != nil {
		// 事件未能落库，返回 5xx 让支付处理器稍后重投
		c.JSON(500, response.Response{
			Code:    response.CodeServerError,
			Message: "服务器内部错误",
		})
		return
	}

	// credited / deferred / unresolved / 重复投递都应答 200，
	// 事件已被持久化，重投不会带来新信息
	response.Success(c, result)
}
