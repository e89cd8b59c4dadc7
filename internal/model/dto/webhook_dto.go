package dto

// PaymentWebhookPayload 支付处理器回调报文。
// 在边界处完成校验，核心逻辑不接触原始 JSON
type PaymentWebhookPayload struct {
	EventID    string  `json:"event_id" binding:"required,max=100"`
	LicenseKey string  `json:"license_key" binding:"required"`
	Hours      float64 `json:"hours" binding:"required,gt=0"`
}

// WebhookResult 回调处理结果
type WebhookResult struct {
	EventID string  `json:"event_id"`
	Outcome string  `json:"outcome"` // credited, unresolved, deferred, rejected
	Hours   float64 `json:"hours,omitempty"`
}
