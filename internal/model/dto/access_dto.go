package dto

// CheckAccessRequest 准入检查请求
type CheckAccessRequest struct {
	LicenseKey     string  `json:"license_key" binding:"required"`
	EstimatedHours float64 `json:"estimated_hours" binding:"omitempty,min=0"` // 可选的操作预估成本
}

// 拒绝原因码。区分用户可自行解决的原因（充值、联系管理员）
// 与系统瞬时故障（稍后重试）
const (
	ReasonOK                  = "ok"
	ReasonMalformedKey        = "malformed_license_key"
	ReasonLicenseNotFound     = "license_not_found"
	ReasonLicenseSuspended    = "license_suspended"
	ReasonLicenseRevoked      = "license_revoked"
	ReasonLicenseExpired      = "license_expired"
	ReasonNoHoursRemaining    = "no_hours_remaining"
	ReasonRegistryUnavailable = "registry_unavailable"
)

// AccessDecision 准入决定。Allowed 为 true 时携带准入令牌，
// 检查本身不做任何状态变更
type AccessDecision struct {
	Allowed        bool    `json:"allowed"`
	Reason         string  `json:"reason"`
	Retryable      bool    `json:"retryable,omitempty"` // true 表示瞬时故障，客户端可稍后重试
	AdmissionToken string  `json:"admission_token,omitempty"`
	HoursRemaining float64 `json:"hours_remaining,omitempty"`
}
