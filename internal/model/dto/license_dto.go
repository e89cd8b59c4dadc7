package dto

// CreateLicenseRequest 许可证注册请求
type CreateLicenseRequest struct {
	OwnerName    string  `json:"owner_name" binding:"required,min=1,max=100"`
	OwnerEmail   string  `json:"owner_email" binding:"required,email"`
	OwnerCompany string  `json:"owner_company" binding:"omitempty,max=200"`
	Tier         string  `json:"tier" binding:"required,oneof=trial paid"`
	DurationDays int     `json:"duration_days" binding:"omitempty,min=0,max=3650"` // 0 表示永久
	InitialHours float64 `json:"initial_hours" binding:"omitempty,min=0"`
}

// LicenseInfo 许可证信息（返回给客户端）
type LicenseInfo struct {
	Key          string `json:"key"`
	OwnerName    string `json:"owner_name"`
	OwnerEmail   string `json:"owner_email"`
	OwnerCompany string `json:"owner_company,omitempty"`
	Tier         string `json:"tier"`
	Status       string `json:"status"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// BalanceInfo 余额查询响应
type BalanceInfo struct {
	LicenseKey     string  `json:"license_key"`
	HoursPurchased float64 `json:"hours_purchased"`
	HoursUsed      float64 `json:"hours_used"`
	HoursRemaining float64 `json:"hours_remaining"`
}
