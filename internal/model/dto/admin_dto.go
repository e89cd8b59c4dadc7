package dto

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Token string `json:"token"`
}

// FlagsResponse 待人工审核项列表
type FlagsResponse struct {
	Licenses []LicenseFlag  `json:"licenses"`
	Sessions []*SessionInfo `json:"sessions"`
}

// LicenseFlag 被标记的许可证
type LicenseFlag struct {
	Key        string `json:"key"`
	FlagReason string `json:"flag_reason"`
	FlaggedAt  string `json:"flagged_at"`
}

// SweepResponse 手动清扫响应
type SweepResponse struct {
	SweptSessions int `json:"swept_sessions"`
}
