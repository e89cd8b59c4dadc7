package dto

// StartSessionRequest 开启计费会话请求
type StartSessionRequest struct {
	AdmissionToken string `json:"admission_token" binding:"required"`
	Operation      string `json:"operation" binding:"omitempty,max=100"` // download, convert, analyze 等
}

// SessionInfo 会话信息
type SessionInfo struct {
	SessionID   int64   `json:"session_id"`
	LicenseKey  string  `json:"license_key"`
	Operation   string  `json:"operation,omitempty"`
	StartedAt   string  `json:"started_at"`
	EndedAt     string  `json:"ended_at,omitempty"`
	BilledHours float64 `json:"billed_hours,omitempty"`
	Swept       bool    `json:"swept,omitempty"`
}

// StopSessionResponse 关闭会话响应
type StopSessionResponse struct {
	SessionID      int64   `json:"session_id"`
	BilledHours    float64 `json:"billed_hours"`
	HoursRemaining float64 `json:"hours_remaining"`
}
