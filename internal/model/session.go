package model

import (
	"time"
)

// UsageSession 一次计费工作单元：start 时创建，stop 时结算并扣费。
// EndedAt 为空表示会话仍在进行，关闭操作通过 CAS 更新保证恰好一次
type UsageSession struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	LicenseKey  string     `gorm:"size:32;not null;index" json:"license_key"`
	Operation   string     `gorm:"size:100" json:"operation,omitempty"` // download, convert, analyze 等
	StartedAt   time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt     *time.Time `gorm:"index" json:"ended_at,omitempty"`
	BilledHours *Hours     `json:"billed_hours,omitempty"` // 关闭时一次性写入
	Swept       bool       `gorm:"default:false;index" json:"swept"` // 由后台清扫强制关闭
	CreatedAt   time.Time  `json:"created_at"`
}

func (UsageSession) TableName() string {
	return "usage_sessions"
}

// IsOpen 判断会话是否仍在进行
func (s *UsageSession) IsOpen() bool {
	return s.EndedAt == nil
}
