package model

import (
	"regexp"
	"time"
)

// 许可证状态
const (
	LicenseStatusActive    = "active"
	LicenseStatusSuspended = "suspended"
	LicenseStatusRevoked   = "revoked"
)

// 许可证等级
const (
	LicenseTierTrial = "trial"
	LicenseTierPaid  = "paid"
)

// KeyPattern 许可证密钥格式：RL- 前缀 + 三段 8 位大写字母数字
var KeyPattern = regexp.MustCompile(`^RL-[A-Z0-9]{8}-[A-Z0-9]{8}-[A-Z0-9]{8}$`)

type License struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Key          string     `gorm:"size:32;uniqueIndex;not null" json:"key"`
	OwnerName    string     `gorm:"size:100;not null" json:"owner_name"`
	OwnerEmail   string     `gorm:"size:100;not null;index" json:"owner_email"`
	OwnerCompany string     `gorm:"size:200" json:"owner_company,omitempty"`
	Tier         string     `gorm:"size:20;not null;default:trial" json:"tier"`                 // trial, paid
	Status       string     `gorm:"size:20;not null;default:active;index" json:"status"`        // active, suspended, revoked
	FlagReason   string     `gorm:"size:200" json:"flag_reason,omitempty"`                      // 非空表示待人工审核
	FlaggedAt    *time.Time `json:"flagged_at,omitempty"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (License) TableName() string {
	return "licenses"
}

// IsExpired 判断许可证是否已过期（未设置过期时间视为永久有效）
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
