package model

import (
	"time"
)

// Balance 许可证的小时数余额，仅保存两个单调递增计数器，
// 剩余小时数始终由 purchased - used 推导，不单独落库
type Balance struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	LicenseKey     string    `gorm:"size:32;uniqueIndex;not null" json:"license_key"`
	HoursPurchased Hours     `gorm:"not null;default:0" json:"hours_purchased"`
	HoursUsed      Hours     `gorm:"not null;default:0" json:"hours_used"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}

// Remaining 剩余小时数，下限为 0
func (b *Balance) Remaining() Hours {
	remaining := b.HoursPurchased - b.HoursUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// 余额流水类型
const (
	TxnTypeCredit = "credit"
	TxnTypeDebit  = "debit"
	TxnTypeSweep  = "sweep"
)

// BalanceTxn 余额变动流水，用于对账审计
type BalanceTxn struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	LicenseKey  string    `gorm:"size:32;not null;index" json:"license_key"`
	Type        string    `gorm:"size:20;not null" json:"type"` // credit, debit, sweep
	Hours       Hours     `gorm:"not null" json:"hours"`
	ReferenceID string    `gorm:"size:100" json:"reference_id,omitempty"` // event_id 或 session_id
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (BalanceTxn) TableName() string {
	return "balance_txns"
}
