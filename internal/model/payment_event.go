package model

import (
	"time"
)

// 支付事件处理结果。事件一旦记录终态即不可变，
// event_id 是幂等键：重复投递同一事件返回首次记录的结果
const (
	EventOutcomeCredited   = "credited"   // 终态：已入账
	EventOutcomeRejected   = "rejected"   // 终态：签名校验失败，未触碰账本
	EventOutcomeUnresolved = "unresolved" // 终态：许可证不存在，待人工处理
	EventOutcomeDeferred   = "deferred"   // 中间态：已确认接收，入账交给 worker
)

type PaymentEvent struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	EventID      string    `gorm:"size:100;uniqueIndex;not null" json:"event_id"` // 支付处理器提供的全局唯一 ID
	LicenseKey   string    `gorm:"size:32;not null;index" json:"license_key"`
	HoursCredit  Hours     `gorm:"not null" json:"hours_credited"`
	Outcome      string    `gorm:"size:20;not null;index" json:"outcome"`
	PayloadJSON  string    `gorm:"type:text" json:"-"` // 原始报文，供审计归档
	Attempts     int       `gorm:"default:0" json:"attempts"`
	ReceivedAt   time.Time `gorm:"not null" json:"received_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}

// IsTerminal 判断事件是否已到终态
func (e *PaymentEvent) IsTerminal() bool {
	switch e.Outcome {
	case EventOutcomeCredited, EventOutcomeRejected, EventOutcomeUnresolved:
		return true
	}
	return false
}
