package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
)

var keySeq int64

// NextKey 生成唯一的合法格式测试密钥
func NextKey() string {
	n := atomic.AddInt64(&keySeq, 1)
	return fmt.Sprintf("RL-%08d-%08d-TESTKEY0", n, n)
}

// TestLicense 创建测试许可证（附带零余额记录）
func TestLicense(t *testing.T, db *gorm.DB, opts ...func(*model.License)) *model.License {
	t.Helper()

	license := &model.License{
		Key:        NextKey(),
		OwnerName:  "Test Owner",
		OwnerEmail: fmt.Sprintf("owner_%d@example.com", time.Now().UnixNano()),
		Tier:       model.LicenseTierTrial,
		Status:     model.LicenseStatusActive,
	}

	for _, opt := range opts {
		opt(license)
	}

	if err := db.Create(license).Error; err != nil {
		t.Fatalf("Failed to create test license: %v", err)
	}

	if err := db.Create(&model.Balance{LicenseKey: license.Key}).Error; err != nil {
		t.Fatalf("Failed to create test balance: %v", err)
	}

	return license
}

// WithKey 设置密钥
func WithKey(key string) func(*model.License) {
	return func(l *model.License) {
		l.Key = key
	}
}

// WithTier 设置等级
func WithTier(tier string) func(*model.License) {
	return func(l *model.License) {
		l.Tier = tier
	}
}

// WithStatus 设置状态
func WithStatus(status string) func(*model.License) {
	return func(l *model.License) {
		l.Status = status
	}
}

// WithExpiry 设置过期时间
func WithExpiry(expiresAt time.Time) func(*model.License) {
	return func(l *model.License) {
		l.ExpiresAt = &expiresAt
	}
}

// CreditBalance 直接为测试许可证充值
func CreditBalance(t *testing.T, db *gorm.DB, licenseKey string, hours model.Hours) {
	t.Helper()

	err := db.Model(&model.Balance{}).Where("license_key = ?", licenseKey).
		Update("hours_purchased", gorm.Expr("hours_purchased + ?", int64(hours))).Error
	if err != nil {
		t.Fatalf("Failed to credit test balance: %v", err)
	}
}

// TestSession 创建测试会话
func TestSession(t *testing.T, db *gorm.DB, licenseKey string, startedAt time.Time) *model.UsageSession {
	t.Helper()

	session := &model.UsageSession{
		LicenseKey: licenseKey,
		Operation:  "download",
		StartedAt:  startedAt,
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return session
}

// TestEvent 创建测试支付事件
func TestEvent(t *testing.T, db *gorm.DB, eventID, licenseKey string, hours model.Hours, outcome string) *model.PaymentEvent {
	t.Helper()

	event := &model.PaymentEvent{
		EventID:     eventID,
		LicenseKey:  licenseKey,
		HoursCredit: hours,
		Outcome:     outcome,
		ReceivedAt:  time.Now().UTC(),
	}

	if err := db.Create(event).Error; err != nil {
		t.Fatalf("Failed to create test event: %v", err)
	}

	return event
}
