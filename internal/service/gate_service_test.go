package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/jwt"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/testutil"
)

func setupGate(t *testing.T, cfg *config.Config) (*GateService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	registrySvc := NewRegistryService(licenseRepo, balanceRepo, nil, cfg)
	ledgerSvc := NewLedgerService(balanceRepo, licenseRepo, nil, nil, cfg)
	return NewGateService(registrySvc, ledgerSvc, rdb, cfg), db
}

func TestGateService_Check_Allowed(t *testing.T) {
	svc, db := setupGate(t, testConfig())
	license := testutil.TestLicense(t, db)
	testutil.CreditBalance(t, db, license.Key, model.HoursFromFloat(5))

	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, dto.ReasonOK, decision.Reason)
	assert.InDelta(t, 5.0, decision.HoursRemaining, 0.001)

	// 准入令牌可用于开启会话
	claims, err := jwt.ParseAdmissionToken(decision.AdmissionToken, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, license.Key, claims.LicenseKey)
}

func TestGateService_Check_MalformedKey(t *testing.T) {
	svc, _ := setupGate(t, testConfig())

	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: "not-a-key"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonMalformedKey, decision.Reason)
	assert.False(t, decision.Retryable)
	assert.Empty(t, decision.AdmissionToken)
}

func TestGateService_Check_NotFound(t *testing.T) {
	svc, _ := setupGate(t, testConfig())

	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{
		LicenseKey: "RL-AAAAAAAA-BBBBBBBB-CCCCCCCC",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonLicenseNotFound, decision.Reason)
}

func TestGateService_Check_StatusDenials(t *testing.T) {
	svc, db := setupGate(t, testConfig())

	suspended := testutil.TestLicense(t, db, testutil.WithStatus(model.LicenseStatusSuspended))
	revoked := testutil.TestLicense(t, db, testutil.WithStatus(model.LicenseStatusRevoked))
	expired := testutil.TestLicense(t, db, testutil.WithExpiry(time.Now().UTC().Add(-time.Hour)))

	cases := []struct {
		key    string
		reason string
	}{
		{suspended.Key, dto.ReasonLicenseSuspended},
		{revoked.Key, dto.ReasonLicenseRevoked},
		{expired.Key, dto.ReasonLicenseExpired},
	}
	for _, tc := range cases {
		decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: tc.key})
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, tc.reason, decision.Reason)
		assert.False(t, decision.Retryable)
	}
}

func TestGateService_Check_NoHoursRemaining(t *testing.T) {
	svc, db := setupGate(t, testConfig())
	license := testutil.TestLicense(t, db) // 零余额

	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonNoHoursRemaining, decision.Reason)
}

func TestGateService_Check_EstimatedHours(t *testing.T) {
	svc, db := setupGate(t, testConfig())
	license := testutil.TestLicense(t, db)
	testutil.CreditBalance(t, db, license.Key, model.HoursFromFloat(2))

	// 预估成本超出余额：还没开会话就拒绝，避免中途被截断计费
	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{
		LicenseKey:     license.Key,
		EstimatedHours: 5,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonNoHoursRemaining, decision.Reason)

	// 余额覆盖得住预估则放行
	decision, err = svc.Check(context.Background(), &dto.CheckAccessRequest{
		LicenseKey:     license.Key,
		EstimatedHours: 1,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGateService_Check_PaymentNotEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.Enforcement.EnforcePayment = false
	svc, db := setupGate(t, cfg)
	license := testutil.TestLicense(t, db) // 零余额

	// 沙箱部署：零余额不拦截
	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGateService_Check_CacheHit(t *testing.T) {
	svc, db := setupGate(t, testConfig())
	license := testutil.TestLicense(t, db)
	testutil.CreditBalance(t, db, license.Key, model.HoursFromFloat(5))

	_, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)

	// 缓存生效期间直接改库不影响结果
	require.NoError(t, db.Model(&model.License{}).Where("`key` = ?", license.Key).
		Update("status", model.LicenseStatusSuspended).Error)

	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// 显式失效后立即看到新状态
	svc.InvalidateCache(context.Background(), license.Key)
	decision, err = svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonLicenseSuspended, decision.Reason)
}

func TestGateService_Check_FailurePolicy(t *testing.T) {
	cfg := testConfig()
	svc, db := setupGate(t, cfg)
	license := testutil.TestLicense(t, db)
	testutil.CreditBalance(t, db, license.Key, model.HoursFromFloat(5))

	// 关闭底层数据库模拟注册中心不可达
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// fail_closed：拒绝且可重试
	decision, err := svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, dto.ReasonRegistryUnavailable, decision.Reason)
	assert.True(t, decision.Retryable)

	// fail_open：放行
	cfg.Enforcement.RequireLicenseServer = config.FailOpen
	decision, err = svc.Check(context.Background(), &dto.CheckAccessRequest{LicenseKey: license.Key})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.NotEmpty(t, decision.AdmissionToken)
}
