package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/testutil"
)

func setupWebhook(t *testing.T) (*WebhookService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	eventRepo := repository.NewEventRepository(db)

	registrySvc := NewRegistryService(licenseRepo, balanceRepo, nil, cfg)
	ledgerSvc := NewLedgerService(balanceRepo, licenseRepo, nil, nil, cfg)
	creditQueue := queue.NewQueue(rdb, cfg.Queue.CreditQueue)
	return NewWebhookService(eventRepo, ledgerSvc, registrySvc, creditQueue, nil, nil, cfg), db
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, eventID, licenseKey string, hours float64) (*dto.PaymentWebhookPayload, []byte) {
	t.Helper()
	payload := &dto.PaymentWebhookPayload{
		EventID:    eventID,
		LicenseKey: licenseKey,
		Hours:      hours,
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return payload, body
}

func TestWebhookService_VerifySignature(t *testing.T) {
	svc, _ := setupWebhook(t)
	body := []byte(`{"event_id":"evt_1"}`)

	assert.True(t, svc.VerifySignature(body, sign("hook-secret", body)))
	assert.False(t, svc.VerifySignature(body, sign("wrong-secret", body)))
	assert.False(t, svc.VerifySignature(body, ""))
	// 报文被篡改后原签名失效
	assert.False(t, svc.VerifySignature([]byte(`{"event_id":"evt_2"}`), sign("hook-secret", body)))
}

func TestWebhookService_Handle_Credited(t *testing.T) {
	svc, db := setupWebhook(t)
	license := testutil.TestLicense(t, db)

	payload, body := webhookBody(t, "evt_pay_1", license.Key, 25)
	result, err := svc.Handle(context.Background(), payload, body)
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeCredited, result.Outcome)
	assert.Equal(t, 25.0, result.Hours)

	balance, err := svc.ledgerSvc.GetBalance(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.HoursFromFloat(25), balance.Remaining())
}

func TestWebhookService_Handle_DuplicateDelivery(t *testing.T) {
	svc, db := setupWebhook(t)
	license := testutil.TestLicense(t, db)

	payload, body := webhookBody(t, "evt_pay_1", license.Key, 25)
	_, err := svc.Handle(context.Background(), payload, body)
	require.NoError(t, err)

	// 同一事件重投三次：应答首次结果，余额只增加一次
	for i := 0; i < 3; i++ {
		result, err := svc.Handle(context.Background(), payload, body)
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeCredited, result.Outcome)
	}

	balance, err := svc.ledgerSvc.GetBalance(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.HoursFromFloat(25), balance.Remaining())

	var count int64
	require.NoError(t, db.Model(&model.BalanceTxn{}).Where("license_key = ?", license.Key).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookService_Handle_CreditedOutcomeSurvivesDefer(t *testing.T) {
	svc, db := setupWebhook(t)
	license := testutil.TestLicense(t, db)
	ctx := context.Background()

	payload, body := webhookBody(t, "evt_pay_1", license.Key, 10)
	_, err := svc.Handle(ctx, payload, body)
	require.NoError(t, err)

	// 入账事务在截止时间后才提交的情形：超时路径随后尝试把事件
	// 改回 deferred 并入队。守卫更新必须拦下改写，且不产生队列任务
	result, err := svc.deferCredit(ctx, payload, model.HoursFromFloat(10), context.DeadlineExceeded)
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeCredited, result.Outcome)

	event, err := svc.eventRepo.GetByEventID("evt_pay_1")
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeCredited, event.Outcome)

	length, err := svc.creditQueue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	balance, err := svc.ledgerSvc.GetBalance(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.HoursFromFloat(10), balance.Remaining())
}

func TestWebhookService_Handle_RedeliveryResumesStuckEvent(t *testing.T) {
	svc, db := setupWebhook(t)
	license := testutil.TestLicense(t, db)

	// 上次投递在事件落库后、入账入队前中断，事件卡在 deferred。
	// 支付处理器重投同一事件时要继续处理，且按首次记录的金额入账
	testutil.TestEvent(t, db, "evt_stuck", license.Key, model.HoursFromFloat(10), model.EventOutcomeDeferred)

	payload, body := webhookBody(t, "evt_stuck", license.Key, 99)
	result, err := svc.Handle(context.Background(), payload, body)
	require.NoError(t, err)
	assert.Equal(t, model.EventOutcomeCredited, result.Outcome)
	assert.Equal(t, 10.0, result.Hours)

	balance, err := svc.ledgerSvc.GetBalance(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.HoursFromFloat(10), balance.Remaining())
}

func TestWebhookService_Handle_UnknownLicense(t *testing.T) {
	svc, db := setupWebhook(t)

	payload, body := webhookBody(t, "evt_unknown", "RL-AAAAAAAA-BBBBBBBB-CCCCCCCC", 10)
	result, err := svc.Handle(context.Background(), payload, body)
	require.NoError(t, err)

	// 收到了未知许可证的付款：记录保留、落为 unresolved 等人工处理
	assert.Equal(t, model.EventOutcomeUnresolved, result.Outcome)

	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_unknown").First(&event).Error)
	assert.Equal(t, model.EventOutcomeUnresolved, event.Outcome)
	assert.NotEmpty(t, event.ErrorMessage)
	assert.True(t, event.IsTerminal())
}

func TestWebhookService_Handle_DistinctEvents(t *testing.T) {
	svc, db := setupWebhook(t)
	license := testutil.TestLicense(t, db)

	// 金额相同但 event_id 不同的两笔付款都要入账
	for i := 0; i < 2; i++ {
		payload, body := webhookBody(t, fmt.Sprintf("evt_pay_%d", i), license.Key, 10)
		result, err := svc.Handle(context.Background(), payload, body)
		require.NoError(t, err)
		assert.Equal(t, model.EventOutcomeCredited, result.Outcome)
	}

	balance, err := svc.ledgerSvc.GetBalance(license.Key)
	require.NoError(t, err)
	assert.Equal(t, model.HoursFromFloat(20), balance.Remaining())
}
