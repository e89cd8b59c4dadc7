package worker

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
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/service"
	"github.com/qs3c/license_go_server/internal/testutil"
)

func setupProcessor(t *testing.T) (*Processor, *queue.Queue, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Queue: config.QueueConfig{
			CreditQueue: "credit_jobs",
			MaxAttempts: 3,
		},
	}

	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	eventRepo := repository.NewEventRepository(db)
	ledgerSvc := service.NewLedgerService(balanceRepo, licenseRepo, nil, nil, cfg)
	creditQueue := queue.NewQueue(rdb, cfg.Queue.CreditQueue)

	return NewProcessor(eventRepo, ledgerSvc, creditQueue, nil, cfg), creditQueue, db
}

func TestProcessor_Process_Credits(t *testing.T) {
	processor, _, db := setupProcessor(t)
	license := testutil.TestLicense(t, db)
	testutil.TestEvent(t, db, "evt_1", license.Key, model.HoursFromFloat(10), model.EventOutcomeDeferred)

	err := processor.Process(context.Background(), &queue.CreditMessage{
		EventID:    "evt_1",
		LicenseKey: license.Key,
		Hours:      10,
		Attempt:    1,
	})
	require.NoError(t, err)

	var balance model.Balance
	require.NoError(t, db.Where("license_key = ?", license.Key).First(&balance).Error)
	assert.Equal(t, model.HoursFromFloat(10), balance.HoursPurchased)

	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_1").First(&event).Error)
	assert.Equal(t, model.EventOutcomeCredited, event.Outcome)
	assert.Equal(t, 1, event.Attempts)
}

func TestProcessor_Process_SkipsTerminalEvent(t *testing.T) {
	processor, _, db := setupProcessor(t)
	license := testutil.TestLicense(t, db)
	testutil.TestEvent(t, db, "evt_done", license.Key, model.HoursFromFloat(10), model.EventOutcomeCredited)

	// 事件已是终态：任务直接丢弃，余额不被触碰
	err := processor.Process(context.Background(), &queue.CreditMessage{
		EventID:    "evt_done",
		LicenseKey: license.Key,
		Hours:      10,
		Attempt:    2,
	})
	require.NoError(t, err)

	var balance model.Balance
	require.NoError(t, db.Where("license_key = ?", license.Key).First(&balance).Error)
	assert.Equal(t, model.Hours(0), balance.HoursPurchased)
}

func TestProcessor_Process_DuplicateConsumeIsSafe(t *testing.T) {
	processor, _, db := setupProcessor(t)
	license := testutil.TestLicense(t, db)
	testutil.TestEvent(t, db, "evt_1", license.Key, model.HoursFromFloat(10), model.EventOutcomeDeferred)

	msg := &queue.CreditMessage{EventID: "evt_1", LicenseKey: license.Key, Hours: 10, Attempt: 1}
	require.NoError(t, processor.Process(context.Background(), msg))
	require.NoError(t, processor.Process(context.Background(), msg))

	var balance model.Balance
	require.NoError(t, db.Where("license_key = ?", license.Key).First(&balance).Error)
	assert.Equal(t, model.HoursFromFloat(10), balance.HoursPurchased)
}

func TestProcessor_Process_RequeuesWithBackoff(t *testing.T) {
	processor, creditQueue, db := setupProcessor(t)
	processor.retryBackoff = 10 * time.Millisecond
	license := testutil.TestLicense(t, db)
	// 金额非法使入账持续失败，走重试路径
	testutil.TestEvent(t, db, "evt_bad", license.Key, model.Hours(0), model.EventOutcomeDeferred)

	start := time.Now()
	err := processor.Process(context.Background(), &queue.CreditMessage{
		EventID:    "evt_bad",
		LicenseKey: license.Key,
		Hours:      0,
		Attempt:    1,
	})
	require.NoError(t, err)

	// 失败任务退避后重新入队，而不是立即重试烧光次数
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	msg, err := creditQueue.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "evt_bad", msg.EventID)
	assert.Equal(t, 2, msg.Attempt)
}

func TestProcessor_GiveUp_DoesNotOverwriteCredited(t *testing.T) {
	processor, _, db := setupProcessor(t)
	license := testutil.TestLicense(t, db)
	testutil.TestEvent(t, db, "evt_won", license.Key, model.HoursFromFloat(10), model.EventOutcomeCredited)

	// 重试用尽的同时另一个 worker 已入账成功：不得把事件改写为 unresolved
	stale := &model.PaymentEvent{EventID: "evt_won", LicenseKey: license.Key}
	require.NoError(t, processor.giveUp(stale, context.DeadlineExceeded))

	var event model.PaymentEvent
	require.NoError(t, db.Where("event_id = ?", "evt_won").First(&event).Error)
	assert.Equal(t, model.EventOutcomeCredited, event.Outcome)
}

func TestProcessor_Run_ConsumesQueue(t *testing.T) {
	processor, creditQueue, db := setupProcessor(t)
	license := testutil.TestLicense(t, db)
	testutil.TestEvent(t, db, "evt_q", license.Key, model.HoursFromFloat(5), model.EventOutcomeDeferred)

	require.NoError(t, creditQueue.Push(context.Background(), &queue.CreditMessage{
		EventID:    "evt_q",
		LicenseKey: license.Key,
		Hours:      5,
		Attempt:    1,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(ctx)
		close(done)
	}()

	// 等待任务被消费
	require.Eventually(t, func() bool {
		var event model.PaymentEvent
		if err := db.Where("event_id = ?", "evt_q").First(&event).Error; err != nil {
			return false
		}
		return event.Outcome == model.EventOutcomeCredited
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
