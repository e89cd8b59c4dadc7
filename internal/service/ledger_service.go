package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/pkg/pubsub"
	"github.com/qs3c/license_go_server/internal/pkg/retry"
	"github.com/qs3c/license_go_server/internal/repository"
)

var (
	ErrBalanceNotFound = errors.New("余额记录不存在")
	ErrInvalidHours    = errors.New("小时数必须为正数")
)

// keyLocks 按许可证密钥分配的互斥锁，序列化同进程内对同一余额的写入。
// 跨进程的并发由 DebitCAS 的数据库守卫兜底
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// LedgerService 余额账本：入账、扣费、查询。
// 不变量：hours_used 单调不减；剩余小时数永不为负；
// 每一次余额变动都有对应流水记录
type LedgerService struct {
	balanceRepo *repository.BalanceRepository
	licenseRepo *repository.LicenseRepository
	publisher   *pubsub.Publisher
	emailSvc    *email.Service
	cfg         *config.Config
	locks       keyLocks
	retryPolicy retry.Policy
}

func NewLedgerService(
	balanceRepo *repository.BalanceRepository,
	licenseRepo *repository.LicenseRepository,
	publisher *pubsub.Publisher,
	emailSvc *email.Service,
	cfg *config.Config,
) *LedgerService {
	return &LedgerService{
		balanceRepo: balanceRepo,
		licenseRepo: licenseRepo,
		publisher:   publisher,
		emailSvc:    emailSvc,
		cfg:         cfg,
		retryPolicy: retry.DefaultPolicy,
	}
}

// GetBalance 查询余额
func (s *LedgerService) GetBalance(licenseKey string) (*model.Balance, error) {
	balance, err := s.balanceRepo.GetByKey(licenseKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return balance, nil
}

// Credit 按支付事件入账。幂等：同一 event_id 只生效一次，
// 重复调用返回 repository.ErrEventAlreadyApplied
func (s *LedgerService) Credit(ctx context.Context, licenseKey string, hours model.Hours, eventID string) (*model.Balance, error) {
	if hours <= 0 {
		return nil, ErrInvalidHours
	}

	lock := s.locks.get(licenseKey)
	lock.Lock()
	defer lock.Unlock()

	if err := s.balanceRepo.Credit(licenseKey, hours, eventID); err != nil {
		return nil, err
	}

	balance, err := s.GetBalance(licenseKey)
	if err != nil {
		return nil, err
	}

	s.publishBalance(ctx, pubsub.SourceCredit, licenseKey, hours, balance.Remaining())
	return balance, nil
}

// Debit 扣减已用小时数。扣减量超过剩余额度时截断到已购上限，
// 并把许可证标记为待人工审核——计费凭据（会话记录、流水）都还在，
// 差额留给人工对账处理
func (s *LedgerService) Debit(ctx context.Context, licenseKey string, hours model.Hours, txnType, referenceID string) (*model.Balance, bool, error) {
	if hours <= 0 {
		return nil, false, ErrInvalidHours
	}

	lock := s.locks.get(licenseKey)
	lock.Lock()
	defer lock.Unlock()

	var balance *model.Balance
	var clamped bool

	err := s.retryPolicy.Do(func() error {
		current, err := s.GetBalance(licenseKey)
		if err != nil {
			return err
		}

		newUsed := current.HoursUsed + hours
		clamped = false
		if newUsed > current.HoursPurchased {
			newUsed = current.HoursPurchased
			clamped = true
		}

		// 已经触顶时无需更新余额，只补流水之外的审核标记
		if newUsed == current.HoursUsed {
			balance = current
			return nil
		}

		if err := s.balanceRepo.DebitCAS(licenseKey, current.HoursUsed, newUsed, txnType, referenceID); err != nil {
			return err
		}

		current.HoursUsed = newUsed
		balance = current
		return nil
	}, func(err error) bool {
		return errors.Is(err, repository.ErrStaleBalance)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrBalanceNotFound
		}
		return nil, false, err
	}

	if clamped {
		s.FlagForReview(licenseKey, fmt.Sprintf("扣费 %s 小时超出剩余额度，已截断（参考 %s）", hours.String(), referenceID))
	}

	source := pubsub.SourceDebit
	if txnType == model.TxnTypeSweep {
		source = pubsub.SourceSweep
	}
	s.publishBalance(ctx, source, licenseKey, -hours, balance.Remaining())
	return balance, clamped, nil
}

// ListTxns 查询余额流水
func (s *LedgerService) ListTxns(licenseKey string, limit int) ([]*model.BalanceTxn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.balanceRepo.ListTxns(licenseKey, limit)
}

// FlagForReview 标记许可证待人工审核并发送告警
func (s *LedgerService) FlagForReview(licenseKey, reason string) {
	if err := s.licenseRepo.FlagForReview(licenseKey, reason, time.Now().UTC()); err != nil {
		log.Printf("Warning: failed to flag license %s: %v", licenseKey, err)
		return
	}

	if s.emailSvc != nil && s.cfg.Admin.AlertEmail != "" {
		if err := s.emailSvc.SendReviewAlert(s.cfg.Admin.AlertEmail, licenseKey, reason); err != nil {
			log.Printf("Warning: failed to send review alert: %v", err)
		}
	}
}

func (s *LedgerService) publishBalance(ctx context.Context, source, licenseKey string, hours, remaining model.Hours) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBalance(ctx, &pubsub.BalanceMessage{
		Type:           pubsub.MessageTypeBalanceUpdate,
		LicenseKey:     licenseKey,
		Source:         source,
		Hours:          hours.Float(),
		HoursRemaining: remaining.Float(),
	}); err != nil {
		log.Printf("Warning: failed to publish balance update: %v", err)
	}
}
