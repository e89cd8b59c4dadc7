package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/pkg/jwt"
	"github.com/qs3c/license_go_server/internal/repository"
)

var (
	ErrSessionNotFound      = errors.New("会话不存在")
	ErrSessionAlreadyClosed = errors.New("会话已关闭")
	ErrInvalidAdmission     = errors.New("准入令牌无效或已过期")
)

// SessionService 计费会话：开启、关闭、超时清扫。
// 会话恰好关闭一次，计费发生在关闭的那一侧——
// 先关会话再扣费，关闭 CAS 的赢家负责扣费
type SessionService struct {
	sessionRepo *repository.SessionRepository
	ledgerSvc   *LedgerService
	registrySvc *RegistryService
	cfg         *config.Config
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	ledgerSvc *LedgerService,
	registrySvc *RegistryService,
	cfg *config.Config,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		ledgerSvc:   ledgerSvc,
		registrySvc: registrySvc,
		cfg:         cfg,
	}
}

// Start 开启计费会话。要求准入令牌有效且许可证仍处于可用状态；
// 开启本身不扣费，计费在关闭时按实际时长结算
func (s *SessionService) Start(admissionToken, operation string) (*model.UsageSession, error) {
	claims, err := jwt.ParseAdmissionToken(admissionToken, s.cfg.JWT.Secret)
	if err != nil {
		return nil, ErrInvalidAdmission
	}

	license, err := s.registrySvc.Lookup(claims.LicenseKey)
	if err != nil {
		return nil, err
	}
	// 准入令牌签发后许可证状态可能已变化，开会话时再查一次
	if license.Status != model.LicenseStatusActive || license.IsExpired(time.Now().UTC()) {
		return nil, ErrInvalidAdmission
	}

	session := &model.UsageSession{
		LicenseKey: claims.LicenseKey,
		Operation:  operation,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Stop 关闭会话并按实际时长扣费。并发关闭时只有 CAS 赢家扣费，
// 输家返回 ErrSessionAlreadyClosed；时长超过安全上限时按上限计费
func (s *SessionService) Stop(ctx context.Context, sessionID int64) (*model.UsageSession, *model.Balance, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	if !session.IsOpen() {
		return nil, nil, ErrSessionAlreadyClosed
	}

	now := time.Now().UTC()
	billed := s.billableHours(session.StartedAt, now)

	closed, err := s.sessionRepo.Close(sessionID, now, billed, false)
	if err != nil {
		return nil, nil, err
	}
	if !closed {
		return nil, nil, ErrSessionAlreadyClosed
	}

	session.EndedAt = &now
	session.BilledHours = &billed

	balance, err := s.debitSession(ctx, session, billed, model.TxnTypeDebit)
	if err != nil {
		return nil, nil, err
	}
	return session, balance, nil
}

// Run 以会话包裹一次计费操作：开启会话、执行 fn、保证关闭。
// fn 返回错误或 panic 都会正常结算，漏计费只可能来自进程崩溃，
// 那种情况由清扫兜底
func (s *SessionService) Run(ctx context.Context, admissionToken, operation string, fn func(context.Context) error) (err error) {
	session, startErr := s.Start(admissionToken, operation)
	if startErr != nil {
		return startErr
	}

	defer func() {
		if _, _, stopErr := s.Stop(ctx, session.ID); stopErr != nil && !errors.Is(stopErr, ErrSessionAlreadyClosed) {
			if err == nil {
				err = stopErr
			}
		}
	}()

	return fn(ctx)
}

// Get 查询会话
func (s *SessionService) Get(sessionID int64) (*model.UsageSession, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListSwept 列出被清扫关闭的会话
func (s *SessionService) ListSwept(limit int) ([]*model.UsageSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.sessionRepo.ListSwept(limit)
}

// SweepExpired 强制关闭超过安全上限仍未结束的会话，按上限计费，
// 并把许可证标记为待人工审核（客户端崩溃和恶意挂起无法区分）。
// 返回本轮清扫的会话数
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.maxDuration())

	sessions, err := s.sessionRepo.ListOpenBefore(cutoff, 100)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, session := range sessions {
		billed := s.billableHours(session.StartedAt, now)

		closed, err := s.sessionRepo.Close(session.ID, now, billed, true)
		if err != nil {
			log.Printf("Warning: failed to sweep session %d: %v", session.ID, err)
			continue
		}
		if !closed {
			continue // 客户端赶在清扫前正常关闭了
		}

		if _, err := s.debitSession(ctx, session, billed, model.TxnTypeSweep); err != nil {
			log.Printf("Warning: failed to bill swept session %d: %v", session.ID, err)
		}

		s.ledgerSvc.FlagForReview(session.LicenseKey,
			fmt.Sprintf("会话 %d 超时被清扫关闭，已按上限计费 %s 小时", session.ID, billed.String()))
		swept++
	}
	return swept, nil
}

// billableHours 会话计费时长：实际时长向上取整，封顶到安全上限
func (s *SessionService) billableHours(startedAt, endedAt time.Time) model.Hours {
	elapsed := endedAt.Sub(startedAt)
	if max := s.maxDuration(); elapsed > max {
		elapsed = max
	}
	return model.HoursFromSeconds(elapsed.Seconds())
}

func (s *SessionService) maxDuration() time.Duration {
	return time.Duration(s.cfg.Session.MaxHours * float64(time.Hour))
}

func (s *SessionService) debitSession(ctx context.Context, session *model.UsageSession, billed model.Hours, txnType string) (*model.Balance, error) {
	if billed <= 0 {
		return s.ledgerSvc.GetBalance(session.LicenseKey)
	}
	referenceID := fmt.Sprintf("session:%d", session.ID)
	balance, _, err := s.ledgerSvc.Debit(ctx, session.LicenseKey, billed, txnType, referenceID)
	return balance, err
}
