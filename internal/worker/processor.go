package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/service"
)

// Processor 延迟入账处理器。消费回调处理超时后转入队列的事件，
// 入账仍然走账本服务的幂等路径，worker 重启或重复消费不会重复加钱
type Processor struct {
	eventRepo    *repository.EventRepository
	ledgerSvc    *service.LedgerService
	queue        *queue.Queue
	emailSvc     *email.Service
	cfg          *config.Config
	retryBackoff time.Duration
}

// NewProcessor 创建延迟入账处理器
func NewProcessor(
	eventRepo *repository.EventRepository,
	ledgerSvc *service.LedgerService,
	q *queue.Queue,
	emailSvc *email.Service,
	cfg *config.Config,
) *Processor {
	return &Processor{
		eventRepo:    eventRepo,
		ledgerSvc:    ledgerSvc,
		queue:        q,
		emailSvc:     emailSvc,
		cfg:          cfg,
		retryBackoff: 2 * time.Second,
	}
}

// Process 处理一条延迟入账任务。
// 重试次数用尽后事件落为 unresolved 并告警，钱不会静默消失
func (p *Processor) Process(ctx context.Context, msg *queue.CreditMessage) error {
	event, err := p.eventRepo.GetByEventID(msg.EventID)
	if err != nil {
		return fmt.Errorf("failed to get event %s: %w", msg.EventID, err)
	}

	// 事件已到终态（可能被另一个 worker 或人工处理过），直接丢弃任务
	if event.IsTerminal() {
		log.Printf("Event %s already terminal (%s), skipping", msg.EventID, event.Outcome)
		return nil
	}

	if err := p.eventRepo.IncrementAttempts(msg.EventID); err != nil {
		log.Printf("Warning: failed to increment attempts for %s: %v", msg.EventID, err)
	}

	_, err = p.ledgerSvc.Credit(ctx, event.LicenseKey, event.HoursCredit, event.EventID)
	if err == nil || errors.Is(err, repository.ErrEventAlreadyApplied) {
		log.Printf("Event %s credited %s hours to %s", msg.EventID, event.HoursCredit.String(), event.LicenseKey)
		return nil
	}

	log.Printf("Event %s credit attempt %d failed: %v", msg.EventID, msg.Attempt, err)

	if msg.Attempt >= p.cfg.Queue.MaxAttempts {
		return p.giveUp(event, err)
	}

	// 退避后重新入队。立即重入队会在数据库故障期间
	// 几毫秒内烧光全部重试次数
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(msg.Attempt) * p.retryBackoff):
	}

	msg.Attempt++
	if pushErr := p.queue.Push(ctx, msg); pushErr != nil {
		return p.giveUp(event, fmt.Errorf("requeue failed: %w (credit error: %v)", pushErr, err))
	}
	return nil
}

// Run 持续消费队列直到 ctx 取消
func (p *Processor) Run(ctx context.Context) error {
	log.Printf("Credit processor started, queue=%s", p.cfg.Queue.CreditQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := p.queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Warning: queue pop failed: %v", err)
			continue
		}
		if msg == nil {
			continue // 超时，无任务
		}

		if err := p.Process(ctx, msg); err != nil {
			log.Printf("Warning: failed to process event %s: %v", msg.EventID, err)
		}
	}
}

// giveUp 重试用尽，事件落为 unresolved 并告警
func (p *Processor) giveUp(event *model.PaymentEvent, cause error) error {
	reason := fmt.Sprintf("入账重试 %d 次后放弃: %v", p.cfg.Queue.MaxAttempts, cause)
	updated, err := p.eventRepo.UpdateOutcome(event.EventID, model.EventOutcomeUnresolved, reason)
	if err != nil {
		return fmt.Errorf("failed to mark event %s unresolved: %w", event.EventID, err)
	}
	if !updated {
		// 另一个 worker 抢先入账成功了
		log.Printf("Event %s already credited, skipping unresolved mark", event.EventID)
		return nil
	}

	if p.emailSvc != nil && p.cfg.Admin.AlertEmail != "" {
		if err := p.emailSvc.SendReviewAlert(p.cfg.Admin.AlertEmail, event.LicenseKey,
			fmt.Sprintf("支付事件 %s 无法入账: %s", event.EventID, reason)); err != nil {
			log.Printf("Warning: failed to send unresolved alert: %v", err)
		}
	}

	log.Printf("Event %s marked unresolved after %d attempts", event.EventID, p.cfg.Queue.MaxAttempts)
	return nil
}
