package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/pkg/oss"
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/repository"
)

var ErrInvalidSignature = errors.New("回调签名校验失败")

// WebhookService 支付回调处理。每个 event_id 恰好入账一次，
// 对重复投递返回首次结果；入账失败不丢钱——要么转入队列重试，
// 要么落为 unresolved 等人工处理，事件记录永远保留
type WebhookService struct {
	eventRepo   *repository.EventRepository
	ledgerSvc   *LedgerService
	registrySvc *RegistryService
	creditQueue *queue.Queue
	ossClient   *oss.Client
	emailSvc    *email.Service
	cfg         *config.Config
}

func NewWebhookService(
	eventRepo *repository.EventRepository,
	ledgerSvc *LedgerService,
	registrySvc *RegistryService,
	creditQueue *queue.Queue,
	ossClient *oss.Client,
	emailSvc *email.Service,
	cfg *config.Config,
) *WebhookService {
	return &WebhookService{
		eventRepo:   eventRepo,
		ledgerSvc:   ledgerSvc,
		registrySvc: registrySvc,
		creditQueue: creditQueue,
		ossClient:   ossClient,
		emailSvc:    emailSvc,
		cfg:         cfg,
	}
}

// VerifySignature 校验回调签名：HMAC-SHA256（十六进制），对原始报文计算。
// 常数时间比较，签名不匹配的请求在记录事件之前就被拒绝
func (s *WebhookService) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.cfg.Webhook.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Handle 处理已通过签名校验的回调。body 为原始报文，用于归档。
// 返回的 Outcome 对应事件终态；任何非错误返回都应应答 200，
// 阻止支付处理器无意义的重投
func (s *WebhookService) Handle(ctx context.Context, payload *dto.PaymentWebhookPayload, body []byte) (*dto.WebhookResult, error) {
	hours := model.HoursFromFloat(payload.Hours)

	event := &model.PaymentEvent{
		EventID:     payload.EventID,
		LicenseKey:  payload.LicenseKey,
		HoursCredit: hours,
		Outcome:     model.EventOutcomeDeferred,
		PayloadJSON: string(body),
		ReceivedAt:  time.Now().UTC(),
	}

	recorded, created, err := s.eventRepo.Record(event)
	if err != nil {
		return nil, err
	}
	if !created {
		if recorded.IsTerminal() {
			// 重复投递已有终态的事件：回放首次结果
			return &dto.WebhookResult{
				EventID: recorded.EventID,
				Outcome: recorded.Outcome,
				Hours:   recorded.HoursCredit.Float(),
			}, nil
		}
		// 非终态说明上次投递在入账或入队前崩溃了，
		// 重投是唯一的恢复机会，按首次记录的金额继续处理
		hours = recorded.HoursCredit
	}

	if created {
		s.archivePayload(payload.EventID, body)
	}

	// 收到了未知许可证的付款，钱不能凭空入账也不能丢弃
	if _, err := s.registrySvc.Lookup(payload.LicenseKey); err != nil {
		if errors.Is(err, ErrLicenseNotFound) || errors.Is(err, ErrMalformedLicenseKey) {
			return s.markUnresolved(payload.EventID, payload.LicenseKey,
				fmt.Sprintf("许可证不存在或格式错误: %v", err), hours)
		}
		return nil, err
	}

	// 同步入账有截止时间，超时转入队列，先应答支付处理器
	creditCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Webhook.TimeoutSeconds)*time.Second)
	defer cancel()

	err = s.creditWithDeadline(creditCtx, payload.LicenseKey, hours, payload.EventID)
	if err == nil || errors.Is(err, repository.ErrEventAlreadyApplied) {
		return &dto.WebhookResult{
			EventID: payload.EventID,
			Outcome: model.EventOutcomeCredited,
			Hours:   hours.Float(),
		}, nil
	}

	return s.deferCredit(ctx, payload, hours, err)
}

// creditWithDeadline 在截止时间内完成入账。入账本身是单个数据库事务，
// 这里只在事务排队过久时放弃等待
func (s *WebhookService) creditWithDeadline(ctx context.Context, licenseKey string, hours model.Hours, eventID string) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.ledgerSvc.Credit(ctx, licenseKey, hours, eventID)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deferCredit 同步入账失败，转入队列由 worker 重试。
// 超时被放弃的入账事务可能已经提交：守卫更新没生效
// 就说明事件其实入账成功了，此时不入队，直接应答 credited
func (s *WebhookService) deferCredit(ctx context.Context, payload *dto.PaymentWebhookPayload, hours model.Hours, cause error) (*dto.WebhookResult, error) {
	updated, err := s.eventRepo.UpdateOutcome(payload.EventID, model.EventOutcomeDeferred, cause.Error())
	if err != nil {
		return nil, err
	}
	if !updated {
		return &dto.WebhookResult{
			EventID: payload.EventID,
			Outcome: model.EventOutcomeCredited,
			Hours:   hours.Float(),
		}, nil
	}

	if err := s.creditQueue.Push(ctx, &queue.CreditMessage{
		EventID:    payload.EventID,
		LicenseKey: payload.LicenseKey,
		Hours:      payload.Hours,
		Attempt:    1,
	}); err != nil {
		// 队列也不可用，事件记录还在，落为 unresolved 等人工处理
		return s.markUnresolved(payload.EventID, payload.LicenseKey,
			fmt.Sprintf("入账失败且队列不可用: %v / %v", cause, err), hours)
	}

	return &dto.WebhookResult{
		EventID: payload.EventID,
		Outcome: model.EventOutcomeDeferred,
		Hours:   hours.Float(),
	}, nil
}

// markUnresolved 事件落为 unresolved 并发送告警。
// 钱已收到但无法自动入账，必须有人看。
// 事件已入账时守卫更新不生效，直接应答 credited
func (s *WebhookService) markUnresolved(eventID, licenseKey, reason string, hours model.Hours) (*dto.WebhookResult, error) {
	updated, err := s.eventRepo.UpdateOutcome(eventID, model.EventOutcomeUnresolved, reason)
	if err != nil {
		return nil, err
	}
	if !updated {
		return &dto.WebhookResult{
			EventID: eventID,
			Outcome: model.EventOutcomeCredited,
			Hours:   hours.Float(),
		}, nil
	}

	if s.emailSvc != nil && s.cfg.Admin.AlertEmail != "" {
		if err := s.emailSvc.SendReviewAlert(s.cfg.Admin.AlertEmail, licenseKey,
			fmt.Sprintf("支付事件 %s 无法入账: %s", eventID, reason)); err != nil {
			log.Printf("Warning: failed to send unresolved alert: %v", err)
		}
	}

	return &dto.WebhookResult{
		EventID: eventID,
		Outcome: model.EventOutcomeUnresolved,
		Hours:   hours.Float(),
	}, nil
}

// ListEvents 按结果查询事件（管理后台对账用）
func (s *WebhookService) ListEvents(outcome string, limit int) ([]*model.PaymentEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.eventRepo.ListByOutcome(outcome, limit)
}

// archivePayload 原始报文归档（尽力而为，失败只记日志）
func (s *WebhookService) archivePayload(eventID string, body []byte) {
	if s.ossClient == nil {
		return
	}
	if _, err := s.ossClient.ArchiveWebhookPayload(eventID, compactJSON(body)); err != nil {
		log.Printf("Warning: failed to archive webhook payload %s: %v", eventID, err)
	}
}

// 保证归档内容是合法 JSON 时的压缩形式，非法时原样存储
func compactJSON(body []byte) []byte {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}
