package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/jwt"
)

// GateService 准入检查：客户端每次计费操作前调用。
// 只读不写，决定是否放行并签发准入令牌。
// 注册中心不可达时按配置降级：fail_closed 拒绝（可重试），
// fail_open 放行——宽松模式的原则是服务端故障不惩罚付费用户
type GateService struct {
	registrySvc *RegistryService
	ledgerSvc   *LedgerService
	redisClient *redis.Client
	cfg         *config.Config
}

func NewGateService(
	registrySvc *RegistryService,
	ledgerSvc *LedgerService,
	redisClient *redis.Client,
	cfg *config.Config,
) *GateService {
	return &GateService{
		registrySvc: registrySvc,
		ledgerSvc:   ledgerSvc,
		redisClient: redisClient,
		cfg:         cfg,
	}
}

// Check 准入检查。拒绝原因区分用户可解决的（格式、状态、余额）
// 与系统瞬时故障（Retryable）；检查本身不产生任何状态变更
func (s *GateService) Check(ctx context.Context, req *dto.CheckAccessRequest) (*dto.AccessDecision, error) {
	// 格式检查在最前面，不合法的密钥不消耗任何后端资源
	if !model.KeyPattern.MatchString(req.LicenseKey) {
		return deny(dto.ReasonMalformedKey, false), nil
	}

	license, err := s.lookupLicense(ctx, req.LicenseKey)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			return deny(dto.ReasonLicenseNotFound, false), nil
		}
		// 注册中心不可达，按配置降级
		if s.cfg.Enforcement.RequireLicenseServer == config.FailOpen {
			return s.admit(req.LicenseKey, 0), nil
		}
		return deny(dto.ReasonRegistryUnavailable, true), nil
	}

	switch license.Status {
	case model.LicenseStatusSuspended:
		return deny(dto.ReasonLicenseSuspended, false), nil
	case model.LicenseStatusRevoked:
		return deny(dto.ReasonLicenseRevoked, false), nil
	}
	if license.IsExpired(time.Now().UTC()) {
		return deny(dto.ReasonLicenseExpired, false), nil
	}

	balance, err := s.ledgerSvc.GetBalance(req.LicenseKey)
	if err != nil {
		if s.cfg.Enforcement.RequireLicenseServer == config.FailOpen {
			return s.admit(req.LicenseKey, 0), nil
		}
		return deny(dto.ReasonRegistryUnavailable, true), nil
	}

	remaining := balance.Remaining()
	if s.cfg.Enforcement.EnforcePayment {
		if remaining <= 0 {
			return deny(dto.ReasonNoHoursRemaining, false), nil
		}
		// 客户端给出操作预估成本时，余额不足以覆盖预估也拒绝，
		// 避免开了会话再被截断计费
		if required := model.HoursFromFloat(req.EstimatedHours); required > 0 && remaining < required {
			return deny(dto.ReasonNoHoursRemaining, false), nil
		}
	}

	return s.admit(req.LicenseKey, remaining.Float()), nil
}

// lookupLicense 带 Redis 读缓存的许可证查询。缓存 TTL 很短，
// 停用和吊销最多延迟一个 TTL 生效
func (s *GateService) lookupLicense(ctx context.Context, key string) (*model.License, error) {
	cacheKey := licenseCacheKey(key)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var license model.License
			if err := json.Unmarshal([]byte(cached), &license); err == nil {
				return &license, nil
			}
		}
	}

	license, err := s.registrySvc.Lookup(key)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(license); err == nil {
			ttl := time.Duration(s.cfg.Gate.CacheTTLSeconds) * time.Second
			if err := s.redisClient.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
				log.Printf("Warning: failed to cache license %s: %v", key, err)
			}
		}
	}

	return license, nil
}

// InvalidateCache 清除许可证缓存（状态变更后调用）
func (s *GateService) InvalidateCache(ctx context.Context, key string) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, licenseCacheKey(key)).Err(); err != nil {
		log.Printf("Warning: failed to invalidate license cache %s: %v", key, err)
	}
}

func (s *GateService) admit(licenseKey string, hoursRemaining float64) *dto.AccessDecision {
	token, err := jwt.GenerateAdmissionToken(licenseKey, s.cfg.JWT.Secret, s.cfg.JWT.AdmissionExpireMinutes)
	if err != nil {
		// 签发失败等同于系统故障
		return deny(dto.ReasonRegistryUnavailable, true)
	}
	return &dto.AccessDecision{
		Allowed:        true,
		Reason:         dto.ReasonOK,
		AdmissionToken: token,
		HoursRemaining: hoursRemaining,
	}
}

func deny(reason string, retryable bool) *dto.AccessDecision {
	return &dto.AccessDecision{
		Allowed:   false,
		Reason:    reason,
		Retryable: retryable,
	}
}

func licenseCacheKey(key string) string {
	return "gate:license:" + key
}
