package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/repository"
)

var (
	ErrMalformedLicenseKey = errors.New("许可证密钥格式错误")
	ErrLicenseNotFound     = errors.New("许可证不存在")
	ErrLicenseRevoked      = errors.New("许可证已吊销，不可恢复")
	ErrKeyCollision        = errors.New("许可证密钥生成冲突")
)

// 密钥字符集：大写字母 + 数字，与 RL- 格式约定一致
const keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// 碰撞后重新生成的次数上限。24 个随机字符的碰撞概率可以忽略，
// 连续用尽只可能是随机源或存储出了问题
const keyGenMaxAttempts = 5

// RegistryService 许可证注册中心：创建、查询、停用、吊销。
// License 记录归它独有，其他组件只读
type RegistryService struct {
	licenseRepo *repository.LicenseRepository
	balanceRepo *repository.BalanceRepository
	emailSvc    *email.Service
	cfg         *config.Config
}

func NewRegistryService(
	licenseRepo *repository.LicenseRepository,
	balanceRepo *repository.BalanceRepository,
	emailSvc *email.Service,
	cfg *config.Config,
) *RegistryService {
	return &RegistryService{
		licenseRepo: licenseRepo,
		balanceRepo: balanceRepo,
		emailSvc:    emailSvc,
		cfg:         cfg,
	}
}

// Create 注册新许可证，生成碰撞检查过的密钥并初始化余额
func (s *RegistryService) Create(req *dto.CreateLicenseRequest) (*model.License, error) {
	key, err := s.generateKey()
	if err != nil {
		return nil, err
	}

	license := &model.License{
		Key:          key,
		OwnerName:    req.OwnerName,
		OwnerEmail:   req.OwnerEmail,
		OwnerCompany: req.OwnerCompany,
		Tier:         req.Tier,
		Status:       model.LicenseStatusActive,
	}

	durationDays := req.DurationDays
	if durationDays == 0 {
		if tier, ok := s.cfg.License.Tiers[req.Tier]; ok {
			durationDays = tier.DurationDays
		}
	}
	if durationDays > 0 {
		expiresAt := time.Now().UTC().AddDate(0, 0, durationDays)
		license.ExpiresAt = &expiresAt
	}

	if err := s.licenseRepo.Create(license); err != nil {
		return nil, err
	}

	initialHours := model.HoursFromFloat(req.InitialHours)
	if req.InitialHours == 0 {
		if tier, ok := s.cfg.License.Tiers[req.Tier]; ok {
			initialHours = model.HoursFromFloat(tier.InitialHours)
		}
	}

	if err := s.balanceRepo.Create(&model.Balance{
		LicenseKey:     key,
		HoursPurchased: initialHours,
	}); err != nil {
		return nil, err
	}

	if s.emailSvc != nil {
		if err := s.emailSvc.SendLicenseCreated(req.OwnerEmail, req.OwnerName, key, initialHours.Float()); err != nil {
			// 邮件失败不影响注册结果
			log.Printf("Warning: failed to send license email: %v", err)
		}
	}

	return license, nil
}

// Lookup 查询许可证。格式不合法的密钥在访问存储之前就被拒绝
func (s *RegistryService) Lookup(key string) (*model.License, error) {
	if !model.KeyPattern.MatchString(key) {
		return nil, ErrMalformedLicenseKey
	}

	license, err := s.licenseRepo.GetByKey(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return license, nil
}

// Suspend 停用许可证。幂等：重复停用不报错
func (s *RegistryService) Suspend(key string) error {
	license, err := s.Lookup(key)
	if err != nil {
		return err
	}
	if license.Status == model.LicenseStatusRevoked {
		return ErrLicenseRevoked
	}
	if license.Status == model.LicenseStatusSuspended {
		return nil
	}
	return s.licenseRepo.UpdateStatus(key, model.LicenseStatusSuspended)
}

// Resume 恢复停用的许可证。停用可逆，吊销不可逆
func (s *RegistryService) Resume(key string) error {
	license, err := s.Lookup(key)
	if err != nil {
		return err
	}
	if license.Status == model.LicenseStatusRevoked {
		return ErrLicenseRevoked
	}
	if license.Status == model.LicenseStatusActive {
		return nil
	}
	return s.licenseRepo.UpdateStatus(key, model.LicenseStatusActive)
}

// Revoke 吊销许可证。终态操作，幂等；记录保留用于审计，从不删除
func (s *RegistryService) Revoke(key string) error {
	license, err := s.Lookup(key)
	if err != nil {
		return err
	}
	if license.Status == model.LicenseStatusRevoked {
		return nil
	}
	return s.licenseRepo.Revoke(key, time.Now().UTC())
}

// ListFlagged 列出待人工审核的许可证
func (s *RegistryService) ListFlagged() ([]*model.License, error) {
	return s.licenseRepo.ListFlagged()
}

// generateKey 生成 RL-XXXXXXXX-YYYYYYYY-ZZZZZZZZ 格式密钥并做碰撞检查
func (s *RegistryService) generateKey() (string, error) {
	for i := 0; i < keyGenMaxAttempts; i++ {
		key, err := randomKey()
		if err != nil {
			return "", err
		}

		exists, err := s.licenseRepo.ExistsByKey(key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
	return "", ErrKeyCollision
}

func randomKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = keyCharset[int(b)%len(keyCharset)]
	}
	return fmt.Sprintf("RL-%s-%s-%s", buf[0:8], buf[8:16], buf[16:24]), nil
}
