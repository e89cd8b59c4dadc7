package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/pkg/jwt"
)

var ErrInvalidCredentials = errors.New("用户名或密码错误")

// AuthService 管理后台登录。单管理员账号，凭据来自配置
type AuthService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// Login 校验管理员凭据并签发令牌
func (s *AuthService) Login(username, password string) (string, error) {
	if username != s.cfg.Admin.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.Admin.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return jwt.GenerateAdminToken(username, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
}
