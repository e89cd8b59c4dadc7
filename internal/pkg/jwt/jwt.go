package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// 令牌类型。准入令牌和管理员令牌使用同一签名密钥，
// 通过 token_type 声明互相隔离
const (
	TypeAdmin     = "admin"
	TypeAdmission = "admission"
)

// AdminClaims 管理员令牌声明
type AdminClaims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// AdmissionClaims 准入令牌声明。准入检查通过后签发，
// 开启计费会话时校验，本身不代表任何余额变更
type AdmissionClaims struct {
	LicenseKey string `json:"license_key"`
	TokenType  string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAdminToken 签发管理员令牌
func GenerateAdminToken(username, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Username:  username,
		TokenType: TypeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAdminToken 解析并校验管理员令牌
func ParseAdminToken(tokenString, secret string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.TokenType != TypeAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateAdmissionToken 签发准入令牌
func GenerateAdmissionToken(licenseKey, secret string, expireMinutes int) (string, error) {
	now := time.Now()
	claims := AdmissionClaims{
		LicenseKey: licenseKey,
		TokenType:  TypeAdmission,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireMinutes) * time.Minute)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAdmissionToken 解析并校验准入令牌
func ParseAdmissionToken(tokenString, secret string) (*AdmissionClaims, error) {
	claims := &AdmissionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.TokenType != TypeAdmission {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
