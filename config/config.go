package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Queue       QueueConfig       `mapstructure:"queue"`
	License     LicenseConfig     `mapstructure:"license"`
	Enforcement EnforcementConfig `mapstructure:"enforcement"`
	Session     SessionConfig     `mapstructure:"session"`
	Gate        GateConfig        `mapstructure:"gate"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Email       EmailConfig       `mapstructure:"email"`
	OSS         OSSConfig         `mapstructure:"oss"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	ExpireHours            int    `mapstructure:"expire_hours"`             // 管理员令牌有效期
	AdmissionExpireMinutes int    `mapstructure:"admission_expire_minutes"` // 准入令牌有效期
}

type WebhookConfig struct {
	Secret         string `mapstructure:"secret"`          // HMAC-SHA256 签名密钥
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 同步入账截止时间，超时转入队列
}

type QueueConfig struct {
	CreditQueue string `mapstructure:"credit_queue"`
	MaxWorkers  int    `mapstructure:"max_workers"`
	MaxAttempts int    `mapstructure:"max_attempts"` // 入账重试上限，超过后置为 unresolved
}

type LicenseConfig struct {
	Tiers map[string]LicenseTier `mapstructure:"tiers"`
}

type LicenseTier struct {
	InitialHours float64 `mapstructure:"initial_hours"`
	DurationDays int     `mapstructure:"duration_days"` // 0 表示永久
}

// RequireLicenseServer 取值：注册中心不可达时的准入策略
const (
	FailClosed = "fail_closed" // 默认：拒绝
	FailOpen   = "fail_open"   // 仅限宽松/测试环境：放行
)

type EnforcementConfig struct {
	RequireLicenseServer string `mapstructure:"require_license_server"` // fail_closed / fail_open
	EnforcePayment       bool   `mapstructure:"enforce_payment"`        // false 时零余额不拦截（沙箱部署）
}

type SessionConfig struct {
	MaxHours             float64 `mapstructure:"max_hours"` // 会话安全上限，超过由清扫强制关闭
	SweepIntervalMinutes int     `mapstructure:"sweep_interval_minutes"`
}

type GateConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"` // 许可证读缓存 TTL
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt
	AlertEmail   string `mapstructure:"alert_email"`   // 审核告警收件人
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Enforcement.RequireLicenseServer == "" {
		cfg.Enforcement.RequireLicenseServer = FailClosed
	}
	if cfg.Webhook.TimeoutSeconds <= 0 {
		cfg.Webhook.TimeoutSeconds = 10
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 5
	}
	if cfg.Session.MaxHours <= 0 {
		cfg.Session.MaxHours = 12
	}
	if cfg.Session.SweepIntervalMinutes <= 0 {
		cfg.Session.SweepIntervalMinutes = 10
	}
	if cfg.Gate.CacheTTLSeconds <= 0 {
		cfg.Gate.CacheTTLSeconds = 30
	}
	if cfg.JWT.AdmissionExpireMinutes <= 0 {
		cfg.JWT.AdmissionExpireMinutes = 15
	}
}
