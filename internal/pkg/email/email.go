package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/qs3c/license_go_server/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendReviewAlert 发送人工审核告警（扣费触顶、会话被清扫等）
func (s *Service) SendReviewAlert(to, licenseKey, reason string) error {
	subject := fmt.Sprintf("许可证待审核 - %s", licenseKey)
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #dc2626;">许可证待人工审核</h2>
        <p>以下许可证触发了需要人工处理的事件：</p>
        <div style="background-color: #f3f4f6; padding: 15px; font-family: monospace; margin: 20px 0;">
            %s
        </div>
        <p>原因：%s</p>
        <p>请登录管理后台查看余额流水和会话记录。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, licenseKey, reason)

	return s.sendHTML(to, subject, body)
}

// SendLicenseCreated 注册成功后把密钥发给持有人
func (s *Service) SendLicenseCreated(to, ownerName, licenseKey string, hours float64) error {
	subject := "您的许可证已开通"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">许可证已开通</h2>
        <p>%s，您好：</p>
        <p>您的许可证密钥为：</p>
        <div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 18px; font-weight: bold; font-family: monospace; margin: 20px 0;">
            %s
        </div>
        <p>初始小时数：%.2f 小时。</p>
        <p>请在客户端设置中填入密钥以启用数据下载、转换和分析功能。</p>
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由系统自动发送，请勿回复。</p>
    </div>
</body>
</html>
`, ownerName, licenseKey, hours)

	return s.sendHTML(to, subject, body)
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	headers := make(map[string]string)
	headers["From"] = s.cfg.From
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
