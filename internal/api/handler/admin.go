package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/response"
	"github.com/qs3c/license_go_server/internal/service"
)

type AdminHandler struct {
	authService     *service.AuthService
	registryService *service.RegistryService
	sessionService  *service.SessionService
	webhookService  *service.WebhookService
}

func NewAdminHandler(
	authService *service.AuthService,
	registryService *service.RegistryService,
	sessionService *service.SessionService,
	webhookService *service.WebhookService,
) *AdminHandler {
	return &AdminHandler{
		authService:     authService,
		registryService: registryService,
		sessionService:  sessionService,
		webhookService:  webhookService,
	}
}

// Login 管理员登录
// POST /api/v1/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.AuthError(c, "用户名或密码错误")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.AdminLoginResponse{Token: token})
}

// ListFlags 列出待人工审核项：被标记的许可证和被清扫的会话
// GET /api/v1/admin/flags
func (h *AdminHandler) ListFlags(c *gin.Context) {
	licenses, err := h.registryService.ListFlagged()
	if err != nil {
		response.ServerError(c, "")
		return
	}

	sweptSessions, err := h.sessionService.ListSwept(50)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	flags := dto.FlagsResponse{
		Licenses: make([]dto.LicenseFlag, 0, len(licenses)),
		Sessions: make([]*dto.SessionInfo, 0, len(sweptSessions)),
	}
	for _, license := range licenses {
		flag := dto.LicenseFlag{
			Key:        license.Key,
			FlagReason: license.FlagReason,
		}
		if license.FlaggedAt != nil {
			flag.FlaggedAt = license.FlaggedAt.Format(time.RFC3339)
		}
		flags.Licenses = append(flags.Licenses, flag)
	}
	for _, session := range sweptSessions {
		flags.Sessions = append(flags.Sessions, sessionToInfo(session))
	}

	response.Success(c, flags)
}

// ListEvents 按结果查询支付事件（对账用）
// GET /api/v1/admin/events?outcome=unresolved
func (h *AdminHandler) ListEvents(c *gin.Context) {
	outcome := c.DefaultQuery("outcome", model.EventOutcomeUnresolved)
	switch outcome {
	case model.EventOutcomeCredited, model.EventOutcomeRejected,
		model.EventOutcomeUnresolved, model.EventOutcomeDeferred:
	default:
		response.ParamError(c, "未知的事件结果类型")
		return
	}

	events, err := h.webhookService.ListEvents(outcome, 50)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, events)
}

// SweepNow 手动触发会话清扫
// POST /api/v1/admin/sweep
func (h *AdminHandler) SweepNow(c *gin.Context) {
	swept, err := h.sessionService.SweepExpired(c.Request.Context())
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, dto.SweepResponse{SweptSessions: swept})
}
