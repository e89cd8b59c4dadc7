package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/internal/model"
	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/response"
	"github.com/qs3c/license_go_server/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Start 开启计费会话
// POST /api/v1/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	session, err := h.sessionService.Start(req.AdmissionToken, req.Operation)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAdmission):
			response.AuthError(c, "准入令牌无效或已过期")
		case errors.Is(err, service.ErrMalformedLicenseKey),
			errors.Is(err, service.ErrLicenseNotFound):
			response.AuthError(c, "准入令牌无效或已过期")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, sessionToInfo(session))
}

// Stop 关闭会话并结算
// POST /api/v1/sessions/:id/stop
func (h *SessionHandler) Stop(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "")
		return
	}

	session, balance, err := h.sessionService.Stop(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFoundError(c, "会话不存在")
		case errors.Is(err, service.ErrSessionAlreadyClosed):
			response.Error(c, response.CodeParamError, "会话已关闭")
		default:
			response.ServerError(c, "")
		}
		return
	}

	billed := model.Hours(0)
	if session.BilledHours != nil {
		billed = *session.BilledHours
	}

	response.Success(c, dto.StopSessionResponse{
		SessionID:      session.ID,
		BilledHours:    billed.Float(),
		HoursRemaining: balance.Remaining().Float(),
	})
}

// Get 查询会话
// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "")
		return
	}

	session, err := h.sessionService.Get(sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.NotFoundError(c, "会话不存在")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, sessionToInfo(session))
}

func sessionToInfo(session *model.UsageSession) *dto.SessionInfo {
	info := &dto.SessionInfo{
		SessionID:  session.ID,
		LicenseKey: session.LicenseKey,
		Operation:  session.Operation,
		StartedAt:  session.StartedAt.Format(time.RFC3339),
		Swept:      session.Swept,
	}
	if session.EndedAt != nil {
		info.EndedAt = session.EndedAt.Format(time.RFC3339)
	}
	if session.BilledHours != nil {
		info.BilledHours = session.BilledHours.Float()
	}
	return info
}
