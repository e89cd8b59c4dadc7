package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/internal/model/dto"
	"github.com/qs3c/license_go_server/internal/pkg/response"
	"github.com/qs3c/license_go_server/internal/service"
)

type AccessHandler struct {
	gateService *service.GateService
}

func NewAccessHandler(gateService *service.GateService) *AccessHandler {
	return &AccessHandler{gateService: gateService}
}

// Check 准入检查。HTTP 层面始终 200，
// 放行与否及原因在响应体里——拒绝不是传输错误
// POST /api/v1/access/check
func (h *AccessHandler) Check(c *gin.Context) {
	var req dto.CheckAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	decision, err := h.gateService.Check(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, decision)
}
