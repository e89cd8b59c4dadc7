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

type LicenseHandler struct {
	registryService *service.RegistryService
	ledgerService   *service.LedgerService
	gateService     *service.GateService
}

func NewLicenseHandler(
	registryService *service.RegistryService,
	ledgerService *service.LedgerService,
	gateService *service.GateService,
) *LicenseHandler {
	return &LicenseHandler{
		registryService: registryService,
		ledgerService:   ledgerService,
		gateService:     gateService,
	}
}

// Create 注册许可证
// POST /api/v1/admin/licenses
func (h *LicenseHandler) Create(c *gin.Context) {
	var req dto.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "")
		return
	}

	license, err := h.registryService.Create(&req)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, licenseToInfo(license))
}

// Get 查询许可证
// GET /api/v1/admin/licenses/:key
func (h *LicenseHandler) Get(c *gin.Context) {
	license, err := h.registryService.Lookup(c.Param("key"))
	if err != nil {
		h.lookupError(c, err)
		return
	}
	response.Success(c, licenseToInfo(license))
}

// Suspend 停用许可证
// POST /api/v1/admin/licenses/:key/suspend
func (h *LicenseHandler) Suspend(c *gin.Context) {
	key := c.Param("key")
	if err := h.registryService.Suspend(key); err != nil {
		h.lookupError(c, err)
		return
	}
	h.gateService.InvalidateCache(c.Request.Context(), key)
	response.SuccessWithMessage(c, "许可证已停用", nil)
}

// Resume 恢复许可证
// POST /api/v1/admin/licenses/:key/resume
func (h *LicenseHandler) Resume(c *gin.Context) {
	key := c.Param("key")
	if err := h.registryService.Resume(key); err != nil {
		h.lookupError(c, err)
		return
	}
	h.gateService.InvalidateCache(c.Request.Context(), key)
	response.SuccessWithMessage(c, "许可证已恢复", nil)
}

// Revoke 吊销许可证
// POST /api/v1/admin/licenses/:key/revoke
func (h *LicenseHandler) Revoke(c *gin.Context) {
	key := c.Param("key")
	if err := h.registryService.Revoke(key); err != nil {
		h.lookupError(c, err)
		return
	}
	h.gateService.InvalidateCache(c.Request.Context(), key)
	response.SuccessWithMessage(c, "许可证已吊销", nil)
}

// GetBalance 查询余额
// GET /api/v1/licenses/:key/balance
func (h *LicenseHandler) GetBalance(c *gin.Context) {
	key := c.Param("key")
	if _, err := h.registryService.Lookup(key); err != nil {
		h.lookupError(c, err)
		return
	}

	balance, err := h.ledgerService.GetBalance(key)
	if err != nil {
		if errors.Is(err, service.ErrBalanceNotFound) {
			response.NotFoundError(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.BalanceInfo{
		LicenseKey:     key,
		HoursPurchased: balance.HoursPurchased.Float(),
		HoursUsed:      balance.HoursUsed.Float(),
		HoursRemaining: balance.Remaining().Float(),
	})
}

// ListTxns 查询余额流水
// GET /api/v1/admin/licenses/:key/txns
func (h *LicenseHandler) ListTxns(c *gin.Context) {
	key := c.Param("key")
	if _, err := h.registryService.Lookup(key); err != nil {
		h.lookupError(c, err)
		return
	}

	txns, err := h.ledgerService.ListTxns(key, 50)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, txns)
}

func (h *LicenseHandler) lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMalformedLicenseKey):
		response.MalformedKeyError(c, "")
	case errors.Is(err, service.ErrLicenseNotFound):
		response.NotFoundError(c, "许可证不存在")
	case errors.Is(err, service.ErrLicenseRevoked):
		response.LicenseInactiveError(c, "许可证已吊销，不可恢复")
	default:
		response.ServerError(c, "")
	}
}

func licenseToInfo(license *model.License) dto.LicenseInfo {
	info := dto.LicenseInfo{
		Key:          license.Key,
		OwnerName:    license.OwnerName,
		OwnerEmail:   license.OwnerEmail,
		OwnerCompany: license.OwnerCompany,
		Tier:         license.Tier,
		Status:       license.Status,
		CreatedAt:    license.CreatedAt.Format(time.RFC3339),
	}
	if license.ExpiresAt != nil {
		info.ExpiresAt = license.ExpiresAt.Format(time.RFC3339)
	}
	return info
}
