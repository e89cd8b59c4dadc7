package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/api/handler"
	"github.com/qs3c/license_go_server/internal/api/middleware"
)

type Router struct {
	licenseHandler   *handler.LicenseHandler
	accessHandler    *handler.AccessHandler
	sessionHandler   *handler.SessionHandler
	webhookHandler   *handler.WebhookHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	licenseHandler *handler.LicenseHandler,
	accessHandler *handler.AccessHandler,
	sessionHandler *handler.SessionHandler,
	webhookHandler *handler.WebhookHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		licenseHandler:   licenseHandler,
		accessHandler:    accessHandler,
		sessionHandler:   sessionHandler,
		webhookHandler:   webhookHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket 余额推送
		api.GET("/ws/balance", r.websocketHandler.BalanceFeed)

		// 客户端接口：准入检查与计费会话
		api.POST("/access/check", r.accessHandler.Check)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", r.sessionHandler.Start)
			sessions.POST("/:id/stop", r.sessionHandler.Stop)
			sessions.GET("/:id", r.sessionHandler.Get)
		}

		// 客户端余额查询
		api.GET("/licenses/:key/balance", r.licenseHandler.GetBalance)

		// 支付回调：签名校验代替认证
		api.POST("/webhooks/payment", r.webhookHandler.HandlePayment)

		// 管理后台
		api.POST("/admin/login", r.adminHandler.Login)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(r.cfg.JWT.Secret))
		{
			licenses := admin.Group("/licenses")
			{
				licenses.POST("", r.licenseHandler.Create)
				licenses.GET("/:key", r.licenseHandler.Get)
				licenses.POST("/:key/suspend", r.licenseHandler.Suspend)
				licenses.POST("/:key/resume", r.licenseHandler.Resume)
				licenses.POST("/:key/revoke", r.licenseHandler.Revoke)
				licenses.GET("/:key/txns", r.licenseHandler.ListTxns)
			}

			admin.GET("/flags", r.adminHandler.ListFlags)
			admin.GET("/events", r.adminHandler.ListEvents)
			admin.POST("/sweep", r.adminHandler.SweepNow)
		}
	}

	return engine
}
