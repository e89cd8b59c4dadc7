package main

import (
	"context"
	"fmt"
	"log"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/api"
	"github.com/qs3c/license_go_server/internal/api/handler"
	"github.com/qs3c/license_go_server/internal/database"
	"github.com/qs3c/license_go_server/internal/pkg/cron"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/pkg/oss"
	"github.com/qs3c/license_go_server/internal/pkg/pubsub"
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/pkg/ws"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选，未配置时回调报文不归档）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			log.Println("OSS client initialized")
		}
	}

	// 初始化邮件服务（可选，未配置时不发告警）
	var emailSvc *email.Service
	if cfg.Email.SMTPHost != "" {
		emailSvc = email.NewService(&cfg.Email)
	}

	// 初始化 Queue、Pub/Sub 和 WebSocket Hub
	creditQueue := queue.NewQueue(rdb, cfg.Queue.CreditQueue)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)
	wsHub := ws.NewHub()

	// 余额变动经 Redis 广播，再推给本进程持有的 WebSocket 连接，
	// 多实例部署时每个实例都能推送自己的连接
	go func() {
		err := subscriber.Run(context.Background(), func(msg *pubsub.BalanceMessage) {
			wsHub.SendToLicense(msg.LicenseKey, msg.Type, msg)
		})
		if err != nil && err != context.Canceled {
			log.Printf("Warning: balance subscriber stopped: %v", err)
		}
	}()

	// 初始化 Repository
	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// 初始化 Service
	registryService := service.NewRegistryService(licenseRepo, balanceRepo, emailSvc, cfg)
	ledgerService := service.NewLedgerService(balanceRepo, licenseRepo, publisher, emailSvc, cfg)
	sessionService := service.NewSessionService(sessionRepo, ledgerService, registryService, cfg)
	webhookService := service.NewWebhookService(eventRepo, ledgerService, registryService, creditQueue, ossClient, emailSvc, cfg)
	gateService := service.NewGateService(registryService, ledgerService, rdb, cfg)
	authService := service.NewAuthService(cfg)

	// 初始化 Handler
	licenseHandler := handler.NewLicenseHandler(registryService, ledgerService, gateService)
	accessHandler := handler.NewAccessHandler(gateService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	adminHandler := handler.NewAdminHandler(authService, registryService, sessionService, webhookService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg)

	// 启动会话清扫定时任务
	cronService := cron.NewService(sessionService, cfg.Session.SweepIntervalMinutes)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Router
	router := api.NewRouter(
		licenseHandler,
		accessHandler,
		sessionHandler,
		webhookHandler,
		adminHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
