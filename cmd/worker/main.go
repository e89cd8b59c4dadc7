package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/database"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/pkg/pubsub"
	"github.com/qs3c/license_go_server/internal/pkg/queue"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/service"
	"github.com/qs3c/license_go_server/internal/worker"
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

	// 初始化邮件服务（可选）
	var emailSvc *email.Service
	if cfg.Email.SMTPHost != "" {
		emailSvc = email.NewService(&cfg.Email)
	}

	// 初始化 Queue 和 Pub/Sub
	creditQueue := queue.NewQueue(rdb, cfg.Queue.CreditQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository 和 Service
	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	eventRepo := repository.NewEventRepository(db)
	ledgerService := service.NewLedgerService(balanceRepo, licenseRepo, publisher, emailSvc, cfg)

	// 创建延迟入账处理器
	processor := worker.NewProcessor(eventRepo, ledgerService, creditQueue, emailSvc, cfg)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	log.Printf("Worker started, max workers: %d", maxWorkers)

	// 启动 worker 循环。入账幂等，多个 worker 消费同一队列是安全的
	for i := 0; i < maxWorkers; i++ {
		go func(workerID int) {
			if err := processor.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("Worker %d stopped: %v", workerID, err)
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
