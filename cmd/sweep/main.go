package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/config"
	"github.com/qs3c/license_go_server/internal/pkg/email"
	"github.com/qs3c/license_go_server/internal/repository"
	"github.com/qs3c/license_go_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", true, "Dry run mode, list expired sessions without closing them")
	verbose = flag.Bool("verbose", false, "Print every expired session")
)

// 手动清扫工具：列出或强制关闭超时会话。
// 服务进程内的定时清扫是主路径，这个命令用于运维排查和补偿
func main() {
	flag.Parse()

	log.Println("Starting session sweep...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	licenseRepo := repository.NewLicenseRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	var emailSvc *email.Service
	if cfg.Email.SMTPHost != "" {
		emailSvc = email.NewService(&cfg.Email)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(cfg.Session.MaxHours * float64(time.Hour)))
	expired, err := sessionRepo.ListOpenBefore(cutoff, 1000)
	if err != nil {
		log.Fatalf("Failed to list expired sessions: %v", err)
	}

	log.Printf("Found %d sessions open since before %s", len(expired), cutoff.Format(time.RFC3339))
	if *verbose {
		for _, session := range expired {
			log.Printf("  - session %d license=%s operation=%s started=%s",
				session.ID, session.LicenseKey, session.Operation,
				session.StartedAt.Format(time.RFC3339))
		}
	}

	if *dryRun {
		log.Println("DRY RUN MODE - no sessions were closed")
		log.Println("Run with -dry-run=false to close and bill them")
		return
	}

	// 离线清扫不推送余额变动，publisher 留空
	registryService := service.NewRegistryService(licenseRepo, balanceRepo, emailSvc, cfg)
	ledgerService := service.NewLedgerService(balanceRepo, licenseRepo, nil, emailSvc, cfg)
	sessionService := service.NewSessionService(sessionRepo, ledgerService, registryService, cfg)

	swept, err := sessionService.SweepExpired(context.Background())
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	log.Printf("Sweep completed: closed and billed %d sessions", swept)
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
	)
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}
