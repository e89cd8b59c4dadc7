package cron

import (
	"context"
	"log"
	"time"

	"github.com/qs3c/license_go_server/internal/service"
)

// Service 定时清扫服务。周期性强制关闭超时未结束的计费会话，
// 防止客户端崩溃导致会话无限挂起不计费
type Service struct {
	sessionService *service.SessionService
	interval       time.Duration
	stopChan       chan struct{}
}

func NewService(sessionService *service.SessionService, intervalMinutes int) *Service {
	if intervalMinutes <= 0 {
		intervalMinutes = 10
	}
	return &Service{
		sessionService: sessionService,
		interval:       time.Duration(intervalMinutes) * time.Minute,
		stopChan:       make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runSweep()
	log.Printf("Cron service started (session sweep every %s)", s.interval)
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runSweep 周期性清扫超时会话
func (s *Service) runSweep() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Service) sweepOnce() {
	swept, err := s.sessionService.SweepExpired(context.Background())
	if err != nil {
		log.Printf("Session sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("Session sweep closed %d expired sessions", swept)
	}
}

// RunNow 立即执行一次清扫（手动触发或测试用）
func (s *Service) RunNow() (int, error) {
	log.Println("Manual session sweep triggered...")
	return s.sessionService.SweepExpired(context.Background())
}
