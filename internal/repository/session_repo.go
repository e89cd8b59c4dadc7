package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.UsageSession) error {
	return r.db.Create(session).Error
}

func (r *SessionRepository) GetByID(id int64) (*model.UsageSession, error) {
	var session model.UsageSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Close 关闭会话。WHERE ended_at IS NULL 保证恰好关闭一次：
// 返回 false 表示会话已被其他调用（或清扫）关闭
func (r *SessionRepository) Close(id int64, endedAt time.Time, billed model.Hours, swept bool) (bool, error) {
	result := r.db.Model(&model.UsageSession{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]interface{}{
			"ended_at":     endedAt,
			"billed_hours": int64(billed),
			"swept":        swept,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListOpenBefore 列出在 cutoff 之前开启且仍未关闭的会话（清扫候选）
func (r *SessionRepository) ListOpenBefore(cutoff time.Time, limit int) ([]*model.UsageSession, error) {
	var sessions []*model.UsageSession
	err := r.db.Where("ended_at IS NULL AND started_at < ?", cutoff).
		Order("started_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// ListSwept 列出被清扫关闭的会话（人工审核用）
func (r *SessionRepository) ListSwept(limit int) ([]*model.UsageSession, error) {
	var sessions []*model.UsageSession
	err := r.db.Where("swept = ?", true).
		Order("ended_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// CountOpenByKey 统计许可证当前开启的会话数
func (r *SessionRepository) CountOpenByKey(licenseKey string) (int64, error) {
	var count int64
	err := r.db.Model(&model.UsageSession{}).
		Where("license_key = ? AND ended_at IS NULL", licenseKey).
		Count(&count).Error
	return count, err
}
