package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
)

type LicenseRepository struct {
	db *gorm.DB
}

func NewLicenseRepository(db *gorm.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) Create(license *model.License) error {
	return r.db.Create(license).Error
}

func (r *LicenseRepository) GetByKey(key string) (*model.License, error) {
	var license model.License
	err := r.db.Where("`key` = ?", key).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *LicenseRepository) ExistsByKey(key string) (bool, error) {
	var count int64
	err := r.db.Model(&model.License{}).Where("`key` = ?", key).Count(&count).Error
	return count > 0, err
}

func (r *LicenseRepository) UpdateStatus(key, status string) error {
	return r.db.Model(&model.License{}).Where("`key` = ?", key).
		Update("status", status).Error
}

// Revoke 吊销许可证。终态操作，记录吊销时间
func (r *LicenseRepository) Revoke(key string, revokedAt time.Time) error {
	return r.db.Model(&model.License{}).Where("`key` = ?", key).Updates(map[string]interface{}{
		"status":     model.LicenseStatusRevoked,
		"revoked_at": revokedAt,
	}).Error
}

// FlagForReview 标记许可证待人工审核
func (r *LicenseRepository) FlagForReview(key, reason string, flaggedAt time.Time) error {
	return r.db.Model(&model.License{}).Where("`key` = ?", key).Updates(map[string]interface{}{
		"flag_reason": reason,
		"flagged_at":  flaggedAt,
	}).Error
}

// ListFlagged 列出所有待审核许可证
func (r *LicenseRepository) ListFlagged() ([]*model.License, error) {
	var licenses []*model.License
	err := r.db.Where("flag_reason <> ''").Order("flagged_at DESC").Find(&licenses).Error
	return licenses, err
}
