package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
)

// ErrEventAlreadyApplied 事件已入账，调用方应返回首次记录的结果
var ErrEventAlreadyApplied = errors.New("payment event already applied")

// ErrStaleBalance CAS 更新失败，余额已被并发修改
var ErrStaleBalance = errors.New("balance modified concurrently")

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Create(balance *model.Balance) error {
	return r.db.Create(balance).Error
}

func (r *BalanceRepository) GetByKey(licenseKey string) (*model.Balance, error) {
	var balance model.Balance
	err := r.db.Where("license_key = ?", licenseKey).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// Credit 入账：在同一事务内翻转事件终态并增加已购小时数。
// 事件状态作为 CAS 守卫——只有第一次把 outcome 翻成 credited 的事务
// 会执行余额更新，重复投递在这里被拦下
func (r *BalanceRepository) Credit(licenseKey string, hours model.Hours, eventID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		result := tx.Model(&model.PaymentEvent{}).
			Where("event_id = ? AND outcome <> ?", eventID, model.EventOutcomeCredited).
			Updates(map[string]interface{}{
				"outcome":      model.EventOutcomeCredited,
				"processed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEventAlreadyApplied
		}

		if err := tx.Model(&model.Balance{}).Where("license_key = ?", licenseKey).
			Update("hours_purchased", gorm.Expr("hours_purchased + ?", int64(hours))).Error; err != nil {
			return err
		}

		return tx.Create(&model.BalanceTxn{
			LicenseKey:  licenseKey,
			Type:        model.TxnTypeCredit,
			Hours:       hours,
			ReferenceID: eventID,
			CreatedAt:   now,
		}).Error
	})
}

// DebitCAS 扣费：带 CAS 守卫的已用小时数更新。
// oldUsed 不匹配说明同一许可证有并发写入，返回 ErrStaleBalance 由上层重试
func (r *BalanceRepository) DebitCAS(licenseKey string, oldUsed, newUsed model.Hours, txnType, referenceID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Balance{}).
			Where("license_key = ? AND hours_used = ?", licenseKey, int64(oldUsed)).
			Update("hours_used", int64(newUsed))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleBalance
		}

		return tx.Create(&model.BalanceTxn{
			LicenseKey:  licenseKey,
			Type:        txnType,
			Hours:       newUsed - oldUsed,
			ReferenceID: referenceID,
			CreatedAt:   time.Now().UTC(),
		}).Error
	})
}

// ListTxns 查询许可证的余额流水（对账用）
func (r *BalanceRepository) ListTxns(licenseKey string, limit int) ([]*model.BalanceTxn, error) {
	var txns []*model.BalanceTxn
	err := r.db.Where("license_key = ?", licenseKey).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
