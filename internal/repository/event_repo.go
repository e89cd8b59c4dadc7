package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/license_go_server/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record 记录事件接收。event_id 命中唯一索引时返回已存在的记录，
// 调用方据此实现重复投递的无副作用应答
func (r *EventRepository) Record(event *model.PaymentEvent) (*model.PaymentEvent, bool, error) {
	err := r.db.Create(event).Error
	if err == nil {
		return event, true, nil
	}

	if isDuplicateKeyError(err) {
		existing, getErr := r.GetByEventID(event.EventID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}

	return nil, false, err
}

func (r *EventRepository) GetByEventID(eventID string) (*model.PaymentEvent, error) {
	var event model.PaymentEvent
	err := r.db.Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateOutcome 更新事件处理结果。credited 是守卫终态：
// 入账事务提交后任何路径（回调超时转队列、人工标记）都不能再改写，
// 否则 worker 会把同一 event_id 入账第二次。
// 返回 false 表示事件已入账，本次更新未生效
func (r *EventRepository) UpdateOutcome(eventID, outcome, errMsg string) (bool, error) {
	updates := map[string]interface{}{
		"outcome":      outcome,
		"processed_at": time.Now().UTC(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	result := r.db.Model(&model.PaymentEvent{}).
		Where("event_id = ? AND outcome <> ?", eventID, model.EventOutcomeCredited).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementAttempts 累计入账重试次数
func (r *EventRepository) IncrementAttempts(eventID string) error {
	return r.db.Model(&model.PaymentEvent{}).
		Where("event_id = ?", eventID).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// ListByOutcome 按结果查询事件
func (r *EventRepository) ListByOutcome(outcome string, limit int) ([]*model.PaymentEvent, error) {
	var events []*model.PaymentEvent
	err := r.db.Where("outcome = ?", outcome).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// isDuplicateKeyError 识别唯一索引冲突（MySQL 1062 / SQLite UNIQUE constraint）
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
