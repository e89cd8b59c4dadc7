package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBalanceUpdates = "balance_updates"

	MessageTypeBalanceUpdate = "balance_update"

	SourceCredit = "credit"
	SourceDebit  = "debit"
	SourceSweep  = "sweep"
)

// BalanceMessage 余额变动消息，推送给持有该许可证连接的客户端
type BalanceMessage struct {
	Type           string  `json:"type"`
	LicenseKey     string  `json:"license_key"`
	Source         string  `json:"source"` // credit, debit, sweep
	Hours          float64 `json:"hours"`
	HoursRemaining float64 `json:"hours_remaining"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishBalance 发布余额变动消息
func (p *Publisher) PublishBalance(ctx context.Context, msg *BalanceMessage) error {
	msg.Type = MessageTypeBalanceUpdate

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return p.client.Publish(ctx, ChannelBalanceUpdates, data).Err()
}

// Subscriber Redis 订阅者，把余额变动转发给处理函数
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Run 持续订阅余额变动，ctx 取消后返回
func (s *Subscriber) Run(ctx context.Context, handle func(*BalanceMessage)) error {
	sub := s.client.Subscribe(ctx, ChannelBalanceUpdates)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg BalanceMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue // 跳过无法解析的消息
			}
			handle(&msg)
		}
	}
}
