/*
 * @module service/event/publisher
 * @description 洞察事件发布器，将到达终态的洞察记录以事件形式推送给下游消费者
 * @architecture 事件驱动架构 - 适配器层
 * @documentReference DESIGN.md
 * @stateFlow 洞察记录落库 -> 构建事件 -> 多通道发布
 * @rules 事件发布为尽力而为，失败只记录日志与指标，不影响已提交的洞察记录
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang
 * @refs service/intelligence/gate.go
 */

package event

import (
	"context"
	"errors"
	"log/slog"

	"fieldops-insight-service/service/models"
	"fieldops-insight-service/service/monitoring"
)

// Publisher 洞察事件发布接口
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event *models.InsightEvent) error
	Close() error
}

// NoopPublisher 未配置任何通道时使用
type NoopPublisher struct{}

// Name 通道名称
func (NoopPublisher) Name() string { return "noop" }

// Publish 丢弃事件
func (NoopPublisher) Publish(context.Context, *models.InsightEvent) error { return nil }

// Close 无需释放资源
func (NoopPublisher) Close() error { return nil }

// MultiPublisher 多通道扇出发布
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher 创建多通道发布器
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Name 通道名称
func (m *MultiPublisher) Name() string { return "multi" }

// Publish 向所有通道发布，单个通道失败不影响其他通道
func (m *MultiPublisher) Publish(ctx context.Context, event *models.InsightEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			monitoring.EventPublishFailures.WithLabelValues(p.Name()).Inc()
			slog.Warn("洞察事件发布失败",
				"sink", p.Name(),
				"insight_id", event.InsightID,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有通道
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len 已配置通道数
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}
