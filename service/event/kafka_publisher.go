package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldops-insight-service/service/models"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic 默认洞察事件主题
const DefaultKafkaTopic = "fieldops.insights"

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher Kafka 通道
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher 创建 Kafka 发布器，brokers 为逗号分隔地址
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	addrs := make([]string, 0)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	slog.Info("Kafka洞察事件发布器初始化", "brokers", addrs, "topic", topic)
	return newKafkaPublisherWithWriter(writer, topic)
}

func newKafkaPublisherWithWriter(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
	}
}

// Name 通道名称
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish 以领域+实体作为消息键，保证同一实体的事件落在同一分区
func (p *KafkaPublisher) Publish(ctx context.Context, event *models.InsightEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化洞察事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Domain + ":" + event.EntityType + ":" + event.EntityID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "domain", Value: []byte(event.Domain)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送Kafka消息失败: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
