package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fieldops-insight-service/service/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTopicPrefix 默认主题前缀，完整主题为 <prefix>/<domain>/<status>
const DefaultMQTTTopicPrefix = "fieldops/insights"

// tokenPublisher mqtt.Client 的发布子集
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher MQTT 通道，供现场终端/看板订阅
type MQTTPublisher struct {
	client      tokenPublisher
	disconnect  func()
	topicPrefix string
	qos         byte
	timeout     time.Duration
}

// NewMQTTPublisher 连接 broker 并创建发布器
func NewMQTTPublisher(broker, clientID, username, password, topicPrefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT连接断开", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if err := waitConnect(client.Connect(), broker, 10*time.Second); err != nil {
		client.Disconnect(0)
		return nil, err
	}

	slog.Info("MQTT洞察事件发布器初始化", "broker", broker, "client_id", clientID)
	p := newMQTTPublisherWithClient(client, topicPrefix)
	p.disconnect = func() { client.Disconnect(250) }
	return p, nil
}

// waitConnect 连接超时与连接失败都视为启动失败
func waitConnect(token mqtt.Token, broker string, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("MQTT连接超时: %s", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT连接失败: %w", err)
	}
	return nil
}

func newMQTTPublisherWithClient(client tokenPublisher, topicPrefix string) *MQTTPublisher {
	if topicPrefix == "" {
		topicPrefix = DefaultMQTTTopicPrefix
	}
	return &MQTTPublisher{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         1,
		timeout:     5 * time.Second,
	}
}

// Name 通道名称
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic 事件对应的主题
func (p *MQTTPublisher) Topic(event *models.InsightEvent) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, event.Domain, event.Status)
}

// Publish 发布事件
func (p *MQTTPublisher) Publish(_ context.Context, event *models.InsightEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化洞察事件失败: %w", err)
	}

	token := p.client.Publish(p.Topic(event), p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("发布MQTT消息超时: %s", p.Topic(event))
	}
	if token.Error() != nil {
		return fmt.Errorf("发布MQTT消息失败: %w", token.Error())
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() error {
	if p.disconnect != nil {
		p.disconnect()
	}
	return nil
}
