/*
 * @module service/entity_change/listener
 * @description 实体变更监听器，订阅 PostgreSQL LISTEN/NOTIFY 通道，实体写入后按领域触发门控调用
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 连接数据库 -> 逐领域 LISTEN -> 接收通知 -> 解析实体ID -> 冷却去重 -> 领域内各角色 Invoke(trigger=event)
 * @rules 删除事件忽略；表名与领域不符的通知忽略；同一实体在冷却期内只触发一次；单个角色失败不影响其余角色
 * @dependencies github.com/lib/pq, fieldops-insight-service/service/intelligence
 * @refs service/entity_change/triggers.go, service/init.go
 */

package entity_change

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"

	"github.com/lib/pq"
)

// ChannelPrefix 通知通道前缀，完整通道名为前缀加领域
const ChannelPrefix = "fieldops_insight_"

// Initiator 事件触发记录的发起人
const Initiator = "entity_change"

// DefaultCooldown 同一实体两次触发的最小间隔
const DefaultCooldown = time.Minute

// ChannelName 领域对应的通知通道
func ChannelName(domain string) string {
	return ChannelPrefix + domain
}

// ChangeEvent 触发器发送的通知内容
type ChangeEvent struct {
	Table    string      `json:"table"`
	Type     string      `json:"type"`
	RecordID interface{} `json:"record_id"`
}

// Listener 实体变更监听器
type Listener struct {
	gate     *intelligence.QualityGate
	dsn      string
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time

	listener *pq.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewListener 创建监听器，cooldown 不大于 0 时使用 DefaultCooldown
func NewListener(gate *intelligence.QualityGate, dsn string, cooldown time.Duration) *Listener {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		gate:     gate,
		dsn:      dsn,
		cooldown: cooldown,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Channels 需要订阅的通道，每个领域一个
func (l *Listener) Channels() []string {
	domains := l.gate.Scorers().Domains()
	channels := make([]string, 0, len(domains))
	for _, domain := range domains {
		channels = append(channels, ChannelName(domain))
	}
	return channels
}

// Start 建立监听连接并订阅全部领域通道
func (l *Listener) Start() error {
	l.listener = pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("实体变更监听连接事件", "event", ev, "error", err)
		}
	})

	for _, channel := range l.Channels() {
		if err := l.listener.Listen(channel); err != nil {
			l.listener.Close()
			return fmt.Errorf("订阅通道 %s 失败: %w", channel, err)
		}
	}

	l.done = make(chan struct{})
	go l.loop()
	slog.Info("实体变更监听器已启动", "channels", len(l.Channels()))
	return nil
}

// Stop 停止监听并等待处理中的通知结束
func (l *Listener) Stop() {
	l.cancel()
	if l.done != nil {
		<-l.done
	}
	if l.listener != nil {
		l.listener.Close()
	}
	slog.Info("实体变更监听器已停止")
}

func (l *Listener) loop() {
	defer close(l.done)
	for {
		select {
		case n := <-l.listener.Notify:
			// 重连后 pq 会发送 nil 通知
			if n == nil {
				continue
			}
			domain := strings.TrimPrefix(n.Channel, ChannelPrefix)
			if _, err := l.Dispatch(l.ctx, domain, n.Extra); err != nil {
				slog.Error("处理实体变更通知失败", "channel", n.Channel, "payload", n.Extra, "error", err)
			}
		case <-time.After(90 * time.Second):
			go l.listener.Ping()
		case <-l.ctx.Done():
			return
		}
	}
}

// Dispatch 处理单条变更通知，为领域内每个角色发起一次门控调用
func (l *Listener) Dispatch(ctx context.Context, domain, payload string) ([]*models.InsightRecord, error) {
	scorer, err := l.gate.Scorers().Get(domain)
	if err != nil {
		return nil, err
	}
	def := scorer.Definition()

	change, err := ParseChangeEvent(payload)
	if err != nil {
		return nil, err
	}
	if change.Type == "DELETE" {
		return nil, nil
	}
	if change.Table != "" && change.Table != def.Table {
		slog.Warn("通知表名与领域不符，忽略", "domain", domain, "table", change.Table)
		return nil, nil
	}

	if change.RecordID == nil {
		return nil, fmt.Errorf("通知缺少 record_id: %s", payload)
	}
	entityID := strings.TrimSpace(fmt.Sprint(change.RecordID))
	if entityID == "" {
		return nil, fmt.Errorf("通知缺少 record_id: %s", payload)
	}
	if !l.admit(domain + ":" + entityID) {
		slog.Debug("实体仍在冷却期内，忽略", "domain", domain, "entity_id", entityID)
		return nil, nil
	}

	var records []*models.InsightRecord
	var errs []error
	for _, persona := range l.gate.Personas().ForDomain(domain) {
		record, err := l.gate.Invoke(ctx, intelligence.InvokeRequest{
			PersonaKey: persona.Key,
			EntityType: def.EntityType,
			EntityID:   entityID,
			Params:     map[string]interface{}{def.IDKey: entityID},
			Trigger:    models.TriggerEvent,
			Initiator:  Initiator,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("角色 %s: %w", persona.Key, err))
		}
		if record != nil {
			records = append(records, record)
		}
	}
	return records, errors.Join(errs...)
}

// admit 冷却期判断，通过时记录本次触发时间
func (l *Listener) admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastSeen[key]; ok && now.Sub(last) < l.cooldown {
		return false
	}
	for k, t := range l.lastSeen {
		if now.Sub(t) >= l.cooldown {
			delete(l.lastSeen, k)
		}
	}
	l.lastSeen[key] = now
	return true
}

// ParseChangeEvent 解析通知内容，非 JSON 内容视为实体ID
func ParseChangeEvent(payload string) (*ChangeEvent, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("通知内容为空")
	}
	if !strings.HasPrefix(payload, "{") {
		return &ChangeEvent{RecordID: payload}, nil
	}

	decoder := json.NewDecoder(bytes.NewBufferString(payload))
	decoder.UseNumber()
	var change ChangeEvent
	if err := decoder.Decode(&change); err != nil {
		return nil, fmt.Errorf("解析变更通知失败: %w", err)
	}
	change.Type = strings.ToUpper(change.Type)
	return &change, nil
}
