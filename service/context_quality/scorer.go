/*
 * @module service/context_quality/scorer
 * @description 实体上下文质量评分器，基于声明式信号表对单个业务实体的数据完备度打分
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 解析实体ID -> 加载实体 -> 逐项计算信号 -> 加权汇总 -> 判定是否充分
 * @rules 只读不写；数据缺失记为0分而非错误；仅数据库不可用时返回错误
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/models/insight.go, service/intelligence/gate.go
 */

package context_quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fieldops-insight-service/service/models"
	"fieldops-insight-service/service/monitoring"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// ThresholdParamKey 调用方覆盖阈值的参数名
const ThresholdParamKey = "_quality_threshold"

// weightScale 权重以千分比表示，同一领域权重之和必须等于该值
const weightScale = 1000

// ErrUnknownDomain 未知领域
var ErrUnknownDomain = errors.New("未知的领域")

// Signal 单个质量信号
// Saturation 为 0 表示存在型信号（0 或 1），否则为计数型信号 min(1, count/Saturation)
type Signal struct {
	Name       string
	Weight     int
	Saturation int
	Extract    func(ctx context.Context, db *gorm.DB, id int64, entity interface{}) (int64, error)
}

// DomainDefinition 领域评分定义
type DomainDefinition struct {
	Domain           string
	IDKey            string
	EntityNoun       string
	EntityType       string
	Table            string
	DefaultThreshold float64
	Load             func(ctx context.Context, db *gorm.DB, id int64) (interface{}, error)
	Signals          []Signal
}

// TotalWeight 信号权重之和
func (d *DomainDefinition) TotalWeight() int {
	total := 0
	for _, s := range d.Signals {
		total += s.Weight
	}
	return total
}

// SignalNames 固定信号集合，按定义顺序
func (d *DomainDefinition) SignalNames() []string {
	names := make([]string, 0, len(d.Signals))
	for _, s := range d.Signals {
		names = append(names, s.Name)
	}
	return names
}

// Validate 校验领域定义
func (d *DomainDefinition) Validate() error {
	if d.TotalWeight() != weightScale {
		return fmt.Errorf("领域 %s 权重之和为 %d，应为 %d", d.Domain, d.TotalWeight(), weightScale)
	}
	seen := make(map[string]bool, len(d.Signals))
	for _, s := range d.Signals {
		if seen[s.Name] {
			return fmt.Errorf("领域 %s 信号重复: %s", d.Domain, s.Name)
		}
		seen[s.Name] = true
		if s.Weight <= 0 || s.Saturation < 0 || s.Extract == nil {
			return fmt.Errorf("领域 %s 信号定义无效: %s", d.Domain, s.Name)
		}
	}
	if d.Load == nil || d.IDKey == "" || d.EntityNoun == "" {
		return fmt.Errorf("领域 %s 缺少实体加载定义", d.Domain)
	}
	return nil
}

// Scorer 领域评分器
type Scorer struct {
	def *DomainDefinition
}

// NewScorer 创建领域评分器
func NewScorer(def *DomainDefinition) (*Scorer, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{def: def}, nil
}

// Definition 返回领域定义
func (s *Scorer) Definition() *DomainDefinition {
	return s.def
}

// Domain 领域名称
func (s *Scorer) Domain() string {
	return s.def.Domain
}

// Score 计算实体上下文质量
func (s *Scorer) Score(ctx context.Context, db *gorm.DB, params map[string]interface{}) (*models.EntityQualityResult, error) {
	start := time.Now()
	defer func() {
		monitoring.ScorerDuration.WithLabelValues(s.def.Domain).Observe(time.Since(start).Seconds())
	}()

	threshold := s.resolveThreshold(params)

	id, ok := parseEntityID(params, s.def.IDKey)
	if !ok {
		return s.zeroResult(threshold, s.def.IDKey), nil
	}

	entity, err := s.def.Load(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("加载%s失败: %w", s.def.EntityNoun, err)
	}
	if entity == nil {
		return s.zeroResult(threshold, s.def.EntityNoun), nil
	}

	result := &models.EntityQualityResult{
		Domain:        s.def.Domain,
		FieldScores:   make(map[string]float64, len(s.def.Signals)),
		MissingFields: make([]string, 0),
		Threshold:     threshold,
	}

	composite := 0.0
	for _, signal := range s.def.Signals {
		count, err := signal.Extract(ctx, db, id, entity)
		if err != nil {
			return nil, fmt.Errorf("计算信号 %s.%s 失败: %w", s.def.Domain, signal.Name, err)
		}

		value := signalValue(count, signal.Saturation)
		result.FieldScores[signal.Name] = value
		if value == 0 {
			result.MissingFields = append(result.MissingFields, signal.Name)
		}
		composite += float64(signal.Weight) * value
	}

	result.Score = round2(composite / weightScale)
	result.Sufficient = result.Score >= threshold
	return result, nil
}

// zeroResult 标识缺失或实体不存在时的零分结果
func (s *Scorer) zeroResult(threshold float64, missing string) *models.EntityQualityResult {
	fieldScores := make(map[string]float64, len(s.def.Signals))
	for _, signal := range s.def.Signals {
		fieldScores[signal.Name] = 0
	}
	return &models.EntityQualityResult{
		Domain:        s.def.Domain,
		Score:         0,
		FieldScores:   fieldScores,
		MissingFields: []string{missing},
		Sufficient:    false,
		Threshold:     threshold,
	}
}

// resolveThreshold 优先使用参数中的阈值
func (s *Scorer) resolveThreshold(params map[string]interface{}) float64 {
	if raw, ok := params[ThresholdParamKey]; ok && raw != nil {
		if v, err := cast.ToFloat64E(raw); err == nil {
			return v
		}
	}
	return s.def.DefaultThreshold
}

// parseEntityID 解析实体ID，小数、非数字字符串和非正数均视为无效，不做截断
func parseEntityID(params map[string]interface{}, key string) (int64, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false
	}

	var id int64
	var err error
	switch v := raw.(type) {
	case float64:
		id, err = wholeFloat(v)
	case float32:
		id, err = wholeFloat(float64(v))
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case json.Number:
		id, err = strconv.ParseInt(v.String(), 10, 64)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		id, err = cast.ToInt64E(v)
	default:
		return 0, false
	}
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// wholeFloat JSON 解码后的数字为 float64，只接受整数值
func wholeFloat(v float64) (int64, error) {
	if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("非整数ID: %v", v)
	}
	return int64(v), nil
}

// signalValue 存在型信号取 0/1，计数型信号线性饱和
func signalValue(count int64, saturation int) float64 {
	if count <= 0 {
		return 0
	}
	if saturation <= 0 {
		return 1
	}
	return math.Min(1, float64(count)/float64(saturation))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
