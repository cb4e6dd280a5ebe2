package context_quality

import (
	"fmt"

	"fieldops-insight-service/service/models"
)

// Registry 领域评分器注册表，启动时构建后只读
type Registry struct {
	scorers map[string]*Scorer
}

// DefaultDefinitions 八个领域的信号定义
func DefaultDefinitions() []*DomainDefinition {
	return []*DomainDefinition{
		ticketsDefinition(),
		inboxDefinition(),
		projectsDefinition(),
		campaignsDefinition(),
		dispatchDefinition(),
		vendorsDefinition(),
		performanceDefinition(),
		customersDefinition(),
	}
}

// NewRegistry 根据领域定义创建注册表
func NewRegistry(defs ...*DomainDefinition) (*Registry, error) {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}

	registry := &Registry{scorers: make(map[string]*Scorer, len(defs))}
	for _, def := range defs {
		scorer, err := NewScorer(def)
		if err != nil {
			return nil, err
		}
		if _, exists := registry.scorers[def.Domain]; exists {
			return nil, fmt.Errorf("领域重复注册: %s", def.Domain)
		}
		registry.scorers[def.Domain] = scorer
	}
	return registry, nil
}

// MustNewRegistry 创建默认注册表，定义非法时 panic
func MustNewRegistry() *Registry {
	registry, err := NewRegistry()
	if err != nil {
		panic(fmt.Sprintf("初始化上下文质量评分器失败: %v", err))
	}
	return registry
}

// Get 获取领域评分器
func (r *Registry) Get(domain string) (*Scorer, error) {
	scorer, ok := r.scorers[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return scorer, nil
}

// Domains 已注册领域，按固定领域顺序返回
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.scorers))
	for _, d := range models.AllDomains {
		if _, ok := r.scorers[d]; ok {
			domains = append(domains, d)
		}
	}
	return domains
}
