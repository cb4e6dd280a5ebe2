/*
 * @module service/intelligence/persona
 * @description 分析角色注册表，定义每个角色对应的领域、质量阈值与低质量跳过策略
 * @architecture 分层架构 - 业务服务层
 * @documentReference DESIGN.md
 * @stateFlow 内置策略 -> 配置覆盖 -> 校验 -> 只读注册表
 * @rules 注册表启动时构建并显式传递；未知角色直接报错，不回退默认角色
 * @dependencies github.com/robfig/cron/v3
 * @refs service/config/config_service.go, service/intelligence/gate.go
 */

package intelligence

import (
	"errors"
	"fmt"
	"sort"

	"fieldops-insight-service/service/config"
	"fieldops-insight-service/service/models"

	"github.com/robfig/cron/v3"
)

// ErrUnknownPersona 未知角色
var ErrUnknownPersona = errors.New("未知的分析角色")

// Persona 分析角色策略
type Persona struct {
	Key               string  `json:"key"`
	DisplayName       string  `json:"display_name"`
	Domain            string  `json:"domain"`
	MinContextQuality float64 `json:"min_context_quality"`
	SkipOnLowQuality  bool    `json:"skip_on_low_quality"`
	ScanSchedule      string  `json:"scan_schedule"`
	ScanLimit         int     `json:"scan_limit"`
}

// DefaultPersonas 内置角色策略
func DefaultPersonas() []Persona {
	return []Persona{
		{Key: "ticket_analyst", DisplayName: "工单分析师", Domain: models.DomainTickets, MinContextQuality: 0.30, SkipOnLowQuality: true, ScanSchedule: "0 0 */2 * * *", ScanLimit: 50},
		{Key: "inbox_analyst", DisplayName: "会话分析师", Domain: models.DomainInbox, MinContextQuality: 0.30, SkipOnLowQuality: true, ScanSchedule: "0 30 * * * *", ScanLimit: 50},
		{Key: "project_advisor", DisplayName: "项目顾问", Domain: models.DomainProjects, MinContextQuality: 0.35, SkipOnLowQuality: true, ScanSchedule: "0 0 6 * * *", ScanLimit: 30},
		{Key: "campaign_optimizer", DisplayName: "营销优化师", Domain: models.DomainCampaigns, MinContextQuality: 0.40, SkipOnLowQuality: true, ScanSchedule: "0 0 7 * * *", ScanLimit: 20},
		{Key: "dispatch_planner", DisplayName: "派工规划师", Domain: models.DomainDispatch, MinContextQuality: 0.35, SkipOnLowQuality: true, ScanSchedule: "0 0 5 * * *", ScanLimit: 100},
		{Key: "vendor_analyst", DisplayName: "供应商分析师", Domain: models.DomainVendors, MinContextQuality: 0.25, SkipOnLowQuality: false, ScanSchedule: "0 0 3 * * 1", ScanLimit: 30},
		{Key: "performance_coach", DisplayName: "绩效教练", Domain: models.DomainPerformance, MinContextQuality: 0.30, SkipOnLowQuality: true, ScanSchedule: "0 0 4 * * 1", ScanLimit: 50},
		{Key: "customer_success", DisplayName: "客户成功经理", Domain: models.DomainCustomers, MinContextQuality: 0.25, SkipOnLowQuality: false, ScanSchedule: "0 0 8 * * *", ScanLimit: 50},
	}
}

// OverrideSource 角色策略覆盖来源
type OverrideSource interface {
	GetPersonaPolicyOverride(personaKey string) config.PersonaOverride
}

// PersonaRegistry 角色注册表，构建后只读
type PersonaRegistry struct {
	personas map[string]Persona
}

// NewPersonaRegistry 创建角色注册表，为空时使用内置策略
func NewPersonaRegistry(personas ...Persona) (*PersonaRegistry, error) {
	if len(personas) == 0 {
		personas = DefaultPersonas()
	}

	registry := &PersonaRegistry{personas: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		if err := validatePersona(p); err != nil {
			return nil, err
		}
		if _, exists := registry.personas[p.Key]; exists {
			return nil, fmt.Errorf("角色重复注册: %s", p.Key)
		}
		registry.personas[p.Key] = p
	}
	return registry, nil
}

// WithOverrides 应用配置覆盖后返回新的注册表
func (r *PersonaRegistry) WithOverrides(src OverrideSource) (*PersonaRegistry, error) {
	personas := make([]Persona, 0, len(r.personas))
	for _, p := range r.List() {
		o := src.GetPersonaPolicyOverride(p.Key)
		if o.MinContextQuality != nil {
			p.MinContextQuality = *o.MinContextQuality
		}
		if o.SkipOnLowQuality != nil {
			p.SkipOnLowQuality = *o.SkipOnLowQuality
		}
		if o.ScanSchedule != nil {
			p.ScanSchedule = *o.ScanSchedule
		}
		if o.ScanLimit != nil {
			p.ScanLimit = *o.ScanLimit
		}
		personas = append(personas, p)
	}
	return NewPersonaRegistry(personas...)
}

// Get 获取角色
func (r *PersonaRegistry) Get(key string) (Persona, error) {
	p, ok := r.personas[key]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrUnknownPersona, key)
	}
	return p, nil
}

// List 按领域顺序列出角色
func (r *PersonaRegistry) List() []Persona {
	order := make(map[string]int, len(models.AllDomains))
	for i, d := range models.AllDomains {
		order[d] = i
	}

	list := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if order[list[i].Domain] != order[list[j].Domain] {
			return order[list[i].Domain] < order[list[j].Domain]
		}
		return list[i].Key < list[j].Key
	})
	return list
}

// ForDomain 列出某领域的角色
func (r *PersonaRegistry) ForDomain(domain string) []Persona {
	result := make([]Persona, 0)
	for _, p := range r.List() {
		if p.Domain == domain {
			result = append(result, p)
		}
	}
	return result
}

func validatePersona(p Persona) error {
	if p.Key == "" {
		return errors.New("角色键不能为空")
	}
	if !models.IsValidDomain(p.Domain) {
		return fmt.Errorf("角色 %s 的领域无效: %s", p.Key, p.Domain)
	}
	if p.MinContextQuality < 0 || p.MinContextQuality > 1 {
		return fmt.Errorf("角色 %s 的质量阈值超出范围: %v", p.Key, p.MinContextQuality)
	}
	if p.ScanSchedule != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(p.ScanSchedule); err != nil {
			return fmt.Errorf("角色 %s 的扫描计划无效: %w", p.Key, err)
		}
	}
	if p.ScanLimit < 0 {
		return fmt.Errorf("角色 %s 的扫描上限无效: %d", p.Key, p.ScanLimit)
	}
	return nil
}
