/*
 * @module api/controllers/intelligence_controller
 * @description 洞察引擎控制器，提供领域健康报表、角色查询、上下文评分、门控调用与批量扫描接口
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 控制器 -> 质量门控/聚合器/扫描器 -> 数据库
 * @rules 未知角色与未知领域返回 400；跳过是正常结果而非错误；下游分析失败返回 502 并附带 failed 记录；手动调用按发起人与角色限流，超限返回 429
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, github.com/spf13/cast
 * @refs service/intelligence/gate.go, service/domain_health/aggregator.go, service/batch_scan/scanner.go
 */

package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fieldops-insight-service/api/middleware"
	"fieldops-insight-service/service"
	"fieldops-insight-service/service/batch_scan"
	"fieldops-insight-service/service/context_quality"
	"fieldops-insight-service/service/domain_health"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/service/rate_limiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// IntelligenceController 洞察引擎控制器
type IntelligenceController struct {
	services *service.Services
}

// NewIntelligenceController 创建洞察引擎控制器实例
func NewIntelligenceController(services *service.Services) *IntelligenceController {
	return &IntelligenceController{services: services}
}

// PersonaView 角色策略及下次批量扫描时间，调度未启动时不返回
type PersonaView struct {
	intelligence.Persona
	NextScanAt *time.Time `json:"next_scan_at,omitempty"`
}

// ScoreRequest 上下文评分请求，persona_key 与 domain 二选一
type ScoreRequest struct {
	PersonaKey string                 `json:"persona_key,omitempty" example:"ticket_analyst"`
	Domain     string                 `json:"domain,omitempty" example:"tickets"`
	Params     map[string]interface{} `json:"params"`
}

// ScoreResponse 上下文评分结果
type ScoreResponse struct {
	PersonaKey string                      `json:"persona_key,omitempty"`
	Quality    *models.EntityQualityResult `json:"quality"`
	WouldSkip  bool                        `json:"would_skip"`
}

// InvokeRequest 门控调用请求
type InvokeRequest struct {
	PersonaKey string                 `json:"persona_key" example:"ticket_analyst"`
	EntityType string                 `json:"entity_type,omitempty" example:"ticket"`
	EntityID   string                 `json:"entity_id,omitempty" example:"42"`
	Params     map[string]interface{} `json:"params"`
	Initiator  string                 `json:"initiator,omitempty" example:"alice"`
}

// DomainHealth 领域健康报表
// @Summary 领域健康报表
// @Description 汇总时间窗口内洞察记录的上下文质量、分析结果与常见缺失字段
// @Description
// @Description - domain 为空时返回全部八个领域，按固定顺序
// @Description - days 默认 30，最大 90
// @Tags 洞察引擎
// @Produce json
// @Param domain query string false "领域" Enums(tickets, inbox, projects, campaigns, dispatch, vendors, performance, customers)
// @Param days query int false "统计窗口天数" default(30)
// @Success 200 {object} APIResponse{data=[]models.DomainHealthReport} "获取成功"
// @Failure 400 {object} APIResponse "未知领域"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /intelligence/health [get]
func (c *IntelligenceController) DomainHealth(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	days := domain_health.DefaultWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := cast.ToIntE(raw)
		if err != nil {
			renderError(w, r, BadRequestResponse("days 参数无效", err))
			return
		}
		days = v
	}

	if domain != "" {
		if !models.IsValidDomain(domain) {
			renderError(w, r, BadRequestResponse("未知的领域: "+domain, nil))
			return
		}
		report, err := c.services.Aggregator.DomainReport(r.Context(), domain, days)
		if err != nil {
			renderError(w, r, InternalErrorResponse("获取领域健康报表失败", err))
			return
		}
		render.JSON(w, r, SuccessResponse("获取领域健康报表成功", []*models.DomainHealthReport{report}))
		return
	}

	reports, err := c.services.Aggregator.AllDomainsReport(r.Context(), days)
	if err != nil {
		renderError(w, r, InternalErrorResponse("获取领域健康报表失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("获取领域健康报表成功", reports))
}

// ListPersonas 角色列表
// @Summary 分析角色列表
// @Description 返回生效中的分析角色策略（含配置覆盖），可按领域过滤
// @Tags 洞察引擎
// @Produce json
// @Param domain query string false "领域"
// @Success 200 {object} APIResponse{data=[]PersonaView} "获取成功"
// @Router /intelligence/personas [get]
func (c *IntelligenceController) ListPersonas(w http.ResponseWriter, r *http.Request) {
	personas := c.services.Personas.List()
	if domain := r.URL.Query().Get("domain"); domain != "" {
		personas = c.services.Personas.ForDomain(domain)
	}

	nextRuns := c.services.Scanner.NextRuns()
	views := make([]PersonaView, 0, len(personas))
	for _, p := range personas {
		view := PersonaView{Persona: p}
		if next, ok := nextRuns[p.Key]; ok && !next.IsZero() {
			view.NextScanAt = &next
		}
		views = append(views, view)
	}
	render.JSON(w, r, SuccessResponse("获取角色列表成功", views))
}

// Score 上下文评分
// @Summary 上下文质量评分
// @Description 仅评分，不落库也不调用下游分析
// @Tags 洞察引擎
// @Accept json
// @Produce json
// @Param request body ScoreRequest true "评分请求"
// @Success 200 {object} APIResponse{data=ScoreResponse} "评分成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /intelligence/score [post]
func (c *IntelligenceController) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	if req.PersonaKey != "" {
		eval, err := c.services.Gate.Evaluate(r.Context(), req.PersonaKey, req.Params)
		if err != nil {
			c.renderGateError(w, r, "上下文评分失败", err)
			return
		}
		render.JSON(w, r, SuccessResponse("评分成功", ScoreResponse{
			PersonaKey: eval.Persona.Key,
			Quality:    eval.Quality,
			WouldSkip:  eval.Skip,
		}))
		return
	}

	if req.Domain == "" {
		renderError(w, r, BadRequestResponse("persona_key 与 domain 不能同时为空", nil))
		return
	}
	scorer, err := c.services.Scorers.Get(req.Domain)
	if err != nil {
		renderError(w, r, BadRequestResponse("上下文评分失败", err))
		return
	}
	quality, err := scorer.Score(r.Context(), c.services.DB, req.Params)
	if err != nil {
		renderError(w, r, InternalErrorResponse("上下文评分失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("评分成功", ScoreResponse{Quality: quality}))
}

// Invoke 门控调用
// @Summary 门控调用分析角色
// @Description 评分后按角色策略跳过或调用下游分析，始终落一条洞察记录
// @Description
// @Description **结果状态:**
// @Description - skipped: 上下文不足，未调用下游
// @Description - completed: 分析完成
// @Description - failed: 下游分析失败（HTTP 502，data 中附带记录）
// @Tags 洞察引擎
// @Accept json
// @Produce json
// @Param request body InvokeRequest true "调用请求"
// @Success 200 {object} APIResponse{data=models.InsightRecord} "调用完成"
// @Failure 400 {object} APIResponse "请求参数错误或未知角色"
// @Failure 429 {object} APIResponse "调用过于频繁"
// @Failure 502 {object} APIResponse{data=models.InsightRecord} "下游分析失败"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /intelligence/invoke [post]
func (c *IntelligenceController) Invoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.PersonaKey == "" {
		renderError(w, r, BadRequestResponse("persona_key 不能为空", nil))
		return
	}

	initiator := req.Initiator
	if initiator == "" {
		initiator = middleware.UsernameFromContext(r.Context())
	}
	if !c.allowInvoke(w, r, req.PersonaKey, initiator) {
		return
	}

	record, err := c.services.Gate.Invoke(r.Context(), intelligence.InvokeRequest{
		PersonaKey: req.PersonaKey,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Params:     req.Params,
		Trigger:    models.TriggerManual,
		Initiator:  initiator,
	})
	if err != nil && record != nil {
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, APIResponse{Status: http.StatusBadGateway, Msg: "下游分析失败: " + err.Error(), Data: record})
		return
	}
	if err != nil {
		c.renderGateError(w, r, "门控调用失败", err)
		return
	}

	render.JSON(w, r, SuccessResponse("调用完成", record))
}

// allowInvoke 先按发起人、再按角色限流，限流器故障时放行
func (c *IntelligenceController) allowInvoke(w http.ResponseWriter, r *http.Request, personaKey, initiator string) bool {
	limits := c.services.Config.GetInvokeRateLimit()
	if (limits.PerInitiator == 0 && limits.PerPersona == 0) || c.services.Limiter == nil {
		return true
	}
	if initiator == "" {
		initiator = "anonymous"
	}

	window := int(limits.Window.Seconds())
	result, err := c.services.Limiter.CheckRateLimit(r.Context(), []rate_limiter.RateLimitRule{
		{Scope: rate_limiter.ScopeInitiator, TargetID: initiator, TimeWindow: window, MaxRequests: limits.PerInitiator},
		{Scope: rate_limiter.ScopePersona, TargetID: personaKey, TimeWindow: window, MaxRequests: limits.PerPersona},
	})
	if err != nil {
		slog.Warn("调用限流检查失败，放行请求", "initiator", initiator, "persona", personaKey, "error", err)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", cast.ToString(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", cast.ToString(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", cast.ToString(result.ResetAt))
	w.Header().Set("X-RateLimit-Scope", result.Scope)
	if !result.Allowed {
		renderError(w, r, TooManyRequestsResponse(result.Message, nil))
		return false
	}
	return true
}

// RunBatch 手动触发批量扫描
// @Summary 手动触发批量扫描
// @Description 对指定角色执行一次候选发现、质量筛选与门控调用；同一角色同一时刻只允许一个扫描
// @Tags 洞察引擎
// @Produce json
// @Param persona_key path string true "角色键"
// @Success 200 {object} APIResponse{data=batch_scan.ScanResult} "扫描完成"
// @Failure 400 {object} APIResponse "未知角色"
// @Failure 409 {object} APIResponse "扫描正在执行"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /intelligence/batch/{persona_key}/run [post]
func (c *IntelligenceController) RunBatch(w http.ResponseWriter, r *http.Request) {
	personaKey := chi.URLParam(r, "persona_key")

	result, err := c.services.Scanner.Run(r.Context(), personaKey, models.TriggerManual)
	switch {
	case errors.Is(err, batch_scan.ErrScanInProgress):
		renderError(w, r, ConflictResponse("批量扫描正在执行", err))
	case err != nil:
		c.renderGateError(w, r, "批量扫描失败", err)
	default:
		render.JSON(w, r, SuccessResponse("批量扫描完成", result))
	}
}

// renderGateError 按错误类型映射状态码
func (c *IntelligenceController) renderGateError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, intelligence.ErrUnknownPersona) || errors.Is(err, context_quality.ErrUnknownDomain) {
		renderError(w, r, BadRequestResponse(msg, err))
		return
	}
	renderError(w, r, InternalErrorResponse(msg, err))
}
