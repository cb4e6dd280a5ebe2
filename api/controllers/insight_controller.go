/*
 * @module api/controllers/insight_controller
 * @description 洞察记录控制器，提供洞察记录查询、确认与处置接口
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow completed -> acknowledged -> actioned
 * @rules 记录不存在返回 404；非法状态流转返回 409
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/intelligence/insight_store.go
 */

package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"fieldops-insight-service/api/middleware"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// InsightController 洞察记录控制器
type InsightController struct {
	store *intelligence.InsightStore
}

// NewInsightController 创建洞察记录控制器实例
func NewInsightController(store *intelligence.InsightStore) *InsightController {
	return &InsightController{store: store}
}

// InsightActionRequest 确认/处置请求
type InsightActionRequest struct {
	By string `json:"by" example:"alice"`
}

// ListInsights 洞察记录列表
// @Summary 洞察记录列表
// @Description 分页查询洞察记录，按创建时间倒序
// @Tags 洞察记录
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Param domain query string false "领域"
// @Param status query string false "状态"
// @Param persona_key query string false "角色键"
// @Param entity_type query string false "实体类型"
// @Param entity_id query string false "实体ID"
// @Success 200 {object} PaginatedResponse{data=[]models.InsightRecord} "获取成功"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /intelligence/insights [get]
func (c *InsightController) ListInsights(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, size := 1, 20
	if v, err := strconv.Atoi(query.Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(query.Get("size")); err == nil && v > 0 && v <= 100 {
		size = v
	}

	filter := intelligence.InsightFilter{
		Domain:     query.Get("domain"),
		Status:     query.Get("status"),
		PersonaKey: query.Get("persona_key"),
		EntityType: query.Get("entity_type"),
		EntityID:   query.Get("entity_id"),
	}

	records, total, err := c.store.List(r.Context(), filter, page, size)
	if err != nil {
		renderError(w, r, InternalErrorResponse("获取洞察记录失败", err))
		return
	}

	render.JSON(w, r, PaginatedResponse{
		Status: 0,
		Msg:    "获取洞察记录成功",
		Data:   records,
		Total:  total,
		Page:   page,
		Size:   size,
	})
}

// GetInsight 洞察记录详情
// @Summary 洞察记录详情
// @Tags 洞察记录
// @Produce json
// @Param id path string true "记录ID"
// @Success 200 {object} APIResponse{data=models.InsightRecord} "获取成功"
// @Failure 404 {object} APIResponse "记录不存在"
// @Router /intelligence/insights/{id} [get]
func (c *InsightController) GetInsight(w http.ResponseWriter, r *http.Request) {
	record, err := c.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.renderStoreError(w, r, "获取洞察记录失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取洞察记录成功", record))
}

// AcknowledgeInsight 确认洞察
// @Summary 确认洞察
// @Description 仅 completed 状态可确认
// @Tags 洞察记录
// @Accept json
// @Produce json
// @Param id path string true "记录ID"
// @Param request body InsightActionRequest false "操作人"
// @Success 200 {object} APIResponse{data=models.InsightRecord} "确认成功"
// @Failure 404 {object} APIResponse "记录不存在"
// @Failure 409 {object} APIResponse "状态不允许确认"
// @Router /intelligence/insights/{id}/acknowledge [post]
func (c *InsightController) AcknowledgeInsight(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, "确认洞察", c.store.Acknowledge)
}

// ActionInsight 处置洞察
// @Summary 标记洞察已处置
// @Description completed 或 acknowledged 状态可处置
// @Tags 洞察记录
// @Accept json
// @Produce json
// @Param id path string true "记录ID"
// @Param request body InsightActionRequest false "操作人"
// @Success 200 {object} APIResponse{data=models.InsightRecord} "处置成功"
// @Failure 404 {object} APIResponse "记录不存在"
// @Failure 409 {object} APIResponse "状态不允许处置"
// @Router /intelligence/insights/{id}/action [post]
func (c *InsightController) ActionInsight(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, "处置洞察", c.store.MarkActioned)
}

type transitionFunc func(ctx context.Context, id, by string) (*models.InsightRecord, error)

func (c *InsightController) transition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	var req InsightActionRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, BadRequestResponse("请求参数解析失败", err))
			return
		}
	}

	by := req.By
	if by == "" {
		by = middleware.UsernameFromContext(r.Context())
	}

	record, err := fn(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		c.renderStoreError(w, r, action+"失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse(action+"成功", record))
}

func (c *InsightController) renderStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, intelligence.ErrInsightNotFound):
		renderError(w, r, NotFoundResponse(msg, err))
	case errors.Is(err, intelligence.ErrInvalidTransition):
		renderError(w, r, ConflictResponse(msg, err))
	default:
		renderError(w, r, InternalErrorResponse(msg, err))
	}
}
