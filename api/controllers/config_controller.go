/*
 * @module api/controllers/config_controller
 * @description 配置管理控制器，提供洞察引擎运行时配置的查询与更新接口
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 控制器 -> 配置服务 -> 数据库
 * @rules 报表阈值与批量参数即时生效（缓存过期后）；persona.* 角色策略覆盖在服务重启后生效
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/config
 */

package controllers

import (
	"errors"
	"net/http"

	"fieldops-insight-service/service/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ConfigController 配置控制器
type ConfigController struct {
	configService *config.ConfigService
}

// NewConfigController 创建配置控制器实例
func NewConfigController(configService *config.ConfigService) *ConfigController {
	return &ConfigController{configService: configService}
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// BatchUpdateConfigsRequest 批量更新配置请求
type BatchUpdateConfigsRequest struct {
	Configs []struct {
		Key         string `json:"key"`
		Value       string `json:"value"`
		Description string `json:"description"`
	} `json:"configs"`
}

// GetAllConfigs 获取所有配置
// @Summary 获取所有系统配置
// @Description 获取已存储的配置项，未存储的内置项以默认值补齐
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.SystemConfigItem}
// @Router /config [get]
func (c *ConfigController) GetAllConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.configService.GetAllSystemConfigs()
	if err != nil {
		renderError(w, r, InternalErrorResponse("获取配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("获取配置成功", configs))
}

// GetConfig 获取单个配置
// @Summary 获取单个配置
// @Description 根据键名获取配置值（数据库优先，其次配置文件）
// @Tags 系统配置
// @Produce json
// @Param key path string true "配置键"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /config/{key} [get]
func (c *ConfigController) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, err := c.configService.GetSystemConfig(key)
	if errors.Is(err, config.ErrConfigNotFound) {
		renderError(w, r, NotFoundResponse("配置项不存在", err))
		return
	}
	if err != nil {
		renderError(w, r, InternalErrorResponse("获取配置失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取配置成功", map[string]interface{}{
		"key":   key,
		"value": value,
	}))
}

// UpdateConfig 更新配置
// @Summary 更新配置
// @Description 更新指定键的配置值
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param key path string true "配置键"
// @Param request body UpdateConfigRequest true "更新配置请求"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /config/{key} [put]
func (c *ConfigController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, BadRequestResponse("请求参数错误", err))
		return
	}
	if req.Value == "" {
		renderError(w, r, BadRequestResponse("配置值不能为空", nil))
		return
	}

	if err := c.configService.SetSystemConfig(key, req.Value, req.Description); err != nil {
		renderError(w, r, InternalErrorResponse("更新配置失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("更新配置成功", map[string]interface{}{
		"key":   key,
		"value": req.Value,
	}))
}

// BatchUpdateConfigs 批量更新配置
// @Summary 批量更新配置
// @Description 批量更新多个配置项，单项失败不影响其他项
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param request body BatchUpdateConfigsRequest true "批量更新配置请求"
// @Success 200 {object} APIResponse
// @Router /config/batch [post]
func (c *ConfigController) BatchUpdateConfigs(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateConfigsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, BadRequestResponse("请求参数错误", err))
		return
	}

	successCount := 0
	failures := []string{}
	for _, item := range req.Configs {
		if err := c.configService.SetSystemConfig(item.Key, item.Value, item.Description); err != nil {
			failures = append(failures, item.Key+": "+err.Error())
			continue
		}
		successCount++
	}

	render.JSON(w, r, SuccessResponse("批量更新完成", map[string]interface{}{
		"success_count": successCount,
		"failed_count":  len(failures),
		"errors":        failures,
	}))
}
