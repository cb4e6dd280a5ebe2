/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, service/init.go
 */

package api

import (
	"fieldops-insight-service/api/controllers"
	authmw "fieldops-insight-service/api/middleware"
	"fieldops-insight-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r chi.Router, services *service.Services) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 可选鉴权
	if auth := authmw.NewTokenAuthFromEnv(); auth != nil {
		r.Use(auth.Middleware)
	}

	// 健康检查
	healthController := controllers.NewHealthController(services)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 洞察引擎
	r.Route("/intelligence", func(r chi.Router) {
		intelligenceController := controllers.NewIntelligenceController(services)
		r.Get("/health", intelligenceController.DomainHealth)
		r.Get("/personas", intelligenceController.ListPersonas)
		r.Post("/score", intelligenceController.Score)
		r.Post("/invoke", intelligenceController.Invoke)
		r.Post("/batch/{persona_key}/run", intelligenceController.RunBatch)

		// 洞察记录
		insightController := controllers.NewInsightController(services.Gate.Store())
		r.Get("/insights", insightController.ListInsights)
		r.Get("/insights/{id}", insightController.GetInsight)
		r.Post("/insights/{id}/acknowledge", insightController.AcknowledgeInsight)
		r.Post("/insights/{id}/action", insightController.ActionInsight)
	})

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController(services.Config)
		r.Get("/", configController.GetAllConfigs)
		r.Post("/batch", configController.BatchUpdateConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.Put("/{key}", configController.UpdateConfig)
	})
}
