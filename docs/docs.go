// Package docs registers the swagger document served at /swagger.
// Regenerate with: swag init -g main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/controllers.HealthResponse"}}}
            }
        },
        "/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "就绪检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/controllers.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/controllers.HealthResponse"}}
                }
            }
        },
        "/intelligence/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["洞察引擎"],
                "summary": "领域健康报表",
                "parameters": [
                    {"enum": ["tickets", "inbox", "projects", "campaigns", "dispatch", "vendors", "performance", "customers"], "type": "string", "description": "领域", "name": "domain", "in": "query"},
                    {"type": "integer", "default": 30, "description": "统计窗口天数", "name": "days", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "获取成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "400": {"description": "未知领域", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/personas": {
            "get": {
                "produces": ["application/json"],
                "tags": ["洞察引擎"],
                "summary": "分析角色列表",
                "parameters": [{"type": "string", "description": "领域", "name": "domain", "in": "query"}],
                "responses": {"200": {"description": "获取成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}}
            }
        },
        "/intelligence/score": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["洞察引擎"],
                "summary": "上下文质量评分",
                "parameters": [{"description": "评分请求", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.ScoreRequest"}}],
                "responses": {
                    "200": {"description": "评分成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "400": {"description": "请求参数错误", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/invoke": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["洞察引擎"],
                "summary": "门控调用分析角色",
                "parameters": [{"description": "调用请求", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.InvokeRequest"}}],
                "responses": {
                    "200": {"description": "调用完成", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "400": {"description": "请求参数错误或未知角色", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "502": {"description": "下游分析失败", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/batch/{persona_key}/run": {
            "post": {
                "produces": ["application/json"],
                "tags": ["洞察引擎"],
                "summary": "手动触发批量扫描",
                "parameters": [{"type": "string", "description": "角色键", "name": "persona_key", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "扫描完成", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "409": {"description": "扫描正在执行", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/insights": {
            "get": {
                "produces": ["application/json"],
                "tags": ["洞察记录"],
                "summary": "洞察记录列表",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "每页大小", "name": "size", "in": "query"},
                    {"type": "string", "description": "领域", "name": "domain", "in": "query"},
                    {"type": "string", "description": "状态", "name": "status", "in": "query"},
                    {"type": "string", "description": "角色键", "name": "persona_key", "in": "query"},
                    {"type": "string", "description": "实体类型", "name": "entity_type", "in": "query"},
                    {"type": "string", "description": "实体ID", "name": "entity_id", "in": "query"}
                ],
                "responses": {"200": {"description": "获取成功", "schema": {"$ref": "#/definitions/controllers.PaginatedResponse"}}}
            }
        },
        "/intelligence/insights/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["洞察记录"],
                "summary": "洞察记录详情",
                "parameters": [{"type": "string", "description": "记录ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "获取成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "404": {"description": "记录不存在", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/insights/{id}/acknowledge": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["洞察记录"],
                "summary": "确认洞察",
                "parameters": [
                    {"type": "string", "description": "记录ID", "name": "id", "in": "path", "required": true},
                    {"description": "操作人", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/controllers.InsightActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "确认成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "409": {"description": "状态不允许确认", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/intelligence/insights/{id}/action": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["洞察记录"],
                "summary": "标记洞察已处置",
                "parameters": [
                    {"type": "string", "description": "记录ID", "name": "id", "in": "path", "required": true},
                    {"description": "操作人", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/controllers.InsightActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "处置成功", "schema": {"$ref": "#/definitions/controllers.APIResponse"}},
                    "409": {"description": "状态不允许处置", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}
                }
            }
        },
        "/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统配置"],
                "summary": "获取所有系统配置",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}}
            }
        },
        "/config/{key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统配置"],
                "summary": "获取单个配置",
                "parameters": [{"type": "string", "description": "配置键", "name": "key", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["系统配置"],
                "summary": "更新配置",
                "parameters": [
                    {"type": "string", "description": "配置键", "name": "key", "in": "path", "required": true},
                    {"description": "更新配置请求", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/controllers.UpdateConfigRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/controllers.APIResponse"}}}
            }
        }
    },
    "definitions": {
        "controllers.APIResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "msg": {"type": "string", "example": "操作成功"},
                "status": {"type": "integer", "example": 0}
            }
        },
        "controllers.PaginatedResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "msg": {"type": "string", "example": "操作成功"},
                "page": {"type": "integer", "example": 1},
                "size": {"type": "integer", "example": 10},
                "status": {"type": "integer", "example": 0},
                "total": {"type": "integer", "example": 100}
            }
        },
        "controllers.HealthResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "service": {"type": "string", "example": "fieldops-insight-service"},
                "status": {"type": "string", "example": "ok"},
                "timestamp": {"type": "string", "example": "2024-01-01T00:00:00Z"},
                "version": {"type": "string", "example": "1.0.0"}
            }
        },
        "controllers.ScoreRequest": {
            "type": "object",
            "properties": {
                "domain": {"type": "string", "example": "tickets"},
                "params": {"type": "object", "additionalProperties": true},
                "persona_key": {"type": "string", "example": "ticket_analyst"}
            }
        },
        "controllers.InvokeRequest": {
            "type": "object",
            "properties": {
                "entity_id": {"type": "string", "example": "42"},
                "entity_type": {"type": "string", "example": "ticket"},
                "initiator": {"type": "string", "example": "alice"},
                "params": {"type": "object", "additionalProperties": true},
                "persona_key": {"type": "string", "example": "ticket_analyst"}
            }
        },
        "controllers.InsightActionRequest": {
            "type": "object",
            "properties": {
                "by": {"type": "string", "example": "alice"}
            }
        },
        "controllers.UpdateConfigRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "value": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/swagger/fieldops-insight-service",
	Schemes:          []string{},
	Title:            "现场服务洞察引擎 API",
	Description:      "CRM/现场服务 AI 洞察引擎的上下文质量门控服务，提供实体上下文评分、门控调用、洞察记录与领域健康报表",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
