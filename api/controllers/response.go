package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) APIResponse {
	return APIResponse{Status: 0, Msg: msg, Data: data}
}

// ErrorResponse 错误响应，status 与 HTTP 状态码一致
func ErrorResponse(status int, msg string, err error) APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return APIResponse{Status: status, Msg: msg}
}

// BadRequestResponse 400
func BadRequestResponse(msg string, err error) APIResponse {
	return ErrorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 404
func NotFoundResponse(msg string, err error) APIResponse {
	return ErrorResponse(http.StatusNotFound, msg, err)
}

// ConflictResponse 409
func ConflictResponse(msg string, err error) APIResponse {
	return ErrorResponse(http.StatusConflict, msg, err)
}

// TooManyRequestsResponse 429 响应
func TooManyRequestsResponse(msg string, err error) APIResponse {
	return ErrorResponse(http.StatusTooManyRequests, msg, err)
}

// InternalErrorResponse 500
func InternalErrorResponse(msg string, err error) APIResponse {
	return ErrorResponse(http.StatusInternalServerError, msg, err)
}

// renderError 同时设置 HTTP 状态码
func renderError(w http.ResponseWriter, r *http.Request, resp APIResponse) {
	render.Status(r, resp.Status)
	render.JSON(w, r, resp)
}
