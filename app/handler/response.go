package handler

import (
	"errors"
	"net/http"

	"wanx-studio/app/utils/dashscope"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一的API响应格式
type ApiResponse struct {
	Code    int    `json:"code"`    // 状态码，0表示成功
	Message string `json:"message"` // 响应消息
	Data    any    `json:"data"`    // 响应数据
}

// 业务错误码
const (
	CodeSuccess       = 0
	CodeBadRequest    = 400
	CodeNotFound      = 404
	CodeInternalError = 500
	CodeProviderError = 502
)

// success 返回成功响应
func success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// fail 返回错误响应
func fail(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// providerError 将 DashScope 调用错误映射为响应
func providerError(c *gin.Context, prefix string, err error) {
	var apiErr *dashscope.APIError
	switch {
	case errors.Is(err, dashscope.ErrMissingAPIKey):
		fail(c, http.StatusInternalServerError, CodeInternalError, "错误: "+err.Error())
	case errors.As(err, &apiErr):
		fail(c, http.StatusBadGateway, CodeProviderError, prefix+": "+apiErr.Error())
	default:
		fail(c, http.StatusInternalServerError, CodeInternalError, "服务器内部错误: "+err.Error())
	}
}
