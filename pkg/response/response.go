package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TraceIDKey 请求追踪 ID 在 gin.Context 中的键，由 TraceMiddleware 写入
const TraceIDKey = "traceID"

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`              // 业务码
	Message string      `json:"message"`           // 提示信息
	Data    interface{} `json:"data"`              // 数据
	TraceID string      `json:"traceId,omitempty"` // 排查问题时回传给调用方
}

func write(c *gin.Context, httpCode, code int, msg string, data interface{}) {
	c.JSON(httpCode, Response{
		Code:    code,
		Message: msg,
		Data:    data,
		TraceID: c.GetString(TraceIDKey),
	})
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, CodeSuccess, "success", data)
}

// Error 错误响应，HTTP 状态码与业务码同时表达失败
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	write(c, httpCode, errCode, msg, nil)
}

// Fail 业务失败响应 (HTTP 200, 业务码非 0)
func Fail(c *gin.Context, errCode int, msg string) {
	write(c, http.StatusOK, errCode, msg, nil)
}
