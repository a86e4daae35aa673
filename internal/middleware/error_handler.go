package middleware

import (
	"github.com/gin-gonic/gin"
	"realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// ErrorHandler отвечает на последнюю ошибку из c.Errors. Текст внутренних
// ошибок клиенту не отдается.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		code := errors.Code(err.Err)

		message := err.Error()
		if code == errors.CodeInternal {
			log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err.Err)
			message = "internal error"
		}

		c.JSON(statusCode, gin.H{
			"error": message,
			"code":  code,
		})
	}
}
