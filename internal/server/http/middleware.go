package http

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// requestLogger logs one line per request, at Warn for 4xx and Error for 5xx.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "http request", args...)
		case status >= 400:
			logger.Warn(ctx, "http request", args...)
		default:
			logger.Info(ctx, "http request", args...)
		}
	}
}

// authRequired resolves the bearer token to a principal email.
func authRequired(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			fail(c, common.ErrUnauthorized)
			return
		}

		email, err := auth.GetEmailFromToken(strings.TrimPrefix(header, common.BearerPrefix), secretKey)
		if err != nil {
			fail(c, err)
			return
		}

		c.Set(principalKey, email)
		c.Next()
	}
}

func principal(c *gin.Context) string {
	return c.GetString(principalKey)
}
