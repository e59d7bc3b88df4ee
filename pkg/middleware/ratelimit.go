package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tickerstream.com/pkg/common"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/metrics"
	"tickerstream.com/pkg/ratelimit"
)

// RateLimit 按 ip+路由限流
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			metrics.RateLimitBlockTotal.WithLabelValues(route).Inc()
			// 可控拒绝，不打堆栈
			logger.Warn(c, "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			common.Fail(c, http.StatusTooManyRequests, common.CodeRateLimited, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
