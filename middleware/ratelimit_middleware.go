package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/eldercarebackend/apperrors"
	"github.com/princinho/eldercarebackend/metrics"
	"github.com/princinho/eldercarebackend/ratelimit"
	"go.uber.org/zap"
)

// RateLimit throttles a route per client IP. Limiter failures let the
// request through.
func RateLimit(limiter ratelimit.Limiter, window time.Duration, m *metrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(c *gin.Context) {
		route := routeName(c)
		key := route + ":ip:" + c.ClientIP()

		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("route", route), zap.Error(err))
		}
		if !ok {
			if m != nil {
				m.RateLimited.WithLabelValues(route).Inc()
			}
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": apperrors.PublicMessage(apperrors.ErrRateLimited)})
			return
		}
		c.Next()
	}
}
