package middleware

import (
	"math"
	"strconv"
	"time"

	"followpro/api/internal/ratelimit"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit counts every request against l per client IP and answers 429
// once the window budget is spent. A failing counter store lets requests
// through.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	rule := l.Rule()

	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			zap.L().Error("Rate limiter unavailable",
				zap.Error(err),
				zap.String("rule", rule.Name),
				zap.String("requestID", c.GetString("requestID")))

			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(rule.Max, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

		if !res.Allowed {
			retry := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(retry, 1)))

			response.Error(c, &service.AuthError{Kind: service.KindRateLimited, Message: rule.Message})
			return
		}

		c.Next()
	}
}
