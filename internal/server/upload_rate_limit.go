package server

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/equiplytics/internal/observability/logger"
	"github.com/smallbiznis/equiplytics/internal/ratelimit"
	"go.uber.org/zap"
)

type uploadLimiter interface {
	Allow(ctx context.Context, ownerID string) (*ratelimit.Result, error)
}

func (s *Server) UploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.uploadLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.uploadLimiter.Allow(ctx, ownerID(c))
		if err != nil {
			// uploads stay available when redis is unreachable
			logger.FromContext(ctx).Warn("upload rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("upload rate limit exceeded", zap.Int("limit", res.Limit))
			s.obsMetrics.RecordRejected(ctx, "rate_limited")
			c.Header("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(res.RetryAfter.Seconds())))))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
