package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/equiplytics/internal/config"
)

const keyUploadOwner = "equiplytics:upload:owner:%s"

// UploadLimiter caps how often one owner may upload datasets.
type UploadLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewUploadLimiter returns nil when limiting is disabled or no redis client
// is configured.
func NewUploadLimiter(cfg config.Config, client *redis.Client) *UploadLimiter {
	if client == nil || cfg.UploadRatePerMinute <= 0 {
		return nil
	}
	burst := cfg.UploadRateBurst
	if burst <= 0 {
		burst = 1
	}
	return newUploadLimiter(client, cfg.UploadRatePerMinute/60, burst)
}

func newUploadLimiter(client redis.Scripter, rate float64, burst int) *UploadLimiter {
	return &UploadLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *UploadLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UploadLimiter) Allow(ctx context.Context, ownerID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUploadOwner, strings.TrimSpace(ownerID)), l.rate, l.burst)
}
