package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidLimit = errors.New("invalid_retention_limit")

// Enforcer keeps at most limit batches per owner.
type Enforcer struct {
	repo domain.Repository
	log  *zap.Logger
}

func New(repo domain.Repository, log *zap.Logger) *Enforcer {
	return &Enforcer{repo: repo, log: log.Named("dataset.retention")}
}

// Enforce evicts every batch of ownerID beyond the limit most recent ones
// (created_at desc, then id desc) and returns the evicted ids. tx must be the
// transaction that holds the owner lock; running it twice is a no-op.
func (e *Enforcer) Enforce(ctx context.Context, tx *gorm.DB, ownerID string, limit int) ([]snowflake.ID, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	ids, err := e.repo.ListBatchIDs(ctx, tx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	if len(ids) <= limit {
		return nil, nil
	}

	evicted := append([]snowflake.ID(nil), ids[limit:]...)
	if _, err := e.repo.DeleteBatches(ctx, tx, ownerID, evicted); err != nil {
		return nil, fmt.Errorf("delete batches: %w", err)
	}

	e.log.Info("evicted batches",
		zap.String("owner_id", ownerID),
		zap.Int("limit", limit),
		zap.Int("evicted", len(evicted)),
	)
	return evicted, nil
}
