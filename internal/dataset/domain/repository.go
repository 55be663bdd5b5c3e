package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *ImportBatch) error
	InsertRecords(ctx context.Context, db *gorm.DB, records []*EquipmentRecord) error
	FindBatch(ctx context.Context, db *gorm.DB, ownerID string, id snowflake.ID) (*ImportBatch, error)
	// ListBatches returns the owner's batches newest first (created_at, then id).
	// A limit below 1 returns all of them.
	ListBatches(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]*ImportBatch, error)
	ListBatchIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]snowflake.ID, error)
	// ListRecords pages through a batch's records in insertion order.
	ListRecords(ctx context.Context, db *gorm.DB, batchID snowflake.ID, afterID snowflake.ID, limit int) ([]*EquipmentRecord, error)
	CountRecords(ctx context.Context, db *gorm.DB, batchID snowflake.ID) (int64, error)
	// DeleteBatches removes the records of the given batches, then the batches.
	DeleteBatches(ctx context.Context, db *gorm.DB, ownerID string, ids []snowflake.ID) (int64, error)
	// LockOwner serialises writers of one owner for the rest of the transaction.
	LockOwner(ctx context.Context, db *gorm.DB, ownerID string) error
}
