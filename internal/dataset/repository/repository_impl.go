package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/smallbiznis/equiplytics/pkg/db"
	"gorm.io/gorm"
)

const recordInsertBatchSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, conn *gorm.DB, batch *domain.ImportBatch) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO import_batches (id, owner_id, name, total_records, avg_flowrate, avg_pressure, avg_temperature, type_distribution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.OwnerID,
		batch.Name,
		batch.TotalRecords,
		batch.AvgFlowrate,
		batch.AvgPressure,
		batch.AvgTemperature,
		batch.TypeDistribution,
		batch.CreatedAt,
	).Error
}

func (r *repo) InsertRecords(ctx context.Context, conn *gorm.DB, records []*domain.EquipmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return conn.WithContext(ctx).CreateInBatches(records, recordInsertBatchSize).Error
}

func (r *repo) FindBatch(ctx context.Context, conn *gorm.DB, ownerID string, id snowflake.ID) (*domain.ImportBatch, error) {
	var batch domain.ImportBatch
	err := conn.WithContext(ctx).Raw(
		`SELECT id, owner_id, name, total_records, avg_flowrate, avg_pressure, avg_temperature, type_distribution, created_at
		 FROM import_batches WHERE owner_id = ? AND id = ?`,
		ownerID,
		id,
	).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *repo) ListBatches(ctx context.Context, conn *gorm.DB, ownerID string, limit int) ([]*domain.ImportBatch, error) {
	var batches []*domain.ImportBatch
	stmt := conn.WithContext(ctx).
		Model(&domain.ImportBatch{}).
		Where("owner_id = ?", ownerID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) ListBatchIDs(ctx context.Context, conn *gorm.DB, ownerID string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT id FROM import_batches WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListRecords(ctx context.Context, conn *gorm.DB, batchID, afterID snowflake.ID, limit int) ([]*domain.EquipmentRecord, error) {
	var records []*domain.EquipmentRecord
	stmt := conn.WithContext(ctx).
		Model(&domain.EquipmentRecord{}).
		Where("batch_id = ?", batchID)
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) CountRecords(ctx context.Context, conn *gorm.DB, batchID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).
		Model(&domain.EquipmentRecord{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	return count, err
}

func (r *repo) DeleteBatches(ctx context.Context, conn *gorm.DB, ownerID string, ids []snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	// records first; batches are only removed for the matching owner
	err := conn.WithContext(ctx).Exec(
		`DELETE FROM equipment_records
		 WHERE batch_id IN (SELECT id FROM import_batches WHERE owner_id = ? AND id IN ?)`,
		ownerID,
		ids,
	).Error
	if err != nil {
		return 0, err
	}

	res := conn.WithContext(ctx).Exec(
		`DELETE FROM import_batches WHERE owner_id = ? AND id IN ?`,
		ownerID,
		ids,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) LockOwner(ctx context.Context, conn *gorm.DB, ownerID string) error {
	if !db.IsPostgres(conn) {
		return nil
	}
	return conn.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, ownerID).Error
}
