//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/smallbiznis/equiplytics/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("equiplytics_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(conn))
	return conn
}

func TestPostgresRetentionUnderAdvisoryLock(t *testing.T) {
	conn := setupPostgres(t)
	repo := Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	const writers = 8
	const limit = 3

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				ctx := context.Background()
				if err := repo.LockOwner(ctx, tx, "alice"); err != nil {
					return err
				}
				b := &domain.ImportBatch{
					ID:               node.Generate(),
					OwnerID:          "alice",
					Name:             "concurrent.csv",
					TypeDistribution: datatypes.JSON(`{}`),
					CreatedAt:        base.Add(time.Duration(i) * time.Second),
				}
				if err := repo.InsertBatch(ctx, tx, b); err != nil {
					return err
				}
				ids, err := repo.ListBatchIDs(ctx, tx, "alice")
				if err != nil {
					return err
				}
				if len(ids) > limit {
					_, err = repo.DeleteBatches(ctx, tx, "alice", ids[limit:])
				}
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ids, err := repo.ListBatchIDs(context.Background(), conn, "alice")
	require.NoError(t, err)
	assert.Len(t, ids, limit)
}

func TestPostgresCascadeConstraint(t *testing.T) {
	conn := setupPostgres(t)
	repo := Provide()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	ctx := context.Background()

	one := 1.0
	b := &domain.ImportBatch{
		ID:               node.Generate(),
		OwnerID:          "alice",
		Name:             "cascade.csv",
		TotalRecords:     1,
		AvgFlowrate:      &one,
		AvgPressure:      &one,
		AvgTemperature:   &one,
		TypeDistribution: datatypes.JSON(`{"Pump":1}`),
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, repo.InsertBatch(ctx, conn, b))
	require.NoError(t, repo.InsertRecords(ctx, conn, []*domain.EquipmentRecord{
		domain.RecordValue{Name: "P", Category: "Pump", Flowrate: 1, Pressure: 1, Temperature: 1}.Record(node.Generate(), b.ID),
	}))

	require.NoError(t, conn.Exec(`DELETE FROM import_batches WHERE id = ?`, b.ID).Error)

	count, err := repo.CountRecords(ctx, conn, b.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgresDistributionKeepsKeyOrder(t *testing.T) {
	conn := setupPostgres(t)
	repo := Provide()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	ctx := context.Background()

	one := 1.0
	b := &domain.ImportBatch{
		ID:               node.Generate(),
		OwnerID:          "alice",
		Name:             "order.csv",
		TotalRecords:     3,
		AvgFlowrate:      &one,
		AvgPressure:      &one,
		AvgTemperature:   &one,
		TypeDistribution: datatypes.JSON(`{"Valve":1,"Pump":2}`),
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, repo.InsertBatch(ctx, conn, b))

	got, err := repo.FindBatch(ctx, conn, "alice", b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"Valve":1,"Pump":2}`, string(got.TypeDistribution))
}
