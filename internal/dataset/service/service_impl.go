package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/equiplytics/internal/clock"
	"github.com/smallbiznis/equiplytics/internal/config"
	"github.com/smallbiznis/equiplytics/internal/dataset/analytics"
	"github.com/smallbiznis/equiplytics/internal/dataset/csvimport"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/smallbiznis/equiplytics/internal/dataset/retention"
	"github.com/smallbiznis/equiplytics/internal/observability/logger"
	"github.com/smallbiznis/equiplytics/internal/observability/metrics"
	"github.com/smallbiznis/equiplytics/internal/observability/tracing"
	"github.com/smallbiznis/equiplytics/internal/ownerlock"
	"github.com/smallbiznis/equiplytics/internal/report"
	"github.com/smallbiznis/equiplytics/pkg/db"
	"github.com/smallbiznis/equiplytics/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxTxRetries  = 5
	reportTimeout = 2 * time.Minute
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Retention *retention.Enforcer
	Locks     *ownerlock.Manager
	Renderer  *report.Renderer
	Analytics *config.AnalyticsConfigHolder
	Config    config.Config

	Metrics  *metrics.Metrics  `optional:"true"`
	Pipeline *metrics.Pipeline `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	retention *retention.Enforcer
	locks     *ownerlock.Manager
	renderer  *report.Renderer
	analytics *config.AnalyticsConfigHolder
	maxUpload int64

	metrics  *metrics.Metrics
	pipeline *metrics.Pipeline
	tracer   trace.Tracer
	renders  singleflight.Group
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("dataset.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		retention: p.Retention,
		locks:     p.Locks,
		renderer:  p.Renderer,
		analytics: p.Analytics,
		maxUpload: p.Config.MaxUploadBytes,
		metrics:   p.Metrics,
		pipeline:  p.Pipeline,
		tracer:    otel.Tracer("equiplytics/dataset"),
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.BatchResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dataset.ingest")
	defer span.End()
	start := time.Now()

	resp, err := s.ingest(ctx, req, span)
	switch {
	case err == nil:
		s.pipeline.ObserveStage(metrics.StageIngest, metrics.OutcomeOK, time.Since(start))
	case isRejection(err):
		s.pipeline.ObserveStage(metrics.StageIngest, metrics.OutcomeRejected, time.Since(start))
		s.metrics.RecordRejected(ctx, rejectionReason(err))
	default:
		s.pipeline.ObserveStage(metrics.StageIngest, metrics.OutcomeError, time.Since(start))
		s.pipeline.IncStageError(metrics.StageIngest, err)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "ingest failed")
	}
	return resp, err
}

func (s *Service) ingest(ctx context.Context, req domain.IngestRequest, span trace.Span) (*domain.BatchResponse, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	name := strings.TrimSpace(filepath.Base(req.Filename))
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return nil, domain.ErrInvalidFileFormat
	}
	if s.maxUpload > 0 && int64(len(req.Content)) > s.maxUpload {
		return nil, domain.ErrFileTooLarge
	}

	cfg := s.analytics.Get()
	table, err := csvimport.ReadTable(bytes.NewReader(req.Content))
	if err != nil {
		return nil, err
	}
	validated, err := csvimport.NewValidator(csvimport.ColumnsFrom(cfg.Columns)).Validate(table)
	if err != nil {
		var rowErrs csvimport.RowErrors
		if errors.As(err, &rowErrs) {
			s.pipeline.AddRows(table.Len()-len(rowErrs), len(rowErrs))
		}
		return nil, err
	}

	values := csvimport.Parse(validated)
	summary := analytics.Aggregate(values)
	distribution, err := json.Marshal(summary.Distribution)
	if err != nil {
		return nil, fmt.Errorf("encode distribution: %w", err)
	}

	batch := &domain.ImportBatch{
		ID:               s.genID.Generate(),
		OwnerID:          ownerID,
		Name:             name,
		TotalRecords:     summary.TotalCount,
		AvgFlowrate:      summary.AvgFlowrate,
		AvgPressure:      summary.AvgPressure,
		AvgTemperature:   summary.AvgTemperature,
		TypeDistribution: datatypes.JSON(distribution),
	}
	records := make([]*domain.EquipmentRecord, 0, len(values))
	for _, v := range values {
		records = append(records, v.Record(s.genID.Generate(), batch.ID))
	}

	unlock, err := s.locks.Lock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// stamped under the lock so creation order matches commit order
	batch.CreatedAt = s.clock.Now().UTC()

	var evicted []snowflake.ID
	err = s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.LockOwner(ctx, tx, ownerID); err != nil {
				return err
			}
			if err := s.repo.InsertBatch(ctx, tx, batch); err != nil {
				return err
			}
			if err := s.repo.InsertRecords(ctx, tx, records); err != nil {
				return err
			}
			ids, err := s.retention.Enforce(ctx, tx, ownerID, cfg.RetentionLimit)
			if err != nil {
				return err
			}
			evicted = ids
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.pipeline.AddRows(len(records), 0)
	s.pipeline.ObserveIngestRows(len(records))
	s.pipeline.AddEvictions(len(evicted))
	s.metrics.RecordIngest(ctx, len(records))
	s.metrics.RecordEvictions(ctx, len(evicted))

	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("batch_id", batch.ID.String()),
		attribute.Int("rows", len(records)),
		attribute.Int("evicted", len(evicted)),
	)...)
	logger.WithBatch(logger.WithContext(ctx, s.log), batch.ID.String()).Info("dataset ingested",
		zap.Int("rows", len(records)),
		zap.Int("evicted", len(evicted)),
	)

	resp := toBatchResponse(batch)
	resp.Evicted = idStrings(evicted)
	return &resp, nil
}

func (s *Service) GetBatch(ctx context.Context, ownerID, batchID string) (*domain.BatchResponse, error) {
	batch, err := s.findBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, err
	}
	resp := toBatchResponse(batch)
	return &resp, nil
}

func (s *Service) GetSummary(ctx context.Context, ownerID, batchID string) (*domain.SummaryResponse, error) {
	batch, err := s.findBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, err
	}
	summary := toSummaryResponse(batch)
	return &summary, nil
}

func (s *Service) ListRecent(ctx context.Context, ownerID string) ([]domain.BatchResponse, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}

	items, err := s.repo.ListBatches(ctx, s.db, ownerID, s.analytics.Get().RetentionLimit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BatchResponse, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, toBatchResponse(item))
	}
	return out, nil
}

func (s *Service) ListRecords(ctx context.Context, req domain.ListRecordsRequest) (*domain.ListRecordsResponse, error) {
	batch, err := s.findBatch(ctx, req.OwnerID, req.BatchID)
	if err != nil {
		return nil, err
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
	}

	pageSize := pagination.ClampPageSize(req.PageSize, domain.DefaultPageSize, domain.MaxPageSize)
	items, err := s.repo.ListRecords(ctx, s.db, batch.ID, afterID, pageSize+1)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *domain.EquipmentRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: record.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := &domain.ListRecordsResponse{
		PageInfo: *pageInfo,
		Total:    batch.TotalRecords,
		Records:  make([]domain.RecordResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Records = append(resp.Records, domain.RecordResponse{
			ID:            item.ID.String(),
			EquipmentName: item.EquipmentName,
			EquipmentType: item.EquipmentType,
			Flowrate:      item.Flowrate,
			Pressure:      item.Pressure,
			Temperature:   item.Temperature,
		})
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, batchID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.ErrInvalidOwner
	}
	id, err := s.parseID(batchID)
	if err != nil {
		return err
	}

	start := time.Now()
	unlock, err := s.locks.Lock(ctx, ownerID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.LockOwner(ctx, tx, ownerID); err != nil {
				return err
			}
			n, err := s.repo.DeleteBatches(ctx, tx, ownerID, []snowflake.ID{id})
			if err != nil {
				return err
			}
			if n == 0 {
				return domain.ErrNotFound
			}
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.pipeline.IncStageError(metrics.StageDelete, err)
		}
		return err
	}

	s.pipeline.ObserveStage(metrics.StageDelete, metrics.OutcomeOK, time.Since(start))
	logger.WithBatch(logger.WithContext(ctx, s.log), id.String()).Info("dataset deleted")
	return nil
}

func (s *Service) EnforceRetention(ctx context.Context, ownerID string) ([]string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}

	start := time.Now()
	unlock, err := s.locks.Lock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	limit := s.analytics.Get().RetentionLimit
	var evicted []snowflake.ID
	err = s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.LockOwner(ctx, tx, ownerID); err != nil {
				return err
			}
			ids, err := s.retention.Enforce(ctx, tx, ownerID, limit)
			if err != nil {
				return err
			}
			evicted = ids
			return nil
		})
	})
	if err != nil {
		s.pipeline.IncStageError(metrics.StageRetention, err)
		return nil, err
	}

	s.pipeline.ObserveStage(metrics.StageRetention, metrics.OutcomeOK, time.Since(start))
	s.pipeline.AddEvictions(len(evicted))
	s.metrics.RecordEvictions(ctx, len(evicted))
	return idStrings(evicted), nil
}

func (s *Service) RenderReport(ctx context.Context, ownerID, batchID string) (*domain.ReportFile, error) {
	ctx, span := s.tracer.Start(ctx, "dataset.report")
	defer span.End()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	id, err := s.parseID(batchID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.SafeAttributes(attribute.String("batch_id", id.String()))...)

	start := time.Now()
	// the flight outlives any single caller
	flight := s.renders.DoChan(ownerID+"/"+id.String(), func() (any, error) {
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
		return s.renderReport(renderCtx, ownerID, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-flight:
	}

	v, err := res.Val, res.Err
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.pipeline.ObserveStage(metrics.StageReport, metrics.OutcomeError, time.Since(start))
			s.pipeline.IncStageError(metrics.StageReport, err)
			s.metrics.RecordReport(ctx, metrics.OutcomeError)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "report failed")
			logger.WithBatch(logger.WithContext(ctx, s.log), id.String()).Error("report generation failed", zap.Error(err))
		}
		return nil, err
	}

	s.pipeline.ObserveStage(metrics.StageReport, metrics.OutcomeOK, time.Since(start))
	s.metrics.RecordReport(ctx, metrics.OutcomeOK)

	// callers sharing a flight get their own copy of the bytes
	file := *v.(*domain.ReportFile)
	file.Content = append([]byte(nil), file.Content...)
	return &file, nil
}

func (s *Service) renderReport(ctx context.Context, ownerID string, id snowflake.ID) (*domain.ReportFile, error) {
	cfg := s.analytics.Get()

	unlock, err := s.locks.RLock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.FindBatch(ctx, s.db, ownerID, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if batch == nil {
		unlock()
		return nil, domain.ErrNotFound
	}
	records, err := s.repo.ListRecords(ctx, s.db, batch.ID, 0, cfg.MaxExcerptRows)
	unlock()
	if err != nil {
		return nil, err
	}

	dist := analytics.NewDistribution()
	if len(batch.TypeDistribution) > 0 {
		if err := json.Unmarshal(batch.TypeDistribution, dist); err != nil {
			return nil, fmt.Errorf("decode distribution: %w", err)
		}
	}

	values := make([]domain.RecordValue, 0, len(records))
	for _, r := range records {
		values = append(values, r.Value())
	}

	content, err := s.renderer.Render(ctx, report.Input{
		BatchID:   batch.ID.String(),
		Name:      batch.Name,
		OwnerID:   batch.OwnerID,
		CreatedAt: batch.CreatedAt,
		Summary: analytics.Summary{
			TotalCount:     batch.TotalRecords,
			AvgFlowrate:    batch.AvgFlowrate,
			AvgPressure:    batch.AvgPressure,
			AvgTemperature: batch.AvgTemperature,
			Distribution:   dist,
		},
		Records:        values,
		MaxExcerptRows: cfg.MaxExcerptRows,
	})
	if err != nil {
		return nil, err
	}

	return &domain.ReportFile{
		Filename:    reportFilename(batch),
		ContentType: report.ContentType,
		Content:     content,
	}, nil
}

func (s *Service) findBatch(ctx context.Context, ownerID, batchID string) (*domain.ImportBatch, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	id, err := s.parseID(batchID)
	if err != nil {
		return nil, err
	}

	batch, err := s.repo.FindBatch(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	return batch, nil
}

// withRetry reruns op while it fails with a transient database error.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !db.IsRetryableErr(err) {
			return backoff.Permanent(err)
		}
		s.log.Warn("retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxTxRetries), ctx))
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func toBatchResponse(batch *domain.ImportBatch) domain.BatchResponse {
	return domain.BatchResponse{
		ID:         batch.ID.String(),
		Name:       batch.Name,
		UploadedBy: batch.OwnerID,
		UploadedAt: batch.CreatedAt,
		Summary:    toSummaryResponse(batch),
	}
}

func toSummaryResponse(batch *domain.ImportBatch) domain.SummaryResponse {
	dist := batch.TypeDistribution
	if len(dist) == 0 {
		dist = datatypes.JSON("{}")
	}
	return domain.SummaryResponse{
		TotalCount:       batch.TotalRecords,
		AvgFlowrate:      batch.AvgFlowrate,
		AvgPressure:      batch.AvgPressure,
		AvgTemperature:   batch.AvgTemperature,
		TypeDistribution: dist,
	}
}

func reportFilename(batch *domain.ImportBatch) string {
	base := strings.TrimSuffix(batch.Name, filepath.Ext(batch.Name))
	name := slug.Make(base)
	if name == "" {
		name = "dataset"
	}
	return fmt.Sprintf("equipment_report_%s_%s.pdf", batch.ID.String(), name)
}

func idStrings(ids []snowflake.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func isRejection(err error) bool {
	var structural *csvimport.StructuralError
	var rowErrs csvimport.RowErrors
	return errors.As(err, &structural) ||
		errors.As(err, &rowErrs) ||
		errors.Is(err, domain.ErrInvalidOwner) ||
		errors.Is(err, domain.ErrInvalidFileFormat) ||
		errors.Is(err, domain.ErrFileTooLarge)
}

func rejectionReason(err error) string {
	var structural *csvimport.StructuralError
	var rowErrs csvimport.RowErrors
	switch {
	case errors.As(err, &structural):
		return "structural"
	case errors.As(err, &rowErrs):
		return "row"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrInvalidFileFormat):
		return "format"
	default:
		return "owner"
	}
}
