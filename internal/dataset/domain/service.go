package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/equiplytics/pkg/db/pagination"
	"gorm.io/datatypes"
)

type IngestRequest struct {
	OwnerID  string
	Filename string
	Content  []byte
}

type SummaryResponse struct {
	TotalCount       int            `json:"total_count"`
	AvgFlowrate      *float64       `json:"avg_flowrate"`
	AvgPressure      *float64       `json:"avg_pressure"`
	AvgTemperature   *float64       `json:"avg_temperature"`
	TypeDistribution datatypes.JSON `json:"type_distribution"`
}

type BatchResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	UploadedBy string          `json:"uploaded_by"`
	UploadedAt time.Time       `json:"uploaded_at"`
	Summary    SummaryResponse `json:"summary"`
	// Evicted lists batches removed by retention as part of this ingestion.
	Evicted []string `json:"evicted,omitempty"`
}

type ListRecordsRequest struct {
	OwnerID   string
	BatchID   string
	PageToken string
	PageSize  int
}

type RecordResponse struct {
	ID            string  `json:"id"`
	EquipmentName string  `json:"equipment_name"`
	EquipmentType string  `json:"equipment_type"`
	Flowrate      float64 `json:"flowrate"`
	Pressure      float64 `json:"pressure"`
	Temperature   float64 `json:"temperature"`
}

type ListRecordsResponse struct {
	pagination.PageInfo
	Total   int              `json:"total"`
	Records []RecordResponse `json:"records"`
}

type ReportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*BatchResponse, error)
	GetBatch(ctx context.Context, ownerID, batchID string) (*BatchResponse, error)
	GetSummary(ctx context.Context, ownerID, batchID string) (*SummaryResponse, error)
	ListRecent(ctx context.Context, ownerID string) ([]BatchResponse, error)
	ListRecords(ctx context.Context, req ListRecordsRequest) (*ListRecordsResponse, error)
	Delete(ctx context.Context, ownerID, batchID string) error
	EnforceRetention(ctx context.Context, ownerID string) ([]string, error)
	RenderReport(ctx context.Context, ownerID, batchID string) (*ReportFile, error)
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

var (
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidFileFormat = errors.New("invalid_file_format")
	ErrFileTooLarge      = errors.New("file_too_large")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrNotFound          = errors.New("not_found")
)
