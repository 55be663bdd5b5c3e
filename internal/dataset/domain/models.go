package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ImportBatch is one accepted upload. The aggregate columns are computed
// once at ingestion and never change because records are immutable.
type ImportBatch struct {
	ID               snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID          string         `gorm:"type:varchar(255);not null;index:idx_import_batches_owner_created,priority:1" json:"owner_id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	TotalRecords     int            `gorm:"not null;default:0" json:"total_records"`
	AvgFlowrate      *float64       `json:"avg_flowrate"`
	AvgPressure      *float64       `json:"avg_pressure"`
	AvgTemperature   *float64       `json:"avg_temperature"`
	TypeDistribution datatypes.JSON `gorm:"type:text;not null" json:"type_distribution"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_import_batches_owner_created,priority:2" json:"created_at"`
}

func (ImportBatch) TableName() string { return "import_batches" }

type EquipmentRecord struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	BatchID       snowflake.ID `gorm:"not null;index" json:"batch_id"`
	EquipmentName string       `gorm:"type:varchar(255);not null" json:"equipment_name"`
	EquipmentType string       `gorm:"type:varchar(100);not null" json:"equipment_type"`
	Flowrate      float64      `gorm:"not null" json:"flowrate"`
	Pressure      float64      `gorm:"not null" json:"pressure"`
	Temperature   float64      `gorm:"not null" json:"temperature"`
}

func (EquipmentRecord) TableName() string { return "equipment_records" }

// RecordValue is a typed row produced by the CSV parser, before it is
// assigned an id and a batch.
type RecordValue struct {
	Name        string
	Category    string
	Flowrate    float64
	Pressure    float64
	Temperature float64
}

func (v RecordValue) Record(id, batchID snowflake.ID) *EquipmentRecord {
	return &EquipmentRecord{
		ID:            id,
		BatchID:       batchID,
		EquipmentName: v.Name,
		EquipmentType: v.Category,
		Flowrate:      v.Flowrate,
		Pressure:      v.Pressure,
		Temperature:   v.Temperature,
	}
}

func (r EquipmentRecord) Value() RecordValue {
	return RecordValue{
		Name:        r.EquipmentName,
		Category:    r.EquipmentType,
		Flowrate:    r.Flowrate,
		Pressure:    r.Pressure,
		Temperature: r.Temperature,
	}
}
