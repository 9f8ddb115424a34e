package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates supported asynchronous report categories.
type ReportType string

const (
	ReportTypeCourseProgress ReportType = "course_progress"
	ReportTypeMastery        ReportType = "mastery"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJobParams carries the report parameters as a JSONB column.
type ReportJobParams struct {
	CourseID string       `json:"course_id"`
	Format   ReportFormat `json:"format"`
}

// Value implements driver.Valuer for JSONB storage.
func (p ReportJobParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (p *ReportJobParams) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = ReportJobParams{}
		return nil
	default:
		return fmt.Errorf("unsupported report params type %T", src)
	}
}

// ReportJob persisted background job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	ResultPath   *string         `db:"result_path" json:"-"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
