package models

import (
	"time"

	"github.com/google/uuid"

	"catalog-import-service/internal/importer"
)

// ImportRunStatus represents the lifecycle state of an import run.
// PREVIEW and IMPORTING are live states; COMPLETED and CANCELLED are the
// two terminal "result" states. The lifecycle is linear and
// non-revisitable: a new upload starts a fresh run.
type ImportRunStatus string

const (
	RunStatusPreview   ImportRunStatus = "PREVIEW"
	RunStatusImporting ImportRunStatus = "IMPORTING"
	RunStatusCompleted ImportRunStatus = "COMPLETED"
	RunStatusCancelled ImportRunStatus = "CANCELLED"
)

// Terminal reports whether the run has produced its final summary.
func (s ImportRunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusCancelled
}

// ImportRun is the persisted record of one import wizard run.
type ImportRun struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID     string          `json:"tenantId" gorm:"not null;index:idx_import_runs_tenant;index:idx_import_runs_tenant_status"`
	FileName     string          `json:"fileName"`
	Status       ImportRunStatus `json:"status" gorm:"not null;index:idx_import_runs_tenant_status"`
	TotalRows    int             `json:"totalRows"`
	SuccessCount int             `json:"successCount"`
	ErrorCount   int             `json:"errorCount"`
	Cancelled    bool            `json:"cancelled"`
	CreatedByID  *string         `json:"createdById,omitempty"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	Errors []ImportRunError `json:"errors,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ImportRunError is one persisted row failure: validation or remote
// rejection, never retried automatically.
type ImportRunError struct {
	ID      uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	RunID   uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Row     int       `json:"row"`
	Product string    `json:"product"`
	Message string    `json:"error" gorm:"column:error"`
}

// RowErrors converts persisted errors back to pipeline form.
func (r *ImportRun) RowErrors() []importer.RowError {
	errs := make([]importer.RowError, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, importer.RowError{Row: e.Row, Product: e.Product, Error: e.Message})
	}
	return errs
}

// ImportRunResponse is the API shape of a run.
type ImportRunResponse struct {
	Success bool       `json:"success"`
	Data    *ImportRun `json:"data,omitempty"`
}

// ImportRunListResponse is the API shape of the run history.
type ImportRunListResponse struct {
	Success bool        `json:"success"`
	Data    []ImportRun `json:"data"`
}

// ImportPreviewResponse is returned after a successful upload: the run in
// PREVIEW state plus the first page of parsed rows so the operator can
// eyeball the file before confirming.
type ImportPreviewResponse struct {
	Success bool                `json:"success"`
	Data    *ImportRun          `json:"data"`
	Preview []map[string]string `json:"preview,omitempty"`
}

// ImportProgressResponse is the live progress of an importing run.
type ImportProgressResponse struct {
	Success bool              `json:"success"`
	Data    importer.Progress `json:"data"`
}

// ImportSummaryResponse is the terminal two-number result plus the
// per-row failure breakdown.
type ImportSummaryResponse struct {
	Success bool             `json:"success"`
	Data    importer.Summary `json:"data"`
}
