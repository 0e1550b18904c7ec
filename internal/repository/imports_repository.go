package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/models"
)

// ProgressTTL bounds how long a run's live progress stays readable after
// the last batch settled.
const ProgressTTL = time.Hour

// rowErrorOrder sorts persisted row errors by source row. The column must
// stay quoted: ROW is a reserved word in PostgreSQL.
const rowErrorOrder = `"row" ASC`

type ImportsRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewImportsRepository(db *gorm.DB, redis *redis.Client) *ImportsRepository {
	return &ImportsRepository{
		db:    db,
		redis: redis,
	}
}

// CreateRun persists a freshly uploaded run in PREVIEW state.
func (r *ImportsRepository) CreateRun(run *models.ImportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	return r.db.Create(run).Error
}

// GetRun loads a run with its row errors, tenant-scoped.
func (r *ImportsRepository) GetRun(tenantID string, id uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.
		Preload("Errors", func(db *gorm.DB) *gorm.DB {
			return db.Order(rowErrorOrder)
		}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the tenant's run history, newest first.
func (r *ImportsRepository) ListRuns(tenantID string, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.ImportRun
	err := r.db.
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// MarkImporting transitions a PREVIEW run to IMPORTING. It refuses the
// transition from any other state so a run cannot be started twice.
func (r *ImportsRepository) MarkImporting(tenantID string, id uuid.UUID) error {
	now := time.Now()
	result := r.db.Model(&models.ImportRun{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, models.RunStatusPreview).
		Updates(map[string]interface{}{
			"status":     models.RunStatusImporting,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %s is not in preview state", id)
	}
	return nil
}

// SaveSummary records the terminal summary and per-row errors in one
// transaction and clears the live progress mirror.
func (r *ImportsRepository) SaveSummary(tenantID string, id uuid.UUID, summary importer.Summary) error {
	status := models.RunStatusCompleted
	if summary.Cancelled {
		status = models.RunStatusCancelled
	}
	now := time.Now()

	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ImportRun{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			Updates(map[string]interface{}{
				"status":        status,
				"success_count": summary.SuccessCount,
				"error_count":   len(summary.Errors),
				"cancelled":     summary.Cancelled,
				"completed_at":  now,
				"updated_at":    now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if len(summary.Errors) == 0 {
			return nil
		}
		rowErrors := make([]models.ImportRunError, 0, len(summary.Errors))
		for _, e := range summary.Errors {
			rowErrors = append(rowErrors, models.ImportRunError{
				RunID:   id,
				Row:     e.Row,
				Product: e.Product,
				Message: e.Error,
			})
		}
		return tx.Create(&rowErrors).Error
	})
	if err != nil {
		return err
	}

	r.clearProgress(context.Background(), tenantID, id)
	return nil
}

// DeleteRun removes a run and its errors, tenant-scoped.
func (r *ImportsRepository) DeleteRun(tenantID string, id uuid.UUID) error {
	result := r.db.
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.ImportRun{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.clearProgress(context.Background(), tenantID, id)
	return nil
}

// SetProgress mirrors the latest batch-boundary progress into Redis so
// polling survives across replicas. Keys are tenant-scoped like every
// other run read. Best effort: a Redis outage degrades progress
// reporting, never the import itself.
func (r *ImportsRepository) SetProgress(ctx context.Context, tenantID string, id uuid.UUID, p importer.Progress) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = r.redis.Set(ctx, progressKey(tenantID, id), data, ProgressTTL).Err()
}

// GetProgress reads the mirrored progress. The second return is false
// when no progress has been recorded (or Redis is unavailable).
func (r *ImportsRepository) GetProgress(ctx context.Context, tenantID string, id uuid.UUID) (importer.Progress, bool) {
	var p importer.Progress
	if r.redis == nil {
		return p, false
	}
	data, err := r.redis.Get(ctx, progressKey(tenantID, id)).Bytes()
	if err != nil {
		return p, false
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false
	}
	return p, true
}

func (r *ImportsRepository) clearProgress(ctx context.Context, tenantID string, id uuid.UUID) {
	if r.redis == nil {
		return
	}
	_ = r.redis.Del(ctx, progressKey(tenantID, id)).Err()
}

func progressKey(tenantID string, id uuid.UUID) string {
	return fmt.Sprintf("catalog:imports:progress:%s:%s", tenantID, id.String())
}
