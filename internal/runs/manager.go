package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/models"
)

// ErrRunImporting is returned when a teardown is attempted on a run that
// is still importing and force was not requested.
var ErrRunImporting = errors.New("run is importing")

// ErrRunNotActive is returned when a run's parsed rows are no longer held
// in memory (service restarted since upload, or the run already finished).
var ErrRunNotActive = errors.New("run is not active")

// Store persists runs and mirrors live progress.
type Store interface {
	CreateRun(run *models.ImportRun) error
	GetRun(tenantID string, id uuid.UUID) (*models.ImportRun, error)
	ListRuns(tenantID string, limit int) ([]models.ImportRun, error)
	MarkImporting(tenantID string, id uuid.UUID) error
	SaveSummary(tenantID string, id uuid.UUID, summary importer.Summary) error
	DeleteRun(tenantID string, id uuid.UUID) error
	SetProgress(ctx context.Context, tenantID string, id uuid.UUID, p importer.Progress)
	GetProgress(ctx context.Context, tenantID string, id uuid.UUID) (importer.Progress, bool)
}

// CategoriesLister fetches the read-only category lookup list.
type CategoriesLister interface {
	ListCategories(tenantID string) ([]importer.CategoryRef, error)
}

// BrandsLister fetches the read-only brand lookup list.
type BrandsLister interface {
	ListBrands(tenantID string) ([]importer.BrandRef, error)
}

// ProductCreator issues the remote create call for one mapped product.
type ProductCreator interface {
	CreateProduct(ctx context.Context, tenantID, userID string, product *importer.MappedProduct, bulkMode bool) (*clients.Product, error)
}

// Notifier signals downstream consumers that catalog data changed.
type Notifier interface {
	PublishImportCompleted(ctx context.Context, run *models.ImportRun, summary importer.Summary)
}

// activeRun holds the in-memory state of a run between upload and the
// terminal summary: the parsed rows, the pre-fetched lookups, and the
// cancellation handle once importing starts.
type activeRun struct {
	tenantID string
	userID   string
	rows     []importer.RawRow
	lookups  importer.Lookups

	mu       sync.Mutex
	status   models.ImportRunStatus
	cancel   context.CancelFunc
	progress importer.Progress
}

// Manager owns the upload → preview → importing → result lifecycle of
// import runs. Transitions are linear and non-revisitable; a new upload
// always starts a fresh run.
type Manager struct {
	store      Store
	categories CategoriesLister
	brands     BrandsLister
	products   ProductCreator
	notifier   Notifier
	logger     *logrus.Entry

	mu     sync.RWMutex
	active map[uuid.UUID]*activeRun
}

func NewManager(store Store, categories CategoriesLister, brands BrandsLister, products ProductCreator, notifier Notifier, logger *logrus.Logger) *Manager {
	return &Manager{
		store:      store,
		categories: categories,
		brands:     brands,
		products:   products,
		notifier:   notifier,
		logger:     logger.WithField("component", "import-runs"),
		active:     make(map[uuid.UUID]*activeRun),
	}
}

// Upload registers a new run in PREVIEW state from already-parsed rows.
// The lookup tables are fetched here, once, before any row is processed;
// a lookup failure aborts the wizard with no run created.
func (m *Manager) Upload(tenantID, userID, fileName string, rows []importer.RawRow) (*models.ImportRun, error) {
	categories, err := m.categories.ListCategories(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	brands, err := m.brands.ListBrands(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load brands: %w", err)
	}

	run := &models.ImportRun{
		ID:        uuid.New(),
		TenantID:  tenantID,
		FileName:  fileName,
		Status:    models.RunStatusPreview,
		TotalRows: len(rows),
	}
	if userID != "" {
		run.CreatedByID = &userID
	}
	if err := m.store.CreateRun(run); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active[run.ID] = &activeRun{
		tenantID: tenantID,
		userID:   userID,
		rows:     rows,
		lookups:  importer.Lookups{Categories: categories, Brands: brands},
		status:   models.RunStatusPreview,
	}
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"runId":    run.ID,
		"tenantId": tenantID,
		"rows":     len(rows),
	}).Info("Import run created")

	return run, nil
}

// Start confirms the preview and begins the pipeline asynchronously.
func (m *Manager) Start(tenantID string, id uuid.UUID) error {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()
	if !ok || run.tenantID != tenantID {
		return ErrRunNotActive
	}

	if err := m.store.MarkImporting(tenantID, id); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	run.mu.Lock()
	run.status = models.RunStatusImporting
	run.cancel = cancel
	run.progress = importer.Progress{
		Current: 0,
		Total:   len(run.rows),
		Message: fmt.Sprintf("processed 0 of %d", len(run.rows)),
	}
	run.mu.Unlock()

	go m.runPipeline(ctx, id, run)
	return nil
}

// runPipeline drives the dispatcher to completion and records the result.
func (m *Manager) runPipeline(ctx context.Context, id uuid.UUID, run *activeRun) {
	log := m.logger.WithFields(logrus.Fields{"runId": id, "tenantId": run.tenantID})

	creator := &clientCreator{
		products: m.products,
		tenantID: run.tenantID,
		userID:   run.userID,
	}

	dispatcher := importer.NewDispatcher(creator, func(p importer.Progress) {
		run.mu.Lock()
		run.progress = p
		run.mu.Unlock()
		m.store.SetProgress(context.Background(), run.tenantID, id, p)
	})

	summary := dispatcher.Run(ctx, run.rows, run.lookups)

	if err := m.store.SaveSummary(run.tenantID, id, summary); err != nil {
		// The run may have been force-deleted mid-flight; the summary is
		// then intentionally discarded.
		log.WithError(err).Warn("Failed to persist import summary")
	}

	run.mu.Lock()
	if summary.Cancelled {
		run.status = models.RunStatusCancelled
	} else {
		run.status = models.RunStatusCompleted
	}
	run.mu.Unlock()

	// One downstream notification per run regardless of how many rows
	// succeeded: N creations collapse into a single refresh signal.
	if summary.SuccessCount > 0 && m.notifier != nil {
		record := &models.ImportRun{
			ID:           id,
			TenantID:     run.tenantID,
			Status:       models.RunStatusCompleted,
			TotalRows:    len(run.rows),
			SuccessCount: summary.SuccessCount,
			ErrorCount:   len(summary.Errors),
			Cancelled:    summary.Cancelled,
		}
		if summary.Cancelled {
			record.Status = models.RunStatusCancelled
		}
		m.notifier.PublishImportCompleted(context.Background(), record, summary)
	}

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	log.WithFields(logrus.Fields{
		"succeeded": summary.SuccessCount,
		"failed":    len(summary.Errors),
		"cancelled": summary.Cancelled,
	}).Info("Import run finished")
}

// Cancel requests cooperative cancellation of an importing run. The
// current batch settles; no further batches are dispatched.
func (m *Manager) Cancel(tenantID string, id uuid.UUID) error {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()
	if !ok || run.tenantID != tenantID {
		return ErrRunNotActive
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.status != models.RunStatusImporting || run.cancel == nil {
		return ErrRunNotActive
	}
	run.cancel()
	return nil
}

// Progress reports the latest batch-boundary progress. Active runs answer
// from memory; finished or remote-replica runs fall back to the Redis
// mirror and finally to the persisted record.
func (m *Manager) Progress(ctx context.Context, tenantID string, id uuid.UUID) (importer.Progress, error) {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()
	if ok && run.tenantID == tenantID {
		run.mu.Lock()
		p := run.progress
		status := run.status
		run.mu.Unlock()
		if status != models.RunStatusPreview {
			return p, nil
		}
		return importer.Progress{Total: len(run.rows), Message: "awaiting confirmation"}, nil
	}

	if p, ok := m.store.GetProgress(ctx, tenantID, id); ok {
		return p, nil
	}

	record, err := m.store.GetRun(tenantID, id)
	if err != nil {
		return importer.Progress{}, err
	}
	current := record.SuccessCount + record.ErrorCount
	return importer.Progress{
		Current: current,
		Total:   record.TotalRows,
		Message: fmt.Sprintf("processed %d of %d", current, record.TotalRows),
	}, nil
}

// Get returns the persisted run, including its error breakdown once the
// run is terminal.
func (m *Manager) Get(tenantID string, id uuid.UUID) (*models.ImportRun, error) {
	return m.store.GetRun(tenantID, id)
}

// List returns the tenant's run history.
func (m *Manager) List(tenantID string, limit int) ([]models.ImportRun, error) {
	return m.store.ListRuns(tenantID, limit)
}

// PreviewRows returns the first n parsed rows of an active run.
func (m *Manager) PreviewRows(tenantID string, id uuid.UUID, n int) ([]map[string]string, error) {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()
	if !ok || run.tenantID != tenantID {
		return nil, ErrRunNotActive
	}

	if n > len(run.rows) {
		n = len(run.rows)
	}
	preview := make([]map[string]string, 0, n)
	for _, row := range run.rows[:n] {
		preview = append(preview, row.Cells)
	}
	return preview, nil
}

// Delete tears a run down. An importing run is refused unless force is
// set, in which case it is cancelled first; its in-flight rows settle but
// the summary is discarded with the record.
func (m *Manager) Delete(tenantID string, id uuid.UUID, force bool) error {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()

	if ok && run.tenantID == tenantID {
		run.mu.Lock()
		importing := run.status == models.RunStatusImporting
		cancel := run.cancel
		run.mu.Unlock()

		if importing {
			if !force {
				return ErrRunImporting
			}
			if cancel != nil {
				cancel()
			}
		}

		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
	}

	return m.store.DeleteRun(tenantID, id)
}

// clientCreator adapts the products client to the dispatcher's Creator,
// pinning the tenant scope and the bulk-mode flag for the whole run.
type clientCreator struct {
	products ProductCreator
	tenantID string
	userID   string
}

func (c *clientCreator) Create(ctx context.Context, product *importer.MappedProduct) error {
	_, err := c.products.CreateProduct(ctx, c.tenantID, c.userID, product, true)
	return err
}
