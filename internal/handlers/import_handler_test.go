package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/runs"
)

type memoryStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.ImportRun
}

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[uuid.UUID]*models.ImportRun)}
}

func (s *memoryStore) CreateRun(run *models.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memoryStore) GetRun(tenantID string, id uuid.UUID) (*models.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *memoryStore) ListRuns(tenantID string, limit int) ([]models.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ImportRun, 0)
	for _, run := range s.runs {
		if run.TenantID == tenantID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (s *memoryStore) MarkImporting(tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return gorm.ErrRecordNotFound
	}
	run.Status = models.RunStatusImporting
	return nil
}

func (s *memoryStore) SaveSummary(tenantID string, id uuid.UUID, summary importer.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	run.SuccessCount = summary.SuccessCount
	run.ErrorCount = len(summary.Errors)
	run.Status = models.RunStatusCompleted
	if summary.Cancelled {
		run.Status = models.RunStatusCancelled
	}
	return nil
}

func (s *memoryStore) DeleteRun(tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return gorm.ErrRecordNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *memoryStore) SetProgress(ctx context.Context, tenantID string, id uuid.UUID, p importer.Progress) {
}

func (s *memoryStore) GetProgress(ctx context.Context, tenantID string, id uuid.UUID) (importer.Progress, bool) {
	return importer.Progress{}, false
}

type stubLookups struct{}

func (stubLookups) ListCategories(tenantID string) ([]importer.CategoryRef, error) {
	return []importer.CategoryRef{{ID: "cat-1", Name: "Electronics"}}, nil
}

func (stubLookups) ListBrands(tenantID string) ([]importer.BrandRef, error) {
	return []importer.BrandRef{{ID: "brand-1", Name: "Acme", Code: "ACM"}}, nil
}

type stubProducts struct{}

func (stubProducts) CreateProduct(ctx context.Context, tenantID, userID string, product *importer.MappedProduct, bulkMode bool) (*clients.Product, error) {
	return &clients.Product{ID: uuid.NewString(), Name: product.Name}, nil
}

func testRouter(store *memoryStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(discard{})

	manager := runs.NewManager(store, stubLookups{}, stubLookups{}, stubProducts{}, nil, logger)
	handler := NewImportHandler(manager, 50)

	router := gin.New()
	api := router.Group("/api/v1", middleware.TenantMiddleware())
	imports := api.Group("/imports")
	{
		imports.GET("", handler.ListImports)
		imports.GET("/template", handler.GetImportTemplate)
		imports.GET("/:id", handler.GetImport)
		imports.GET("/:id/progress", handler.GetImportProgress)
		imports.GET("/:id/summary", handler.GetImportSummary)
		imports.POST("", handler.UploadImport)
		imports.POST("/:id/start", handler.StartImport)
		imports.POST("/:id/cancel", handler.CancelImport)
		imports.DELETE("/:id", handler.DeleteImport)
	}
	return router
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func multipartFile(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to build multipart body: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write file part: %v", err)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartFile(t, "file", filename, content)
	req := httptest.NewRequest("POST", "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func TestUploadImportCSV(t *testing.T) {
	store := newMemoryStore()
	router := testRouter(store)

	w := doUpload(t, router, "products.csv",
		"name,price,category\nWidget,10,Electronics\nGadget,20,Unknown\n")

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool                `json:"success"`
		Data    models.ImportRun    `json:"data"`
		Preview []map[string]string `json:"preview"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Data.Status != models.RunStatusPreview {
		t.Errorf("expected PREVIEW status, got %s", resp.Data.Status)
	}
	if resp.Data.TotalRows != 2 {
		t.Errorf("expected 2 total rows, got %d", resp.Data.TotalRows)
	}
	if len(resp.Preview) != 2 || resp.Preview[0]["name"] != "Widget" {
		t.Errorf("unexpected preview %+v", resp.Preview)
	}
	if _, err := store.GetRun("tenant-1", resp.Data.ID); err != nil {
		t.Errorf("run was not persisted: %v", err)
	}
}

func TestUploadImportRejectsUnknownExtension(t *testing.T) {
	router := testRouter(newMemoryStore())

	w := doUpload(t, router, "products.pdf", "not a spreadsheet")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_FORMAT" {
		t.Errorf("expected INVALID_FORMAT, got %s", code)
	}
}

func TestUploadImportHeaderOnlyFile(t *testing.T) {
	router := testRouter(newMemoryStore())

	w := doUpload(t, router, "products.csv", "name,price\n")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "EMPTY_FILE" {
		t.Errorf("expected EMPTY_FILE, got %s", code)
	}
}

func TestUploadImportMissingFile(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("POST", "/api/v1/imports", bytes.NewBufferString(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "FILE_REQUIRED" {
		t.Errorf("expected FILE_REQUIRED, got %s", code)
	}
}

func TestRequestsWithoutTenantAreRejected(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("GET", "/api/v1/imports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestStartImportUnknownRun(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/imports/%s/start", uuid.New()), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "RUN_NOT_ACTIVE" {
		t.Errorf("expected RUN_NOT_ACTIVE, got %s", code)
	}
}

func TestGetImportInvalidID(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("GET", "/api/v1/imports/not-a-uuid", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_RUN_ID" {
		t.Errorf("expected INVALID_RUN_ID, got %s", code)
	}
}

func TestGetImportNotFound(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/imports/%s", uuid.New()), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "RUN_NOT_FOUND" {
		t.Errorf("expected RUN_NOT_FOUND, got %s", code)
	}
}

func TestGetImportIsTenantScoped(t *testing.T) {
	store := newMemoryStore()
	router := testRouter(store)

	upload := doUpload(t, router, "products.csv", "name,price\nWidget,10\n")
	var resp models.ImportPreviewResponse
	if err := json.Unmarshal(upload.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/imports/%s", resp.Data.ID), nil)
	req.Header.Set("X-Tenant-ID", "tenant-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("another tenant must not see the run, got %d", w.Code)
	}
}

func TestCancelImportNotImporting(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/imports/%s/cancel", uuid.New()), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "NOT_IMPORTING" {
		t.Errorf("expected NOT_IMPORTING, got %s", code)
	}
}

func TestDeleteImportPreviewRun(t *testing.T) {
	store := newMemoryStore()
	router := testRouter(store)

	upload := doUpload(t, router, "products.csv", "name,price\nWidget,10\n")
	var resp models.ImportPreviewResponse
	if err := json.Unmarshal(upload.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/imports/%s", resp.Data.ID), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := store.GetRun("tenant-1", resp.Data.ID); err == nil {
		t.Error("expected the run to be deleted")
	}
}

func TestGetImportSummaryTerminalRun(t *testing.T) {
	store := newMemoryStore()
	router := testRouter(store)

	id := uuid.New()
	store.runs[id] = &models.ImportRun{
		ID:           id,
		TenantID:     "tenant-1",
		Status:       models.RunStatusCompleted,
		TotalRows:    3,
		SuccessCount: 2,
		ErrorCount:   1,
		Errors: []models.ImportRunError{
			{RunID: id, Row: 3, Product: "Gadget", Message: "valid price is required"},
		},
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/imports/%s/summary", id), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ImportSummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if resp.Data.SuccessCount != 2 {
		t.Errorf("expected 2 successes, got %d", resp.Data.SuccessCount)
	}
	if len(resp.Data.Errors) != 1 || resp.Data.Errors[0].Row != 3 || resp.Data.Errors[0].Error != "valid price is required" {
		t.Errorf("unexpected error breakdown %+v", resp.Data.Errors)
	}
}

func TestGetImportSummaryBeforeCompletion(t *testing.T) {
	store := newMemoryStore()
	router := testRouter(store)

	upload := doUpload(t, router, "products.csv", "name,price\nWidget,10\n")
	var resp models.ImportPreviewResponse
	if err := json.Unmarshal(upload.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/imports/%s/summary", resp.Data.ID), nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a non-terminal run, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "RUN_NOT_FINISHED" {
		t.Errorf("expected RUN_NOT_FINISHED, got %s", code)
	}
}

func TestGetImportTemplateJSON(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("GET", "/api/v1/imports/template", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Success  bool                  `json:"success"`
		Template models.ImportTemplate `json:"template"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode template: %v", err)
	}
	if len(resp.Template.Columns) == 0 {
		t.Fatal("expected template columns")
	}

	required := map[string]bool{}
	for _, col := range resp.Template.Columns {
		required[col.Name] = col.Required
	}
	if !required["price"] {
		t.Error("price column must be required")
	}
	if required["sku"] {
		t.Error("sku column must be optional")
	}
}

func TestNewImportHandlerHistoryLimit(t *testing.T) {
	if h := NewImportHandler(nil, 0); h.historyLimit != 50 {
		t.Errorf("expected fallback history limit 50, got %d", h.historyLimit)
	}
	if h := NewImportHandler(nil, 10); h.historyLimit != 10 {
		t.Errorf("expected configured history limit 10, got %d", h.historyLimit)
	}
}

func TestGetImportTemplateCSV(t *testing.T) {
	router := testRouter(newMemoryStore())

	req := httptest.NewRequest("GET", "/api/v1/imports/template?format=csv", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("name")) || !bytes.Contains(w.Body.Bytes(), []byte("price")) {
		t.Errorf("expected header row in CSV body, got %q", w.Body.String())
	}
}
