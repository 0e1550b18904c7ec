package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/runs"
)

// PreviewRowLimit caps how many parsed rows the upload response echoes
// back for operator inspection.
const PreviewRowLimit = 20

type ImportHandler struct {
	manager      *runs.Manager
	historyLimit int
}

func NewImportHandler(manager *runs.Manager, historyLimit int) *ImportHandler {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ImportHandler{manager: manager, historyLimit: historyLimit}
}

// UploadImport accepts a spreadsheet, parses it, builds the lookup tables
// and creates a run in preview state
// POST /api/v1/imports
func (h *ImportHandler) UploadImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID := c.GetString("user_id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_REQUIRED",
				Message: "Please upload a spreadsheet file",
			},
		})
		return
	}
	defer file.Close()

	filename := strings.ToLower(header.Filename)
	var rows []importer.RawRow
	var parseErr error

	switch {
	case strings.HasSuffix(filename, ".csv"):
		rows, parseErr = importer.ReadCSV(file)
	case strings.HasSuffix(filename, ".xlsx"), strings.HasSuffix(filename, ".xls"):
		rows, parseErr = importer.ReadWorkbook(file)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_FORMAT",
				Message: "Only XLSX, XLS and CSV files are supported",
			},
		})
		return
	}

	if parseErr != nil {
		code := "PARSE_ERROR"
		if errors.Is(parseErr, importer.ErrEmptyFile) {
			code = "EMPTY_FILE"
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    code,
				Message: parseErr.Error(),
			},
		})
		return
	}

	run, err := h.manager.Upload(tenantID, userID, header.Filename, rows)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "LOOKUP_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	preview, _ := h.manager.PreviewRows(tenantID, run.ID, PreviewRowLimit)

	c.JSON(http.StatusCreated, models.ImportPreviewResponse{
		Success: true,
		Data:    run,
		Preview: preview,
	})
}

// StartImport confirms the preview and begins processing
// POST /api/v1/imports/:id/start
func (h *ImportHandler) StartImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, ok := h.runID(c)
	if !ok {
		return
	}

	if err := h.manager.Start(tenantID, id); err != nil {
		if errors.Is(err, runs.ErrRunNotActive) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "RUN_NOT_ACTIVE",
					Message: "The uploaded rows are no longer available. Upload the file again.",
				},
			})
			return
		}
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_STATE",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Import started",
	})
}

// GetImportProgress reports live batch-boundary progress
// GET /api/v1/imports/:id/progress
func (h *ImportHandler) GetImportProgress(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, ok := h.runID(c)
	if !ok {
		return
	}

	progress, err := h.manager.Progress(c.Request.Context(), tenantID, id)
	if err != nil {
		h.notFound(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportProgressResponse{
		Success: true,
		Data:    progress,
	})
}

// GetImport returns a run with its error breakdown once terminal
// GET /api/v1/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.manager.Get(tenantID, id)
	if err != nil {
		h.notFound(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ImportRunResponse{
		Success: true,
		Data:    run,
	})
}

// GetImportSummary returns the terminal two-number result with the
// per-row failure breakdown. Answers 409 until the run finishes
// GET /api/v1/imports/:id/summary
func (h *ImportHandler) GetImportSummary(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.manager.Get(tenantID, id)
	if err != nil {
		h.notFound(c, err)
		return
	}

	if !run.Status.Terminal() {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "RUN_NOT_FINISHED",
				Message: "Run has not produced its summary yet",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.ImportSummaryResponse{
		Success: true,
		Data: importer.Summary{
			SuccessCount: run.SuccessCount,
			Errors:       run.RowErrors(),
			Cancelled:    run.Cancelled,
		},
	})
}

// ListImports returns the tenant's run history
// GET /api/v1/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	limit := h.historyLimit
	if l := c.DefaultQuery("limit", ""); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	importRuns, err := h.manager.List(tenantID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "DB_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.ImportRunListResponse{
		Success: true,
		Data:    importRuns,
	})
}

// CancelImport requests cooperative cancellation; rows already in flight
// settle and are counted in the partial summary
// POST /api/v1/imports/:id/cancel
func (h *ImportHandler) CancelImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, ok := h.runID(c)
	if !ok {
		return
	}

	if err := h.manager.Cancel(tenantID, id); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "NOT_IMPORTING",
				Message: "Run is not currently importing",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Cancellation requested",
	})
}

// DeleteImport tears a run down. While importing it answers 409 unless
// force=true, which cancels the run first
// DELETE /api/v1/imports/:id
func (h *ImportHandler) DeleteImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	force := c.DefaultQuery("force", "false") == "true"

	id, ok := h.runID(c)
	if !ok {
		return
	}

	if err := h.manager.Delete(tenantID, id, force); err != nil {
		if errors.Is(err, runs.ErrRunImporting) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "RUN_IMPORTING",
					Message: "Run is importing. Retry with force=true to cancel and discard it.",
				},
			})
			return
		}
		h.notFound(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Import run deleted",
	})
}

// GetImportTemplate returns the import template definition or file
// GET /api/v1/imports/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	template := models.ProductImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template
func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	// Add Instructions sheet
	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Product Import Instructions")

	f.SetCellValue("Instructions", "A3", "VALIDATION RULES:")
	f.SetCellValue("Instructions", "A4", "- Every row needs a product name: fill in 'name', 'nameAr', or both.")
	f.SetCellValue("Instructions", "A5", "- 'price' is required and must be a positive number.")
	f.SetCellValue("Instructions", "A6", "- 'category' and 'brand' are matched by name (case-insensitive) against your existing catalog.")
	f.SetCellValue("Instructions", "A7", "- Rows whose category or brand has no match still import, uncategorized.")
	f.SetCellValue("Instructions", "A8", "- Rows that fail validation are skipped and reported; the rest of the file still imports.")

	f.SetCellValue("Instructions", "A10", "Column Definitions:")
	f.SetCellValue("Instructions", "A11", "Column")
	f.SetCellValue("Instructions", "B11", "Description")
	f.SetCellValue("Instructions", "C11", "Required")
	f.SetCellValue("Instructions", "D11", "Type")
	f.SetCellValue("Instructions", "E11", "Example")

	for i, col := range template.Columns {
		row := i + 12
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.xlsx")

	f.Write(c.Writer)
}

// runID parses the :id path param, answering 400 itself on failure.
func (h *ImportHandler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_RUN_ID",
				Message: "Run ID must be a valid UUID",
			},
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ImportHandler) notFound(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "RUN_NOT_FOUND",
				Message: "Import run not found",
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "DB_ERROR",
			Message: err.Error(),
		},
	})
}
