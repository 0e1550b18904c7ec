package importer

// RawRow is one spreadsheet data row keyed by normalized column header.
// Number is the row's 1-based position in the source file including the
// header offset, so the first data row is 2. It is assigned by the reader
// and never recomputed, which keeps error reporting independent of how
// rows are later grouped into batches.
type RawRow struct {
	Number int
	Cells  map[string]string
}

// CategoryRef is a read-only category lookup entry fetched before a run.
type CategoryRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LocalizedName string `json:"localizedName"`
}

// BrandRef is a read-only brand lookup entry fetched before a run.
type BrandRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LocalizedName string `json:"localizedName"`
	Code          string `json:"code"`
}

// Lookups holds the reference lists used to resolve human-readable
// category/brand cells to internal identifiers. Read-only for the
// duration of an import run.
type Lookups struct {
	Categories []CategoryRef
	Brands     []BrandRef
}

// Variant is the single default variant attached to every mapped product.
type Variant struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
	SKU   string  `json:"sku,omitempty"`
}

// MappedProduct is the validated, backend-ready creation payload derived
// from one spreadsheet row.
type MappedProduct struct {
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	SKU         string    `json:"sku,omitempty"`
	ProductID   string    `json:"productId,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	Stock       int       `json:"stock"`
	CategoryID  string    `json:"categoryId,omitempty"`
	BrandID     string    `json:"brandId,omitempty"`
	IsAvailable bool      `json:"isAvailable"`
	IsPublished bool      `json:"isPublished"`
	Variants    []Variant `json:"variants"`
}

// RowError records one row that failed validation or remote creation.
// Rows are never retried automatically.
type RowError struct {
	Row     int    `json:"row"`
	Product string `json:"product"`
	Error   string `json:"error"`
}

// OutcomeKind tags a per-row mapping result.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeError   OutcomeKind = "error"
)

// RowOutcome is the explicit per-row result of validation and mapping.
// Exactly one of Product or Err is set, matching Kind.
type RowOutcome struct {
	Kind    OutcomeKind
	Row     int
	Product *MappedProduct
	Err     *RowError
}

// Progress reports pipeline advancement after each batch settles.
// Current is monotonically increasing and terminal when Current == Total.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Summary is the terminal result of a run, whether it completed normally
// or was cancelled partway.
type Summary struct {
	SuccessCount int        `json:"successCount"`
	Errors       []RowError `json:"errors"`
	Cancelled    bool       `json:"cancelled"`
}
