package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"catalog-import-service/internal/importer"
)

// ProductsClient handles communication with the products-service
type ProductsClient struct {
	baseURL    string
	httpClient *http.Client
}

// Product is the created product echoed back by products-service
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SKU  string `json:"sku,omitempty"`
}

// ProductResponse from products-service
type ProductResponse struct {
	Success bool     `json:"success"`
	Data    *Product `json:"data,omitempty"`
}

// NewProductsClient creates a new products client
func NewProductsClient() *ProductsClient {
	baseURL := os.Getenv("PRODUCTS_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://products-service:8087"
	}

	return &ProductsClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateProduct issues one create call for a mapped product. bulkMode
// signals the backend to skip per-call side effects that are inappropriate
// during bulk ingestion (per-product notifications, search reindexing).
func (c *ProductsClient) CreateProduct(ctx context.Context, tenantID, userID string, product *importer.MappedProduct, bulkMode bool) (*Product, error) {
	url := fmt.Sprintf("%s/api/v1/products?bulk=%t", c.baseURL, bulkMode)

	body, err := json.Marshal(product)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Tenant-ID", tenantID)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if msg := extractServerMessage(respBody); msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}
		log.Printf("[ProductsClient] Create API returned %d: %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("failed to create product: %d", resp.StatusCode)
	}

	var result ProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Data, nil
}

// extractServerMessage pulls the server-provided rejection message out of
// an error body. The backend answers with either a single string or an
// array of strings under "message" (bare or nested under "error"); arrays
// are joined with ", ". Returns "" when no usable message is present.
func extractServerMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   struct {
			Message json.RawMessage `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	raw := envelope.Message
	if len(raw) == 0 {
		raw = envelope.Error.Message
	}
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}

	var multiple []string
	if err := json.Unmarshal(raw, &multiple); err == nil && len(multiple) > 0 {
		return strings.Join(multiple, ", ")
	}

	return ""
}
