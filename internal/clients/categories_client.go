package clients

import (
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

// CategoriesClient handles communication with the categories-service
type CategoriesClient struct {
	baseURL    string
	httpClient *http.Client
}

// CategoryListResponse from categories-service
type CategoryListResponse struct {
	Success bool                   `json:"success"`
	Data    []importer.CategoryRef `json:"data,omitempty"`
}

// NewCategoriesClient creates a new categories client
func NewCategoriesClient() *CategoriesClient {
	baseURL := os.Getenv("CATEGORIES_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://categories-service:8080"
	}

	return &CategoriesClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListCategories fetches the tenant's categories once before a run starts.
// A failure here aborts the whole wizard before any row is processed.
func (c *CategoriesClient) ListCategories(tenantID string) ([]importer.CategoryRef, error) {
	url := fmt.Sprintf("%s/api/v1/categories", c.baseURL)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[CategoriesClient] Error calling categories API: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[CategoriesClient] Categories API returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("failed to list categories: %d - %s", resp.StatusCode, string(body))
	}

	var result CategoryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("[CategoriesClient] Error decoding categories response: %v", err)
		return nil, err
	}

	log.Printf("[CategoriesClient] Found %d categories for tenant %s", len(result.Data), tenantID)
	return result.Data, nil
}
