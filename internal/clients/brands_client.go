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

// BrandsClient handles communication with the brands-service
type BrandsClient struct {
	baseURL    string
	httpClient *http.Client
}

// BrandListResponse from brands-service
type BrandListResponse struct {
	Success bool                `json:"success"`
	Data    []importer.BrandRef `json:"data,omitempty"`
}

// NewBrandsClient creates a new brands client
func NewBrandsClient() *BrandsClient {
	baseURL := os.Getenv("BRANDS_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://brands-service:8080"
	}

	return &BrandsClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListBrands fetches the tenant's brands once before a run starts.
func (c *BrandsClient) ListBrands(tenantID string) ([]importer.BrandRef, error) {
	url := fmt.Sprintf("%s/api/v1/brands", c.baseURL)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[BrandsClient] Error calling brands API: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[BrandsClient] Brands API returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("failed to list brands: %d - %s", resp.StatusCode, string(body))
	}

	var result BrandListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("[BrandsClient] Error decoding brands response: %v", err)
		return nil, err
	}

	log.Printf("[BrandsClient] Found %d brands for tenant %s", len(result.Data), tenantID)
	return result.Data, nil
}
