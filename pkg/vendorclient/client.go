/**
 * @description
 * This package provides a client for the vendor identity service. The payout
 * engine calls it to resolve a vendor's status and commission rate before
 * creating payouts. Lookups are cached for a short TTL because commission
 * rates change rarely but are read on every payout.
 *
 * @dependencies
 * - context, encoding/json, net/http, sync, time: Standard Go libraries.
 * - github.com/google/uuid: For vendor identifiers.
 */
package vendorclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
)

// ErrVendorNotFound is returned when the vendor service has no such vendor.
var ErrVendorNotFound = errors.New("vendor not found")

const cacheTTL = 5 * time.Minute

type cachedVendor struct {
	vendor  *domain.Vendor
	expires time.Time
}

// Client is a client for the vendor service's internal API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedVendor
}

// NewClient creates a new vendor service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: make(map[uuid.UUID]cachedVendor),
	}
}

type vendorResponse struct {
	ID             uuid.UUID `json:"id"`
	BusinessName   string    `json:"business_name"`
	Status         string    `json:"status"`
	CommissionRate float64   `json:"commission_rate"`
}

// GetVendor fetches a vendor by ID, serving from cache when fresh.
func (c *Client) GetVendor(ctx context.Context, vendorID uuid.UUID) (*domain.Vendor, error) {
	c.mu.RLock()
	if entry, ok := c.cache[vendorID]; ok && time.Now().Before(entry.expires) {
		c.mu.RUnlock()
		return entry.vendor, nil
	}
	c.mu.RUnlock()

	url := fmt.Sprintf("%s/internal/vendors/%s", c.BaseURL, vendorID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vendor request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vendor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrVendorNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vendor service returned status %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor response: %w", err)
	}

	var vr vendorResponse
	if err := json.Unmarshal(bodyBytes, &vr); err != nil {
		return nil, fmt.Errorf("failed to decode vendor response: %w", err)
	}

	vendor := &domain.Vendor{
		ID:             vr.ID,
		BusinessName:   vr.BusinessName,
		Status:         vr.Status,
		CommissionRate: vr.CommissionRate,
	}

	c.mu.Lock()
	c.cache[vendorID] = cachedVendor{vendor: vendor, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()

	return vendor, nil
}

// Invalidate drops a vendor from the cache, forcing the next read through.
func (c *Client) Invalidate(vendorID uuid.UUID) {
	c.mu.Lock()
	delete(c.cache, vendorID)
	c.mu.Unlock()
}
