// Package remote implements the client side of the listing search API:
// query building, defensive response decoding, proxy selection and retry.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// ErrMalformed marks a response that could not be interpreted as a search
// result. It is never folded into a zero count; callers see the failure.
var ErrMalformed = errors.New("malformed search response")

const countQuery = `query ($filter: SearchFilterInput!) {listingSearch(filter: $filter) {totalPages totalEntries pageNumber pageSize}}`

const dataQuery = `query ($filter: SearchFilterInput!) {listingSearch(filter: $filter) {totalPages totalEntries pageNumber pageSize entries {inventory {vin inventoryDisplay {id drivetrainDescription awardSlug virtualAppointments cabType adDescription financingEligible seatCount imageUrls dealerVehicleUrl make bodyStyle certifiedPreOwned cylinderCount priceDropInCents priceBadge stockNumber stockType vehicleHistoryUrl doorCount providedFeatures modelYear videoUrls engineDescription homeDelivery exteriorColor milesFromDealer fuelType sellerType interiorColor mileage spinProvider spinUrl listPrice model msrp oneOwner trim features {seating}} dealer {name customerId address {streetAddress1 city state zipCode} phones {phoneType areaCode localNumber}} vin} id priceBadge predictedPrice listedAt}}}`

// Config controls the search client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client issues count and data queries against the search endpoint.
// It implements catalog.SearchClient.
type Client struct {
	cfg     Config
	base    *http.Client
	proxies *ProxyPool
	retry   *RetryPolicy
	logger  *zap.Logger
}

// NewClient builds a Client. proxies may be nil when proxying is disabled.
func NewClient(cfg Config, proxies *ProxyPool, retry *RetryPolicy, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	return &Client{
		cfg:     cfg,
		base:    &http.Client{Timeout: cfg.Timeout},
		proxies: proxies,
		retry:   retry,
		logger:  logger,
	}, nil
}

// Count runs the count-only query and returns the total matching entries.
func (c *Client) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	env, err := c.query(ctx, "count", countQuery, filter)
	if err != nil {
		return 0, err
	}
	return env.Data.ListingSearch.TotalEntries, nil
}

// Page runs the full-data query and returns one decoded page.
func (c *Client) Page(ctx context.Context, filter catalog.Filter) (catalog.Page, error) {
	env, err := c.query(ctx, "page", dataQuery, filter)
	if err != nil {
		return catalog.Page{}, err
	}

	search := env.Data.ListingSearch
	page := catalog.Page{
		TotalPages:   search.TotalPages,
		TotalEntries: search.TotalEntries,
		PageNumber:   search.PageNumber,
		PageSize:     search.PageSize,
	}
	if len(search.Entries) == 0 {
		page.Empty = true
		return page, nil
	}
	page.Entries = make([]catalog.ListingEntry, 0, len(search.Entries))
	for _, e := range search.Entries {
		page.Entries = append(page.Entries, e.toListing())
	}
	return page, nil
}

func (c *Client) query(ctx context.Context, kind, query string, filter catalog.Filter) (*envelope, error) {
	body, err := json.Marshal(requestBody{
		Variables: requestVariables{Filter: wireFilter(filter)},
		Query:     query,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		env, err := c.doOnce(ctx, body)
		if err == nil {
			metrics.ObserveRemoteRequest(kind, "ok", time.Since(start))
			return env, nil
		}
		metrics.ObserveRemoteRequest(kind, "error", time.Since(start))
		lastErr = err

		if !c.retry.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("%s query: %w", kind, lastErr)
		}
		delay := c.retry.Backoff(attempt)
		c.logger.Warn("remote request failed, retrying",
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*envelope, error) {
	client := c.base
	if c.proxies != nil {
		proxyURL, err := c.proxies.Pick(ctx)
		if err != nil {
			return nil, fmt.Errorf("pick proxy: %w", err)
		}
		client = c.clientFor(proxyURL)
		defer client.CloseIdleConnections()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post search: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Data == nil || env.Data.ListingSearch == nil {
		return nil, fmt.Errorf("%w: missing listingSearch payload", ErrMalformed)
	}
	return &env, nil
}

func (c *Client) clientFor(proxyURL *url.URL) *http.Client {
	return &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
}

type requestBody struct {
	Variables requestVariables `json:"variables"`
	Query     string           `json:"query"`
}

type requestVariables struct {
	Filter map[string]any `json:"filter"`
}

func wireFilter(f catalog.Filter) map[string]any {
	filter := map[string]any{
		"page":         f.Page,
		"pageSize":     f.PageSize,
		"yearMin":      f.YearMin,
		"yearMax":      f.YearMax,
		"listPriceMin": f.PriceMin,
		"listPriceMax": f.PriceMax,
	}
	if f.Sort != "" {
		filter["sort"] = f.Sort
	}
	return filter
}

type envelope struct {
	Data *struct {
		ListingSearch *searchPayload `json:"listingSearch"`
	} `json:"data"`
}

type searchPayload struct {
	TotalPages   int            `json:"totalPages"`
	TotalEntries int            `json:"totalEntries"`
	PageNumber   int            `json:"pageNumber"`
	PageSize     int            `json:"pageSize"`
	Entries      []entryPayload `json:"entries"`
}

type entryPayload struct {
	ID        string `json:"id"`
	ListedAt  string `json:"listedAt"`
	Inventory struct {
		VIN              string         `json:"vin"`
		InventoryDisplay map[string]any `json:"inventoryDisplay"`
		Dealer           dealerPayload  `json:"dealer"`
	} `json:"inventory"`
}

type dealerPayload struct {
	Name       string `json:"name"`
	CustomerID string `json:"customerId"`
	Address    struct {
		StreetAddress1 string `json:"streetAddress1"`
		City           string `json:"city"`
		State          string `json:"state"`
		ZipCode        string `json:"zipCode"`
	} `json:"address"`
	Phones []phonePayload `json:"phones"`
}

type phonePayload struct {
	PhoneType   string `json:"phoneType"`
	AreaCode    any    `json:"areaCode"`
	LocalNumber any    `json:"localNumber"`
}

func (e entryPayload) toListing() catalog.ListingEntry {
	entry := catalog.ListingEntry{
		ID:         e.ID,
		VIN:        e.Inventory.VIN,
		Attributes: e.Inventory.InventoryDisplay,
		Dealer: catalog.Dealer{
			CustomerID: e.Inventory.Dealer.CustomerID,
			Name:       e.Inventory.Dealer.Name,
			Street:     e.Inventory.Dealer.Address.StreetAddress1,
			City:       e.Inventory.Dealer.Address.City,
			State:      e.Inventory.Dealer.Address.State,
			ZipCode:    e.Inventory.Dealer.Address.ZipCode,
		},
	}
	if ts, err := time.Parse(time.RFC3339, e.ListedAt); err == nil {
		entry.ListedAt = &ts
	}
	for _, p := range e.Inventory.Dealer.Phones {
		entry.Dealer.Phones = append(entry.Dealer.Phones, catalog.Phone{
			PhoneType:   p.PhoneType,
			AreaCode:    coerceInt(p.AreaCode),
			LocalNumber: coerceString(p.LocalNumber),
		})
	}
	return entry
}

// coerceInt tolerates the remote schema sending numbers as either JSON
// numbers or strings.
func coerceInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
