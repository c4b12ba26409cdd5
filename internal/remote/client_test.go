package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		URL:     serverURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, nil, NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond), zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestCountSendsFilterAndCredential(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"data":{"listingSearch":{"totalPages":48,"totalEntries":12000,"pageNumber":1,"pageSize":250}}}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	count, err := client.Count(context.Background(), catalog.Filter{
		Page: 1, PageSize: 250, YearMin: 2002, YearMax: 2003, PriceMin: 0, PriceMax: 500000000,
	})
	require.NoError(t, err)
	assert.Equal(t, 12000, count)
	assert.Equal(t, "test-key", gotKey)

	query, _ := gotBody["query"].(string)
	assert.Contains(t, query, "totalEntries")
	assert.NotContains(t, query, "entries {", "count query must not request entry data")

	filter := gotBody["variables"].(map[string]any)["filter"].(map[string]any)
	assert.Equal(t, float64(2002), filter["yearMin"])
	assert.Equal(t, float64(2003), filter["yearMax"])
	assert.Equal(t, float64(0), filter["listPriceMin"])
	assert.Equal(t, float64(500000000), filter["listPriceMax"])
	_, hasSort := filter["sort"]
	assert.False(t, hasSort, "sort must be omitted when unset")
}

func TestPageDecodesEntries(t *testing.T) {
	t.Parallel()

	payload := `{"data":{"listingSearch":{"totalPages":1,"totalEntries":1,"pageNumber":1,"pageSize":250,
		"entries":[{
			"id":"abc-123",
			"listedAt":"2022-08-01T12:30:00Z",
			"inventory":{
				"vin":"1FTEW1EP5MKD11111",
				"inventoryDisplay":{"id":"abc-123","make":"Ford","model":"F150","modelYear":2021,"imageUrls":["https://img.test/1.jpg"]},
				"dealer":{
					"name":"Main Street Motors",
					"customerId":"cust-9",
					"address":{"streetAddress1":"1 Main St","city":"Austin","state":"TX","zipCode":"78701"},
					"phones":[{"phoneType":"sales","areaCode":512,"localNumber":"5550100"},{"phoneType":"service","areaCode":"512","localNumber":5550101}]
				}
			}
		}]}}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(payload)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.Page(context.Background(), catalog.Filter{Page: 1, PageSize: 250})
	require.NoError(t, err)

	require.False(t, page.Empty)
	require.Len(t, page.Entries, 1)
	entry := page.Entries[0]
	assert.Equal(t, "abc-123", entry.ID)
	assert.Equal(t, "1FTEW1EP5MKD11111", entry.VIN)
	require.NotNil(t, entry.ListedAt)
	assert.Equal(t, 2022, entry.ListedAt.Year())
	assert.Equal(t, "Ford", entry.Attributes["make"])
	assert.Equal(t, "cust-9", entry.Dealer.CustomerID)
	require.Len(t, entry.Dealer.Phones, 2)
	assert.Equal(t, 512, entry.Dealer.Phones[0].AreaCode)
	assert.Equal(t, "5550100", entry.Dealer.Phones[0].LocalNumber)
	// Numbers and strings are both tolerated on the wire.
	assert.Equal(t, 512, entry.Dealer.Phones[1].AreaCode)
	assert.Equal(t, "5550101", entry.Dealer.Phones[1].LocalNumber)
}

func TestPageEmptyEntriesIsSignaledNotFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":{"listingSearch":{"totalPages":0,"totalEntries":0,"pageNumber":1,"pageSize":250}}}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.Page(context.Background(), catalog.Filter{Page: 1, PageSize: 250})
	require.NoError(t, err)
	assert.True(t, page.Empty)
	assert.Empty(t, page.Entries)
}

func TestMalformedResponseIsAnErrorNotZero(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"boom"}]}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Count(context.Background(), catalog.Filter{Page: 1, PageSize: 250})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTransientFailureIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{"listingSearch":{"totalPages":1,"totalEntries":42,"pageNumber":1,"pageSize":250}}}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	count, err := client.Count(context.Background(), catalog.Filter{Page: 1, PageSize: 250})
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetriesExhaustedSurfacesError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Count(context.Background(), catalog.Filter{Page: 1, PageSize: 250})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
