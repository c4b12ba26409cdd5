package catalog

import "context"

// SearchClient issues single remote queries against the listing search API.
type SearchClient interface {
	// Count runs the count-only query shape and returns the total entries
	// matching the filter. A malformed response is an error, never zero.
	Count(ctx context.Context, filter Filter) (int, error)
	// Page runs the full-data query shape and returns one decoded page.
	Page(ctx context.Context, filter Filter) (Page, error)
}

// BatchFetcher runs bounded batches of remote queries with barrier
// semantics: every request of a batch completes before any result is
// returned, and results match requests by submission order.
type BatchFetcher interface {
	Count(ctx context.Context, filter Filter) (int, error)
	CountPair(ctx context.Context, left, right Filter) (int, int, error)
	FetchPages(ctx context.Context, filters []Filter) ([]Page, error)
}

// RangeStore persists partition nodes.
type RangeStore interface {
	// InsertIfAbsent stores a node for key unless one already exists.
	// It returns the stored node and whether this call created it.
	InsertIfAbsent(ctx context.Context, key RangeKey, parentID *int64, count int) (RangeNode, bool, error)
	// FindByKey returns the node stored for key, if any.
	FindByKey(ctx context.Context, key RangeKey) (RangeNode, bool, error)
	MarkCompleted(ctx context.Context, id int64, fetchedPages, emptyEntries int) error
	CountNodes(ctx context.Context) (int64, error)
	// ListFetchable returns incomplete leaves with 0 < count < threshold.
	ListFetchable(ctx context.Context, threshold int) ([]RangeNode, error)
	// ListPriceSplitCandidates returns nodes whose year span has collapsed
	// but whose count is still at or above threshold.
	ListPriceSplitCandidates(ctx context.Context, threshold int) ([]RangeNode, error)
	Clear(ctx context.Context) error
}

// CatalogStore persists the normalized listing entities.
type CatalogStore interface {
	ListParams(ctx context.Context) (map[string]int64, error)
	InsertParams(ctx context.Context, names []string) error

	FindSeller(ctx context.Context, customerID string) (int64, bool, error)
	InsertSeller(ctx context.Context, seller Seller) (int64, error)
	InsertSellerContacts(ctx context.Context, contacts []SellerContact) error

	FindVehicle(ctx context.Context, listingID string) (int64, bool, error)
	InsertVehicle(ctx context.Context, vehicle Vehicle) (int64, error)
	UpdateVehicle(ctx context.Context, id int64, vehicle Vehicle) error
	InsertVehicleImages(ctx context.Context, vehicleID int64, urls []string) error

	InsertParamValues(ctx context.Context, values []ParamValue) error
	ParamValues(ctx context.Context, vehicleID int64) (map[int64]string, error)
	ReplaceParamValue(ctx context.Context, vehicleID, paramID int64, data string) error

	TruncateCatalog(ctx context.Context) error
}
