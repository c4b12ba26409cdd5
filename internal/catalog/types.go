// Package catalog defines core types shared across subsystems.
package catalog

import (
	"fmt"
	"time"
)

// SortNewestFirst is the remote sort value used by the incremental sync
// workflow to page listings newest-first.
const SortNewestFirst = "LISTED_AT_DESC"

// RangeKey identifies one (year, price) slice of the listing space.
// It is the natural key of a vehicle_ranges row.
type RangeKey struct {
	YearMin  int
	YearMax  int
	PriceMin int64
	PriceMax int64
}

// String renders the key for logs.
func (k RangeKey) String() string {
	return fmt.Sprintf("year[%d..%d] price[%d..%d]", k.YearMin, k.YearMax, k.PriceMin, k.PriceMax)
}

// CanSplitYear reports whether the year span can be halved further.
func (k RangeKey) CanSplitYear() bool {
	return k.YearMin < k.YearMax
}

// CanSplitPrice reports whether the price span can be halved further.
func (k RangeKey) CanSplitPrice() bool {
	return k.PriceMin < k.PriceMax
}

// SplitYear halves the year span: left = [min, min+mid], right = [min+mid+1, max]
// with mid = floor((max-min)/2). Price bounds are carried unchanged.
func (k RangeKey) SplitYear() (RangeKey, RangeKey) {
	mid := (k.YearMax - k.YearMin) / 2
	left := k
	left.YearMax = k.YearMin + mid
	right := k
	right.YearMin = k.YearMin + mid + 1
	return left, right
}

// SplitPrice halves the price span with the same rule as SplitYear.
// Year bounds are carried unchanged.
func (k RangeKey) SplitPrice() (RangeKey, RangeKey) {
	mid := (k.PriceMax - k.PriceMin) / 2
	left := k
	left.PriceMax = k.PriceMin + mid
	right := k
	right.PriceMin = k.PriceMin + mid + 1
	return left, right
}

// RangeNode is a persisted partition node.
type RangeNode struct {
	ID           int64
	ParentID     *int64
	Key          RangeKey
	Count        int
	IsCompleted  bool
	FetchedPages int
	EmptyEntries int
}

// Filter is the remote search filter for one query.
type Filter struct {
	Page     int
	PageSize int
	YearMin  int
	YearMax  int
	PriceMin int64
	PriceMax int64
	Sort     string
}

// RangeFilter builds a filter scoped to a partition slice.
func RangeFilter(key RangeKey, page, pageSize int) Filter {
	return Filter{
		Page:     page,
		PageSize: pageSize,
		YearMin:  key.YearMin,
		YearMax:  key.YearMax,
		PriceMin: key.PriceMin,
		PriceMax: key.PriceMax,
	}
}

// Page is one decoded result page. Empty marks a response whose entries
// field was missing or empty, which callers count separately from pages
// that carried data.
type Page struct {
	TotalPages   int
	TotalEntries int
	PageNumber   int
	PageSize     int
	Empty        bool
	Entries      []ListingEntry
}

// ListingEntry is one normalized listing from a data page. Attributes holds
// the dynamic inventoryDisplay map whose keys feed the Param dictionary.
type ListingEntry struct {
	ID         string
	ListedAt   *time.Time
	VIN        string
	Attributes map[string]any
	Dealer     Dealer
}

// Dealer is the nested seller record of a listing entry.
type Dealer struct {
	CustomerID string
	Name       string
	Street     string
	City       string
	State      string
	ZipCode    string
	Phones     []Phone
}

// Phone is one dealer phone entry.
type Phone struct {
	PhoneType   string
	AreaCode    int
	LocalNumber string
}

// Seller is a persisted dealer row, created once per customer id.
type Seller struct {
	ID         int64
	CustomerID string
	Name       string
	Street     string
	City       string
	State      string
	ZipCode    string
}

// SellerContact is one phone row belonging to a seller, deduplicated by
// (seller_id, area_code, local_number).
type SellerContact struct {
	SellerID    int64
	AreaCode    int
	LocalNumber string
	PhoneType   string
}

// Vehicle is a persisted listing row, created once per external listing id.
type Vehicle struct {
	ID        int64
	ListingID string
	SellerID  int64
	VIN       string
	URL       string
	ListedAt  *time.Time
}

// ParamValue is one (vehicle, param) value row.
type ParamValue struct {
	VehicleID int64
	ParamID   int64
	Data      string
}
