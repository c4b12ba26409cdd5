// Package ingest normalizes decoded search pages into the relational catalog.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
	"github.com/mkosyakov/autocom-mirror/internal/metrics"
)

// Mode selects how entries already present in the catalog are handled.
type Mode int

const (
	// FullImport assumes an empty catalog; an already-stored listing id is a
	// duplicate from overlapping range pages and is skipped.
	FullImport Mode = iota
	// IncrementalMerge refreshes already-stored listings: mutable vehicle
	// fields are updated and attribute values are soft-updated in place.
	IncrementalMerge
)

// Attribute names that are structural rather than descriptive. They never
// enter the param dictionary.
var reservedAttrs = map[string]struct{}{
	"id":        {},
	"imageUrls": {},
}

// Stats summarizes one ingestion call.
type Stats struct {
	VehiclesCreated int
	VehiclesUpdated int
	Duplicates      int
}

// Ingestor writes decoded pages into the catalog store. The param
// dictionary is cached across calls, so one Ingestor serves a whole run.
type Ingestor struct {
	store  catalog.CatalogStore
	urls   *URLBuilder
	logger *zap.Logger
	params map[string]int64
}

// New builds an Ingestor on the given store.
func New(store catalog.CatalogStore, urls *URLBuilder, logger *zap.Logger) *Ingestor {
	return &Ingestor{store: store, urls: urls, logger: logger}
}

// IngestPages writes every entry of the given pages. Empty pages are
// skipped. Entries are processed in page order, so overlapping pages
// dedupe on first sight of a listing id.
func (i *Ingestor) IngestPages(ctx context.Context, pages []catalog.Page, mode Mode) (Stats, error) {
	var stats Stats
	if err := i.ensureParams(ctx, pages); err != nil {
		return stats, err
	}
	for _, page := range pages {
		if page.Empty {
			continue
		}
		for _, entry := range page.Entries {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if entry.ID == "" {
				i.logger.Warn("entry without listing id, skipping")
				continue
			}
			if err := i.ingestEntry(ctx, entry, mode, &stats); err != nil {
				return stats, fmt.Errorf("ingest listing %s: %w", entry.ID, err)
			}
		}
	}
	return stats, nil
}

// ensureParams registers attribute names not seen before and refreshes the
// name -> id cache.
func (i *Ingestor) ensureParams(ctx context.Context, pages []catalog.Page) error {
	if i.params == nil {
		params, err := i.store.ListParams(ctx)
		if err != nil {
			return err
		}
		i.params = params
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, page := range pages {
		for _, entry := range page.Entries {
			for name := range entry.Attributes {
				if _, reserved := reservedAttrs[name]; reserved {
					continue
				}
				if _, known := i.params[name]; known {
					continue
				}
				if _, dup := seen[name]; dup {
					continue
				}
				seen[name] = struct{}{}
				missing = append(missing, name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	if err := i.store.InsertParams(ctx, missing); err != nil {
		return err
	}
	params, err := i.store.ListParams(ctx)
	if err != nil {
		return err
	}
	i.params = params
	i.logger.Info("registered new params", zap.Int("count", len(missing)))
	return nil
}

func (i *Ingestor) ingestEntry(ctx context.Context, entry catalog.ListingEntry, mode Mode, stats *Stats) error {
	sellerID, err := i.ensureSeller(ctx, entry.Dealer)
	if err != nil {
		return err
	}

	vehicle := catalog.Vehicle{
		ListingID: entry.ID,
		SellerID:  sellerID,
		VIN:       entry.VIN,
		URL:       i.urls.Build(entry),
		ListedAt:  entry.ListedAt,
	}

	existingID, found, err := i.store.FindVehicle(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !found {
		if err := i.createVehicle(ctx, vehicle, entry); err != nil {
			return err
		}
		stats.VehiclesCreated++
		return nil
	}

	if mode == FullImport {
		stats.Duplicates++
		return nil
	}

	if err := i.store.UpdateVehicle(ctx, existingID, vehicle); err != nil {
		return err
	}
	if err := i.mergeParamValues(ctx, existingID, entry); err != nil {
		return err
	}
	stats.VehiclesUpdated++
	return nil
}

// createVehicle inserts the vehicle row with its images and all attribute
// values. Images are written only here; they are immutable afterwards.
func (i *Ingestor) createVehicle(ctx context.Context, vehicle catalog.Vehicle, entry catalog.ListingEntry) error {
	id, err := i.store.InsertVehicle(ctx, vehicle)
	if err != nil {
		return err
	}
	if urls := imageURLs(entry); len(urls) > 0 {
		if err := i.store.InsertVehicleImages(ctx, id, urls); err != nil {
			return err
		}
	}

	values := make([]catalog.ParamValue, 0, len(entry.Attributes))
	for _, name := range attributeNames(entry) {
		paramID, ok := i.params[name]
		if !ok {
			continue
		}
		values = append(values, catalog.ParamValue{
			VehicleID: id,
			ParamID:   paramID,
			Data:      encodeValue(entry.Attributes[name]),
		})
	}
	if err := i.store.InsertParamValues(ctx, values); err != nil {
		return err
	}
	metrics.VehicleCreated()
	metrics.ParamValuesWritten("insert", len(values))
	return nil
}

// mergeParamValues soft-updates the attribute values of a stored vehicle:
// unseen params are inserted, changed values are replaced, identical values
// are left untouched.
func (i *Ingestor) mergeParamValues(ctx context.Context, vehicleID int64, entry catalog.ListingEntry) error {
	existing, err := i.store.ParamValues(ctx, vehicleID)
	if err != nil {
		return err
	}

	var inserts []catalog.ParamValue
	var replaced int
	for _, name := range attributeNames(entry) {
		paramID, ok := i.params[name]
		if !ok {
			continue
		}
		data := encodeValue(entry.Attributes[name])
		current, stored := existing[paramID]
		switch {
		case !stored:
			inserts = append(inserts, catalog.ParamValue{VehicleID: vehicleID, ParamID: paramID, Data: data})
		case current != data:
			if err := i.store.ReplaceParamValue(ctx, vehicleID, paramID, data); err != nil {
				return err
			}
			replaced++
		}
	}
	if len(inserts) > 0 {
		if err := i.store.InsertParamValues(ctx, inserts); err != nil {
			return err
		}
	}
	metrics.ParamValuesWritten("insert", len(inserts))
	metrics.ParamValuesWritten("replace", replaced)
	return nil
}

func (i *Ingestor) ensureSeller(ctx context.Context, dealer catalog.Dealer) (int64, error) {
	id, found, err := i.store.FindSeller(ctx, dealer.CustomerID)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	id, err = i.store.InsertSeller(ctx, catalog.Seller{
		CustomerID: dealer.CustomerID,
		Name:       dealer.Name,
		Street:     dealer.Street,
		City:       dealer.City,
		State:      dealer.State,
		ZipCode:    dealer.ZipCode,
	})
	if err != nil {
		return 0, err
	}
	if len(dealer.Phones) > 0 {
		contacts := make([]catalog.SellerContact, 0, len(dealer.Phones))
		for _, p := range dealer.Phones {
			contacts = append(contacts, catalog.SellerContact{
				SellerID:    id,
				AreaCode:    p.AreaCode,
				LocalNumber: p.LocalNumber,
				PhoneType:   p.PhoneType,
			})
		}
		if err := i.store.InsertSellerContacts(ctx, contacts); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// attributeNames returns the descriptive attribute names of an entry in a
// stable order.
func attributeNames(entry catalog.ListingEntry) []string {
	names := make([]string, 0, len(entry.Attributes))
	for name := range entry.Attributes {
		if _, reserved := reservedAttrs[name]; reserved {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func imageURLs(entry catalog.ListingEntry) []string {
	raw, ok := entry.Attributes["imageUrls"].([]any)
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

// encodeValue flattens a decoded JSON attribute value to its stored text
// form. Scalars keep their literal rendering; composites are re-marshaled.
func encodeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
