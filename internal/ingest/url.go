package ingest

import (
	"net/url"
	"strings"

	"github.com/gosimple/slug"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
)

// URLBuilder renders the public detail URL of a listing under the
// configured site origin.
type URLBuilder struct {
	origin string
}

// NewURLBuilder builds a URLBuilder for origin, e.g. "https://auto.com/cars".
func NewURLBuilder(origin string) *URLBuilder {
	return &URLBuilder{origin: strings.TrimRight(origin, "/")}
}

// Build assembles origin/<slug>?id=<listing id>. The slug joins the make,
// model, model year, trim and VIN of the entry; missing parts are dropped.
func (b *URLBuilder) Build(entry catalog.ListingEntry) string {
	parts := make([]string, 0, 5)
	for _, key := range []string{"make", "model", "modelYear", "trim"} {
		if v := encodeValue(entry.Attributes[key]); v != "" {
			parts = append(parts, v)
		}
	}
	if entry.VIN != "" {
		parts = append(parts, entry.VIN)
	}
	return b.origin + "/" + slug.Make(strings.Join(parts, "-")) + "?id=" + url.QueryEscape(entry.ID)
}
