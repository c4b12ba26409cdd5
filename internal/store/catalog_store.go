package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkosyakov/autocom-mirror/internal/catalog"
)

// CatalogStore persists the normalized listing entities. All writes use
// insert-or-ignore semantics keyed on each table's natural uniqueness, so
// ingestion is safe to re-run against overlapping page sets.
// It implements catalog.CatalogStore.
type CatalogStore struct {
	db DB
}

// NewCatalogStore builds a CatalogStore on the given pool.
func NewCatalogStore(db DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// ListParams returns the attribute dictionary as name -> id.
func (s *CatalogStore) ListParams(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM params`)
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}
	defer rows.Close()

	params := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		params[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate params: %w", err)
	}
	return params, nil
}

// InsertParams appends newly discovered attribute names to the dictionary.
// Existing names are left untouched.
func (s *CatalogStore) InsertParams(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO params (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("insert param %q: %w", name, err)
		}
	}
	return nil
}

// FindSeller returns the row id for a customer id, if present.
func (s *CatalogStore) FindSeller(ctx context.Context, customerID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM sellers WHERE customer_id = $1`, customerID).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("select seller: %w", err)
	}
}

const insertSellerSQL = `
INSERT INTO sellers (customer_id, name, address, city, state, zip_code)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (customer_id) DO NOTHING
RETURNING id`

// InsertSeller creates a seller row once per customer id and returns its id.
func (s *CatalogStore) InsertSeller(ctx context.Context, seller catalog.Seller) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, insertSellerSQL,
		seller.CustomerID, seller.Name, seller.Street, seller.City, seller.State, seller.ZipCode,
	).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		id, found, err := s.FindSeller(ctx, seller.CustomerID)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("seller %s vanished after conflict", seller.CustomerID)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("insert seller: %w", err)
	}
}

// InsertSellerContacts writes phone rows, ignoring duplicates on
// (seller_id, area_code, local_number).
func (s *CatalogStore) InsertSellerContacts(ctx context.Context, contacts []catalog.SellerContact) error {
	for _, c := range contacts {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO seller_contacts (seller_id, area_code, local_number, phone_type)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (seller_id, area_code, local_number) DO NOTHING`,
			c.SellerID, c.AreaCode, c.LocalNumber, c.PhoneType,
		); err != nil {
			return fmt.Errorf("insert seller contact: %w", err)
		}
	}
	return nil
}

// FindVehicle returns the row id for an external listing id, if present.
func (s *CatalogStore) FindVehicle(ctx context.Context, listingID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM vehicles WHERE vehicle_id = $1`, listingID).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("select vehicle: %w", err)
	}
}

const insertVehicleSQL = `
INSERT INTO vehicles (vehicle_id, seller_id, vin, url, add_date)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (vehicle_id) DO NOTHING
RETURNING id`

// InsertVehicle creates a vehicle row once per external listing id and
// returns its row id.
func (s *CatalogStore) InsertVehicle(ctx context.Context, vehicle catalog.Vehicle) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, insertVehicleSQL,
		vehicle.ListingID, vehicle.SellerID, vehicle.VIN, vehicle.URL, vehicle.ListedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		id, found, err := s.FindVehicle(ctx, vehicle.ListingID)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("vehicle %s vanished after conflict", vehicle.ListingID)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("insert vehicle: %w", err)
	}
}

// UpdateVehicle refreshes the mutable fields of an existing vehicle row.
func (s *CatalogStore) UpdateVehicle(ctx context.Context, id int64, vehicle catalog.Vehicle) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE vehicles SET url = $2, add_date = $3 WHERE id = $1`,
		id, vehicle.URL, vehicle.ListedAt,
	); err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	return nil
}

// InsertVehicleImages writes one image row per URL.
func (s *CatalogStore) InsertVehicleImages(ctx context.Context, vehicleID int64, urls []string) error {
	for _, u := range urls {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO vehicle_images (vehicle_id, url) VALUES ($1, $2)`,
			vehicleID, u,
		); err != nil {
			return fmt.Errorf("insert vehicle image: %w", err)
		}
	}
	return nil
}

// InsertParamValues writes attribute values, ignoring duplicates on
// (vehicle_id, param_id).
func (s *CatalogStore) InsertParamValues(ctx context.Context, values []catalog.ParamValue) error {
	for _, v := range values {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO param_values (vehicle_id, param_id, data)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (vehicle_id, param_id) DO NOTHING`,
			v.VehicleID, v.ParamID, v.Data,
		); err != nil {
			return fmt.Errorf("insert param value: %w", err)
		}
	}
	return nil
}

// ParamValues returns the stored attribute values of a vehicle as
// param_id -> data.
func (s *CatalogStore) ParamValues(ctx context.Context, vehicleID int64) (map[int64]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT param_id, COALESCE(data, '') FROM param_values WHERE vehicle_id = $1`, vehicleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list param values: %w", err)
	}
	defer rows.Close()

	values := make(map[int64]string)
	for rows.Next() {
		var paramID int64
		var data string
		if err := rows.Scan(&paramID, &data); err != nil {
			return nil, fmt.Errorf("scan param value: %w", err)
		}
		values[paramID] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate param values: %w", err)
	}
	return values, nil
}

// ReplaceParamValue removes the stale rows for a (vehicle, param) pair and
// inserts the new value.
func (s *CatalogStore) ReplaceParamValue(ctx context.Context, vehicleID, paramID int64, data string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM param_values WHERE vehicle_id = $1 AND param_id = $2`,
		vehicleID, paramID,
	); err != nil {
		return fmt.Errorf("delete stale param value: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO param_values (vehicle_id, param_id, data) VALUES ($1, $2, $3)`,
		vehicleID, paramID, data,
	); err != nil {
		return fmt.Errorf("insert fresh param value: %w", err)
	}
	return nil
}

// TruncateCatalog empties every listing table. The partition tree is left
// untouched; fresh import clears it separately.
func (s *CatalogStore) TruncateCatalog(ctx context.Context) error {
	if _, err := s.db.Exec(ctx,
		`TRUNCATE vehicle_images, param_values, params, vehicles, seller_contacts, sellers RESTART IDENTITY CASCADE`,
	); err != nil {
		return fmt.Errorf("truncate catalog: %w", err)
	}
	return nil
}
