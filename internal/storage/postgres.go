package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/cian-crawler/internal/domain"
)

var (
	offerColumns = []string{
		"offer_id", "added_date", "date_parsing", "region", "category",
		"flat_type", "offer_type", "total_area", "price", "phone",
		"address", "lat", "lng", "link",
	}
	houseColumns = []string{
		"offer_id", "year_house", "floor", "floors_count", "material_type",
	}
)

// RefreshPolicy names the columns an upsert refreshes when the offer_id
// already exists; everything else stays as first written.
type RefreshPolicy struct {
	Offers []string
	House  []string
}

// DefaultRefreshPolicy keeps the historical asymmetry: offers refresh
// their dates and price, house refreshes build year and material but
// not floor/floors_count.
func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{
		Offers: []string{"added_date", "date_parsing", "price"},
		House:  []string{"year_house", "material_type"},
	}
}

// PostgresStore persists offer/house pairs with merge-on-conflict
// semantics.
type PostgresStore struct {
	db         *pgxpool.Pool
	offersStmt string
	houseStmt  string
}

func NewPostgresStore(ctx context.Context, connStr string, policy RefreshPolicy) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &PostgresStore{
		db:         db,
		offersStmt: buildUpsert("offers", offerColumns, "offer_id", policy.Offers),
		houseStmt:  buildUpsert("house", houseColumns, "offer_id", policy.House),
	}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// UpsertPair writes the offer row and its house row in one transaction:
// both land or neither does. A conflicting offer_id refreshes only the
// policy's columns.
func (s *PostgresStore) UpsertPair(ctx context.Context, pair domain.Pair) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert for offer %d: %w", pair.Offer.OfferID, err)
	}
	defer tx.Rollback(ctx)

	o := pair.Offer
	if _, err := tx.Exec(ctx, s.offersStmt,
		o.OfferID, o.AddedDate, o.DateParsing, o.Region, o.Category,
		o.FlatType, o.OfferType, o.TotalArea, o.Price, o.Phone,
		o.Address, o.Lat, o.Lng, o.Link,
	); err != nil {
		return fmt.Errorf("upsert offer %d: %w", o.OfferID, err)
	}

	h := pair.House
	if _, err := tx.Exec(ctx, s.houseStmt,
		h.OfferID, h.YearHouse, h.Floor, h.FloorsCount, h.MaterialType,
	); err != nil {
		return fmt.Errorf("upsert house %d: %w", h.OfferID, err)
	}

	return tx.Commit(ctx)
}

// buildUpsert renders an INSERT ... ON CONFLICT statement whose SET
// clause mirrors exactly the configured refresh columns. An empty
// refresh set degrades to DO NOTHING.
func buildUpsert(table string, columns []string, key string, refresh []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	if len(refresh) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), key)
	}

	sets := make([]string, len(refresh))
	for i, col := range refresh {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), key,
		strings.Join(sets, ", "))
}
