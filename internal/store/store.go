package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"smartbus/internal/carousel"
	"smartbus/internal/fleet"
	"smartbus/internal/geo"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store reads promo items and the bus fleet registry from Postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// SelectItems picks up to n promo items in random order. It satisfies the
// carousel Source contract.
func (s *Store) SelectItems(ctx context.Context, n int) ([]carousel.Item, error) {
	q := `SELECT id, title, COALESCE(image_ref, '') FROM promos ORDER BY random() LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("query promos: %w", err)
	}
	defer rows.Close()

	var items []carousel.Item
	for rows.Next() {
		var it carousel.Item
		if err := rows.Scan(&it.ID, &it.Title, &it.ImageRef); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Fleet returns the registered buses with their home coordinates.
func (s *Store) Fleet(ctx context.Context) ([]fleet.Bus, error) {
	q := `SELECT bus_id, name, lat, lng FROM fleet`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query fleet: %w", err)
	}
	defer rows.Close()

	var buses []fleet.Bus
	for rows.Next() {
		var b fleet.Bus
		var lat, lng float64
		if err := rows.Scan(&b.ID, &b.Name, &lat, &lng); err != nil {
			return nil, err
		}
		b.Home = geo.Coordinate{Lat: lat, Lng: lng}
		buses = append(buses, b)
	}
	return buses, rows.Err()
}
