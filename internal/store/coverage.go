package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Venue is one discovered listing. The CRUD surface around venues lives
// elsewhere; the scheduler only reads aggregate counts and appends rows
// for freshly discovered listings.
type Venue struct {
	ID           string
	Name         string
	Chain        string
	Country      string
	City         string
	Platform     string
	DiscoveredAt time.Time
}

// ChainVenueCount returns how many venues are discovered for a chain.
func (s *Store) ChainVenueCount(ctx context.Context, chain string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM venues WHERE chain = ?`, chain).Scan(&n)
	if err != nil {
		return 0, persistErr("ChainVenueCount", err)
	}
	return n, nil
}

// CityVenueCounts returns discovered venue counts per city for a country.
// Cities with no venues are absent.
func (s *Store) CityVenueCounts(ctx context.Context, country string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT city, COUNT(*)
		FROM venues
		WHERE country = ?
		GROUP BY city`, country)
	if err != nil {
		return nil, persistErr("CityVenueCounts", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var city string
		var n int
		if err := rows.Scan(&city, &n); err != nil {
			return nil, persistErr("CityVenueCounts", err)
		}
		out[city] = n
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("CityVenueCounts", err)
	}
	return out, nil
}

// AddVenue appends a discovered venue.
func (s *Store) AddVenue(ctx context.Context, v Venue) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.DiscoveredAt.IsZero() {
		v.DiscoveredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO venues (id, name, chain, country, city, platform, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Chain, v.Country, v.City, v.Platform, v.DiscoveredAt)
	if err != nil {
		return persistErr("AddVenue", err)
	}
	return nil
}
