// Package store is the persistence adapter for venue records. All three
// operations are idempotent on their key, which is what makes at-least-once
// delivery safe upstream.
package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/db"
)

// Record is the persisted venue entity, keyed by the mapping provider's
// place id. Optional fields are pointers so "never populated" stays
// distinguishable from a known-empty value; absent fields are stored as
// SQL NULL, never as the empty string.
type Record struct {
	Name        string
	Lat         *float64
	Lng         *float64
	Hours       *string
	Rating      *float64
	PhoneNumber *string
	Address     *string
	URL         *string
	GoogleID    string
	Price       *int
	FSVenueID   *string
}

type Store struct {
	db  *db.DB
	log *zap.Logger
}

func New(d *db.DB, log *zap.Logger) *Store {
	return &Store{db: d, log: log}
}

// Upsert inserts a record. A natural-key conflict means the place was
// rediscovered by an overlapping grid cell: the existing row is left
// untouched and the collision is logged, not surfaced.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	n, err := s.db.Exec(ctx, `
INSERT INTO venues(name,lat,lng,hours,rating,phone_number,address,url,google_id,price,fs_venue_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (google_id) DO NOTHING`,
		rec.Name, rec.Lat, rec.Lng, rec.Hours, rec.Rating, rec.PhoneNumber,
		rec.Address, rec.URL, rec.GoogleID, rec.Price, rec.FSVenueID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Info("venue already recorded", zap.String("google_id", rec.GoogleID))
	}
	return nil
}

// SetHappyHour records the extracted happy-hour text and category for the
// venue with the given secondary id. No-op if the row is gone.
func (s *Store) SetHappyHour(ctx context.Context, fsVenueID string, happyHour, category *string) error {
	n, err := s.db.Exec(ctx, `
UPDATE venues SET happy_hour_string=$1, category=$2, updated_at=now()
WHERE fs_venue_id=$3`,
		happyHour, category, fsVenueID)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Info("update matched no venue", zap.String("fs_venue_id", fsVenueID))
	}
	return nil
}

// DeleteByVenueID removes the record for a venue that turned out to have no
// qualifying menu or no happy-hour mention. No-op if the row is gone.
func (s *Store) DeleteByVenueID(ctx context.Context, fsVenueID string) error {
	n, err := s.db.Exec(ctx, `DELETE FROM venues WHERE fs_venue_id=$1`, fsVenueID)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Info("delete matched no venue", zap.String("fs_venue_id", fsVenueID))
	}
	return nil
}

// OptText maps an optional text value to its stored form: NULL when empty.
func OptText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
