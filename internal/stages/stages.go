// Package stages wires the five pipeline stage handlers to the queue, the
// API clients, and the venue store. Each handler maps one inbound message
// to zero or more outbound messages and at most one store mutation; all of
// them are safe to re-run on the same message.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/grid"
	"github.com/example/happyfinder/internal/pipeline"
	"github.com/example/happyfinder/internal/places"
	"github.com/example/happyfinder/internal/store"
	"github.com/example/happyfinder/internal/venues"
)

// Queue names, in pipeline order.
const (
	QueueBounds = "lat_lng_queue"
	QueueRadar  = "radar_search_queue"
	QueuePlaces = "google_places_queue"
	QueueVenues = "fs_details_queue"
	QueueMenus  = "fs_menu_details_queue"
)

// Sender is the outbound half of the queue client.
type Sender interface {
	Send(ctx context.Context, name, body string) error
}

// Fetcher issues one GET and decodes the JSON response. The maps fetcher
// expects the key embedded in the URL; the venues fetcher signs requests
// with rotated credentials.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, out any) error
}

// VenueStore is the slice of the persistence adapter the handlers use.
type VenueStore interface {
	Upsert(ctx context.Context, rec store.Record) error
	SetHappyHour(ctx context.Context, fsVenueID string, happyHour, category *string) error
	DeleteByVenueID(ctx context.Context, fsVenueID string) error
}

type Deps struct {
	Queue     Sender
	Maps      Fetcher
	Venues    Fetcher
	Store     VenueStore
	Log       *zap.Logger
	GoogleKey string
}

// Stage describes one runnable pipeline stage. A zero PollBackoff means
// the stage uses the process-wide default.
type Stage struct {
	Name        string
	Inbound     string
	Handler     pipeline.HandlerFunc
	PollBackoff time.Duration
}

// Inbound maps stage name to the queue it consumes.
var Inbound = map[string]string{
	"grid":   QueueBounds,
	"radar":  QueueRadar,
	"places": QueuePlaces,
	"venue":  QueueVenues,
	"menu":   QueueMenus,
}

// All returns the registered stages keyed by CLI name.
func All(d Deps) map[string]Stage {
	return map[string]Stage{
		"grid":   {Name: "grid", Inbound: Inbound["grid"], Handler: GridExpand(d)},
		"radar":  {Name: "radar", Inbound: Inbound["radar"], Handler: RadarFanOut(d)},
		"places": {Name: "places", Inbound: Inbound["places"], Handler: PlaceMatch(d)},
		"venue":  {Name: "venue", Inbound: Inbound["venue"], Handler: MenuFetch(d)},
		// Menu fetches are the heaviest venue-provider calls; the stage
		// polls on a slower cycle to stay inside its quota bucket.
		"menu": {Name: "menu", Inbound: Inbound["menu"], Handler: HappyHourExtract(d), PollBackoff: 30 * time.Second},
	}
}

// GridExpand turns one bounds message into a radar-search message per grid
// cell.
func GridExpand(d Deps) pipeline.HandlerFunc {
	return func(ctx context.Context, body string) error {
		var b grid.Bounds
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			return fmt.Errorf("stages: bad bounds message: %w", err)
		}
		cells := b.Cells()
		d.Log.Info("expanding bounds", zap.Int("cells", len(cells)))
		for _, p := range cells {
			if err := d.Queue.Send(ctx, QueueRadar, grid.SearchURL(p, d.GoogleKey)); err != nil {
				return err
			}
		}
		return nil
	}
}

// RadarFanOut fetches one radar-search URL and emits one place-details
// message per discovered place id.
func RadarFanOut(d Deps) pipeline.HandlerFunc {
	return func(ctx context.Context, body string) error {
		u, err := messageURL(body)
		if err != nil {
			return err
		}
		var sr places.SearchResponse
		if err := d.Maps.Get(ctx, u, &sr); err != nil {
			return err
		}
		for _, id := range sr.PlaceIDs() {
			if err := d.Queue.Send(ctx, QueuePlaces, places.DetailsURL(id, d.GoogleKey)); err != nil {
				return err
			}
		}
		return nil
	}
}

// PlaceMatch fetches place details, tries to match the place against the
// venue provider by name and coordinates, and inserts the venue record.
// The next-stage message is only emitted when a venue was matched.
func PlaceMatch(d Deps) pipeline.HandlerFunc {
	return func(ctx context.Context, body string) error {
		u, err := messageURL(body)
		if err != nil {
			return err
		}
		var dr places.DetailsResponse
		if err := d.Maps.Get(ctx, u, &dr); err != nil {
			return err
		}
		det := dr.Result
		if det.PlaceID == "" {
			d.Log.Warn("place details without place_id", zap.String("url", u))
			return nil
		}

		matchURL := venues.MatchURL(det.Name, det.Geometry.Location.Lat, det.Geometry.Location.Lng)
		var mr venues.MatchResponse
		if err := d.Venues.Get(ctx, matchURL, &mr); err != nil {
			return err
		}
		venue, matched := mr.Match()

		rec := store.Record{
			Name:        det.Name,
			Lat:         &det.Geometry.Location.Lat,
			Lng:         &det.Geometry.Location.Lng,
			Hours:       det.HoursJSON(),
			Rating:      det.Rating,
			PhoneNumber: store.OptText(det.FormattedPhoneNumber),
			Address:     store.OptText(det.FormattedAddress),
			URL:         store.OptText(det.Website),
			GoogleID:    det.PlaceID,
			Price:       det.PriceLevel,
		}
		if matched {
			rec.FSVenueID = store.OptText(venue.ID)
		}
		if err := d.Store.Upsert(ctx, rec); err != nil {
			return err
		}

		if !matched {
			return nil
		}
		return d.Queue.Send(ctx, QueueVenues, matchURL)
	}
}

// menuPayload is the structured message between the venue and menu stages.
type menuPayload struct {
	URL       string `json:"url"`
	Category  string `json:"category"`
	FSVenueID string `json:"fs_venue_id"`
}

// MenuFetch re-queries the matched venue and checks for a menu resource.
// No menu means the venue cannot qualify and its record is deleted;
// otherwise the menu request is handed to the extraction stage.
func MenuFetch(d Deps) pipeline.HandlerFunc {
	return func(ctx context.Context, body string) error {
		u, err := messageURL(body)
		if err != nil {
			return err
		}
		var mr venues.MatchResponse
		if err := d.Venues.Get(ctx, u, &mr); err != nil {
			return err
		}
		venue, matched := mr.Match()
		if !matched {
			d.Log.Warn("venue vanished between stages", zap.String("url", u))
			return nil
		}
		if !venue.HasMenu {
			return d.Store.DeleteByVenueID(ctx, venue.ID)
		}

		payload, err := json.Marshal(menuPayload{
			URL:       venues.MenuURL(venue.ID),
			Category:  venue.Category(),
			FSVenueID: venue.ID,
		})
		if err != nil {
			return err
		}
		return d.Queue.Send(ctx, QueueMenus, string(payload))
	}
}

// HappyHourExtract fetches the venue's menu and either records the
// happy-hour text or deletes the record when the menu carries no signal.
func HappyHourExtract(d Deps) pipeline.HandlerFunc {
	return func(ctx context.Context, body string) error {
		var p menuPayload
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return fmt.Errorf("stages: bad menu message: %w", err)
		}
		if p.FSVenueID == "" {
			return fmt.Errorf("stages: menu message missing fs_venue_id")
		}

		var mr venues.MenuResponse
		if err := d.Venues.Get(ctx, p.URL, &mr); err != nil {
			return err
		}

		happy, found := mr.HappyHour()
		if !found {
			return d.Store.DeleteByVenueID(ctx, p.FSVenueID)
		}
		return d.Store.SetHappyHour(ctx, p.FSVenueID, store.OptText(happy), store.OptText(p.Category))
	}
}

// messageURL accepts the two historical shapes a URL-carrying message has
// had: a bare URL string or a JSON object with a url field.
func messageURL(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
			return "", fmt.Errorf("stages: bad url message: %w", err)
		}
		if p.URL == "" {
			return "", fmt.Errorf("stages: url message missing url field")
		}
		return p.URL, nil
	}
	return trimmed, nil
}
