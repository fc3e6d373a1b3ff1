// Package places holds the mapping-provider response shapes and URL
// builders used by the radar and place-details stages.
package places

import (
	"encoding/json"
	"fmt"
)

// SearchResponse is a radar-search result list. Only the place ids matter;
// everything else comes from the details endpoint.
type SearchResponse struct {
	Results []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
}

// PlaceIDs returns the non-empty place ids in result order.
func (s SearchResponse) PlaceIDs() []string {
	var ids []string
	for _, r := range s.Results {
		if r.PlaceID != "" {
			ids = append(ids, r.PlaceID)
		}
	}
	return ids
}

type DetailsResponse struct {
	Result Details `json:"result"`
}

// Details is the place-details payload for one venue.
type Details struct {
	PlaceID              string `json:"place_id"`
	Name                 string `json:"name"`
	FormattedAddress     string `json:"formatted_address"`
	Website              string `json:"website"`
	FormattedPhoneNumber string `json:"formatted_phone_number"`
	OpeningHours         struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	Rating   *float64 `json:"rating"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	PriceLevel *int `json:"price_level"`
}

// HoursJSON serializes the weekday opening-hours lines for storage, or nil
// when the place reported none.
func (d Details) HoursJSON() *string {
	if len(d.OpeningHours.WeekdayText) == 0 {
		return nil
	}
	b, err := json.Marshal(d.OpeningHours.WeekdayText)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// DetailsURL builds the place-details request for one place id.
func DetailsURL(placeID, apiKey string) string {
	return fmt.Sprintf(
		"https://maps.googleapis.com/maps/api/place/details/json?placeid=%s&key=%s",
		placeID, apiKey)
}
