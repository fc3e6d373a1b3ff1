// Package venues holds the venue-provider response shapes, URL builders,
// and the happy-hour detection rules.
package venues

import (
	"fmt"
	"net/url"
	"strings"
)

// APIVersion pins the provider's versioned-response behavior.
const APIVersion = "20170109"

// NotAvailable is stored when a menu only signals happy hour through an
// item name: the match is real but carries no usable description.
const NotAvailable = "Not Available"

// MatchResponse is the name+coordinates venue match result.
type MatchResponse struct {
	Response struct {
		Venues []Venue `json:"venues"`
	} `json:"response"`
}

type Venue struct {
	ID         string `json:"id"`
	HasMenu    bool   `json:"hasMenu"`
	Categories []struct {
		ShortName string `json:"shortName"`
	} `json:"categories"`
}

// Match returns the best (first) matched venue, if any.
func (m MatchResponse) Match() (Venue, bool) {
	if len(m.Response.Venues) == 0 {
		return Venue{}, false
	}
	return m.Response.Venues[0], true
}

// Category returns the venue's primary category label, or "".
func (v Venue) Category() string {
	if len(v.Categories) == 0 {
		return ""
	}
	return v.Categories[0].ShortName
}

// MenuResponse is the nested menu -> section -> entry structure.
type MenuResponse struct {
	Response struct {
		Menu struct {
			Menus struct {
				Items []Section `json:"items"`
			} `json:"menus"`
		} `json:"menu"`
	} `json:"response"`
}

type Section struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Entries     struct {
		Items []Entry `json:"items"`
	} `json:"entries"`
}

type Entry struct {
	Name string `json:"name"`
}

// HappyHour scans the menu for a happy-hour signal.
//
// A section whose name or description contains "happy" (case-insensitive)
// wins, first such section in encounter order; its description is the
// extracted text. Item-name matches are only consulted when no section
// matched anywhere, and yield the NotAvailable sentinel. The second return
// is false when the menu carries no signal at all.
func (m MenuResponse) HappyHour() (string, bool) {
	sections := m.Response.Menu.Menus.Items
	for _, s := range sections {
		if containsHappy(s.Name) || containsHappy(s.Description) {
			return s.Description, true
		}
	}
	for _, s := range sections {
		for _, e := range s.Entries.Items {
			if containsHappy(e.Name) {
				return NotAvailable, true
			}
		}
	}
	return "", false
}

func containsHappy(s string) bool {
	return strings.Contains(strings.ToLower(s), "happy")
}

// MatchURL builds the name+coordinates venue match request. Credentials and
// the version parameter are injected at request time.
func MatchURL(name string, lat, lng float64) string {
	return fmt.Sprintf(
		"https://api.foursquare.com/v2/venues/search?intent=match&ll=%v,%v&query=%s",
		lat, lng, url.QueryEscape(name))
}

// MenuURL builds the menu request for one venue id.
func MenuURL(venueID string) string {
	return fmt.Sprintf("https://api.foursquare.com/v2/venues/%s/menu", venueID)
}
