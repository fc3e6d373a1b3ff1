package stages_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/pipeline"
	"github.com/example/happyfinder/internal/stages"
	"github.com/example/happyfinder/internal/store"
	"github.com/example/happyfinder/internal/venues"
)

type fakeSender struct {
	sent map[string][]string
}

func newFakeSender() *fakeSender { return &fakeSender{sent: map[string][]string{}} }

func (f *fakeSender) Send(ctx context.Context, name, body string) error {
	f.sent[name] = append(f.sent[name], body)
	return nil
}

// fakeFetcher serves canned JSON bodies keyed by URL.
type fakeFetcher struct {
	responses map[string]string
	fetched   []string
}

func (f *fakeFetcher) Get(ctx context.Context, rawURL string, out any) error {
	f.fetched = append(f.fetched, rawURL)
	body, ok := f.responses[rawURL]
	if !ok {
		return &pipeline.TransportError{URL: rawURL, Status: 404}
	}
	return json.Unmarshal([]byte(body), out)
}

// fakeStore mimics the adapter's idempotence: inserts keep the first row,
// updates and deletes are no-ops on absent keys.
type fakeStore struct {
	rows      map[string]store.Record // by google id
	conflicts int
	deleted   []string
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]store.Record{}} }

func (f *fakeStore) Upsert(ctx context.Context, rec store.Record) error {
	if _, ok := f.rows[rec.GoogleID]; ok {
		f.conflicts++
		return nil
	}
	f.rows[rec.GoogleID] = rec
	return nil
}

func (f *fakeStore) SetHappyHour(ctx context.Context, fsVenueID string, happyHour, category *string) error {
	for id, rec := range f.rows {
		if rec.FSVenueID != nil && *rec.FSVenueID == fsVenueID {
			f.rows[id] = rec
		}
	}
	return nil
}

func (f *fakeStore) DeleteByVenueID(ctx context.Context, fsVenueID string) error {
	f.deleted = append(f.deleted, fsVenueID)
	for id, rec := range f.rows {
		if rec.FSVenueID != nil && *rec.FSVenueID == fsVenueID {
			delete(f.rows, id)
		}
	}
	return nil
}

func newDeps(q *fakeSender, maps, fs *fakeFetcher, st *fakeStore) stages.Deps {
	return stages.Deps{
		Queue:     q,
		Maps:      maps,
		Venues:    fs,
		Store:     st,
		Log:       zap.NewNop(),
		GoogleKey: "gkey",
	}
}

func TestGridExpand(t *testing.T) {
	Convey("Given a bounds message covering one cell", t, func() {
		q := newFakeSender()
		h := stages.GridExpand(newDeps(q, nil, nil, nil))

		Convey("One radar-search URL is emitted", func() {
			err := h(context.Background(), `{"start_lat":0,"start_lng":0,"end_lat":0.01,"end_lng":0.01}`)
			So(err, ShouldBeNil)
			So(q.sent[stages.QueueRadar], ShouldHaveLength, 1)
			So(q.sent[stages.QueueRadar][0], ShouldContainSubstring, "location=0,0")
			So(q.sent[stages.QueueRadar][0], ShouldContainSubstring, "key=gkey")
		})

		Convey("A malformed bounds message is rejected", func() {
			So(h(context.Background(), "not json"), ShouldNotBeNil)
			So(q.sent[stages.QueueRadar], ShouldBeEmpty)
		})
	})
}

func TestRadarFanOut(t *testing.T) {
	Convey("Given a radar-search result with two places", t, func() {
		q := newFakeSender()
		maps := &fakeFetcher{responses: map[string]string{
			"http://search": `{"results":[{"place_id":"p1"},{},{"place_id":"p2"}]}`,
		}}
		h := stages.RadarFanOut(newDeps(q, maps, nil, nil))

		Convey("One details message per place id is emitted", func() {
			So(h(context.Background(), "http://search"), ShouldBeNil)
			out := q.sent[stages.QueuePlaces]
			So(out, ShouldHaveLength, 2)
			So(out[0], ShouldContainSubstring, "placeid=p1")
			So(out[1], ShouldContainSubstring, "placeid=p2")
		})

		Convey("The JSON message shape is accepted too", func() {
			So(h(context.Background(), `{"url":"http://search"}`), ShouldBeNil)
			So(q.sent[stages.QueuePlaces], ShouldHaveLength, 2)
		})

		Convey("An empty result fans out to nothing", func() {
			maps.responses["http://empty"] = `{"results":[]}`
			So(h(context.Background(), "http://empty"), ShouldBeNil)
			So(q.sent[stages.QueuePlaces], ShouldBeEmpty)
		})
	})
}

func placeDetailsFixture() (string, string) {
	detailsURL := "http://details/p1"
	body := `{"result":{
		"place_id":"p1","name":"Test Tavern",
		"formatted_address":"1 Main St","website":"","formatted_phone_number":"",
		"geometry":{"location":{"lat":33.5,"lng":-84.25}},
		"rating":4.2
	}}`
	return detailsURL, body
}

func TestPlaceMatch(t *testing.T) {
	detailsURL, detailsBody := placeDetailsFixture()
	matchURL := venues.MatchURL("Test Tavern", 33.5, -84.25)

	Convey("Given place details that match a venue", t, func() {
		q := newFakeSender()
		st := newFakeStore()
		maps := &fakeFetcher{responses: map[string]string{detailsURL: detailsBody}}
		fs := &fakeFetcher{responses: map[string]string{
			matchURL: `{"response":{"venues":[{"id":"v1","hasMenu":true,"categories":[{"shortName":"Bar"}]}]}}`,
		}}
		h := stages.PlaceMatch(newDeps(q, maps, fs, st))

		Convey("The record is inserted with both keys and the next message is emitted", func() {
			So(h(context.Background(), detailsURL), ShouldBeNil)
			rec, ok := st.rows["p1"]
			So(ok, ShouldBeTrue)
			So(rec.Name, ShouldEqual, "Test Tavern")
			So(*rec.FSVenueID, ShouldEqual, "v1")
			So(rec.PhoneNumber, ShouldBeNil) // empty optional stays NULL
			So(rec.Address, ShouldNotBeNil)
			So(q.sent[stages.QueueVenues], ShouldResemble, []string{matchURL})
		})

		Convey("Processing the same message twice converges to one record", func() {
			So(h(context.Background(), detailsURL), ShouldBeNil)
			So(h(context.Background(), detailsURL), ShouldBeNil)
			So(st.rows, ShouldHaveLength, 1)
			So(st.conflicts, ShouldEqual, 1)
		})
	})

	Convey("Given place details with no venue match", t, func() {
		q := newFakeSender()
		st := newFakeStore()
		maps := &fakeFetcher{responses: map[string]string{detailsURL: detailsBody}}
		fs := &fakeFetcher{responses: map[string]string{
			matchURL: `{"response":{"venues":[]}}`,
		}}
		h := stages.PlaceMatch(newDeps(q, maps, fs, st))

		Convey("The record is still inserted but no next-stage message goes out", func() {
			So(h(context.Background(), detailsURL), ShouldBeNil)
			rec, ok := st.rows["p1"]
			So(ok, ShouldBeTrue)
			So(rec.FSVenueID, ShouldBeNil)
			So(q.sent[stages.QueueVenues], ShouldBeEmpty)
		})
	})
}

func TestMenuFetch(t *testing.T) {
	Convey("Given a matched venue", t, func() {
		q := newFakeSender()
		st := newFakeStore()
		vid := "v1"
		st.rows["p1"] = store.Record{GoogleID: "p1", FSVenueID: &vid}

		Convey("When the venue has a menu, the menu request is handed on", func() {
			fs := &fakeFetcher{responses: map[string]string{
				"http://match/v1": `{"response":{"venues":[{"id":"v1","hasMenu":true,"categories":[{"shortName":"Bar"}]}]}}`,
			}}
			h := stages.MenuFetch(newDeps(q, nil, fs, st))

			So(h(context.Background(), "http://match/v1"), ShouldBeNil)
			out := q.sent[stages.QueueMenus]
			So(out, ShouldHaveLength, 1)

			var p struct {
				URL       string `json:"url"`
				Category  string `json:"category"`
				FSVenueID string `json:"fs_venue_id"`
			}
			So(json.Unmarshal([]byte(out[0]), &p), ShouldBeNil)
			So(p.URL, ShouldEqual, venues.MenuURL("v1"))
			So(p.Category, ShouldEqual, "Bar")
			So(p.FSVenueID, ShouldEqual, "v1")
			So(st.deleted, ShouldBeEmpty)
		})

		Convey("When the venue has no menu, the record is deleted, not skipped", func() {
			fs := &fakeFetcher{responses: map[string]string{
				"http://match/v1": `{"response":{"venues":[{"id":"v1","hasMenu":false}]}}`,
			}}
			h := stages.MenuFetch(newDeps(q, nil, fs, st))

			So(h(context.Background(), "http://match/v1"), ShouldBeNil)
			So(st.deleted, ShouldResemble, []string{"v1"})
			So(st.rows, ShouldBeEmpty)
			So(q.sent[stages.QueueMenus], ShouldBeEmpty)
		})
	})
}

func TestHappyHourExtract(t *testing.T) {
	menuMsg := func(url string) string {
		return fmt.Sprintf(`{"url":%q,"category":"Bar","fs_venue_id":"v1"}`, url)
	}

	Convey("Given a stored venue awaiting extraction", t, func() {
		q := newFakeSender()
		st := newFakeStore()
		vid := "v1"
		st.rows["p1"] = store.Record{GoogleID: "p1", FSVenueID: &vid}

		Convey("A section-level signal updates the record", func() {
			fs := &fakeFetcher{responses: map[string]string{
				"http://menu/v1": `{"response":{"menu":{"menus":{"items":[
					{"name":"Drinks","description":"happy hour 4-6pm","entries":{"items":[]}}
				]}}}}`,
			}}
			h := stages.HappyHourExtract(newDeps(q, nil, fs, st))

			So(h(context.Background(), menuMsg("http://menu/v1")), ShouldBeNil)
			So(st.deleted, ShouldBeEmpty)
			So(st.rows, ShouldHaveLength, 1)
		})

		Convey("No signal deletes the record", func() {
			fs := &fakeFetcher{responses: map[string]string{
				"http://menu/v1": `{"response":{"menu":{"menus":{"items":[
					{"name":"Dinner","description":"entrees","entries":{"items":[{"name":"Steak"}]}}
				]}}}}`,
			}}
			h := stages.HappyHourExtract(newDeps(q, nil, fs, st))

			So(h(context.Background(), menuMsg("http://menu/v1")), ShouldBeNil)
			So(st.deleted, ShouldResemble, []string{"v1"})
			So(st.rows, ShouldBeEmpty)
		})

		Convey("A message without a venue id is rejected", func() {
			h := stages.HappyHourExtract(newDeps(q, nil, &fakeFetcher{}, st))
			So(h(context.Background(), `{"url":"http://menu/v1"}`), ShouldNotBeNil)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given the stage registry", t, func() {
		all := stages.All(newDeps(newFakeSender(), &fakeFetcher{}, &fakeFetcher{}, newFakeStore()))

		Convey("Every stage consumes its named queue and has a handler", func() {
			So(all, ShouldHaveLength, len(stages.Inbound))
			for name, st := range all {
				So(st.Name, ShouldEqual, name)
				So(st.Inbound, ShouldEqual, stages.Inbound[name])
				So(st.Handler, ShouldNotBeNil)
			}
		})

		Convey("Only the menu stage declares its slower poll interval", func() {
			So(all["menu"].PollBackoff, ShouldEqual, 30*time.Second)
			for _, name := range []string{"grid", "radar", "places", "venue"} {
				So(all[name].PollBackoff, ShouldEqual, time.Duration(0))
			}
		})
	})
}
