package config

import "testing"

func TestParseFeedLocations(t *testing.T) {
	c := &Config{FeedLocations: "mensa-sued:1, mensa-nord:2"}
	locations, err := c.ParseFeedLocations()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("count = %d, want 2", len(locations))
	}
	if locations[0].FeedName != "mensa-sued" || locations[0].ExternalID != 1 {
		t.Errorf("first entry = %+v", locations[0])
	}
	if locations[1].FeedName != "mensa-nord" || locations[1].ExternalID != 2 {
		t.Errorf("second entry = %+v", locations[1])
	}
}

func TestParseFeedLocationsRejectsInvalidEntries(t *testing.T) {
	for _, raw := range []string{"", "mensa-sued", "mensa-sued:abc"} {
		c := &Config{FeedLocations: raw}
		if _, err := c.ParseFeedLocations(); err == nil {
			t.Errorf("ParseFeedLocations(%q) accepted", raw)
		}
	}
}

func TestDSN(t *testing.T) {
	c := &Config{DBHost: "db", DBPort: 5432, DBUser: "menu", DBPassword: "secret", DBName: "menuhand"}
	want := "host=db user=menu password=secret dbname=menuhand port=5432 sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
