package swmenu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"menu-hand/providers"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<speiseplan locationId="1">
  <tag timestamp="1717372800">
    <item>
      <category>Essen 1</category>
      <title>Currywurst (S,R) mit Pommes</title>
      <beilagen>Wahlbeilagen: Pommes frites, Reis</beilagen>
      <preis1>3,50</preis1>
      <preis2>4,50</preis2>
      <preis3>5,50</preis3>
      <piktogramme>https://cdn.example.com/icons/S.png</piktogramme>
      <kj>2000</kj>
      <kcal>480</kcal>
    </item>
    <item>
      <category>Essen 2</category>
      <beilagen></beilagen>
      <preis1>-</preis1>
    </item>
  </tag>
</speiseplan>`

type memorySink struct {
	mu     sync.Mutex
	stored map[string][]byte
}

func (m *memorySink) Store(feedName, lang string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = map[string][]byte{}
	}
	m.stored[feedName+"/"+lang] = data
	return nil
}

func TestFetchDecodesFeed(t *testing.T) {
	var requestedPaths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPaths = append(requestedPaths, r.URL.Path)
		w.Write([]byte(feedFixture))
	}))
	defer server.Close()

	sink := &memorySink{}
	fetcher := NewFetcher(server.URL, "mensa-sued", 1, time.Second, zap.NewNop()).
		WithRawCopySink(sink)

	menu, err := fetcher.Fetch(context.Background(), providers.LanguageDe)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if menu.LocationID != 1 {
		t.Errorf("location id = %d, want 1", menu.LocationID)
	}
	if len(menu.Days) != 1 || menu.Days[0].Timestamp != 1717372800 {
		t.Fatalf("unexpected day structure: %+v", menu.Days)
	}
	items := menu.Days[0].Items
	if len(items) != 2 {
		t.Fatalf("item count = %d, want 2", len(items))
	}
	if items[0].Title == nil || *items[0].Title != "Currywurst (S,R) mit Pommes" {
		t.Errorf("title = %v", items[0].Title)
	}
	if items[0].PriceStudent != "3,50" || items[0].PriceGuest != "5,50" {
		t.Errorf("prices = %q/%q", items[0].PriceStudent, items[0].PriceGuest)
	}
	if items[0].SideDishes != "Wahlbeilagen: Pommes frites, Reis" {
		t.Errorf("side dishes = %q", items[0].SideDishes)
	}
	// Fehlender Titel bleibt nil, wird nicht zum leeren String.
	if items[1].Title != nil {
		t.Errorf("missing title decoded as %q", *items[1].Title)
	}

	if len(requestedPaths) != 1 || requestedPaths[0] != "/mensa-sued.xml" {
		t.Errorf("requested paths = %v", requestedPaths)
	}
	if _, ok := sink.stored["mensa-sued/de"]; !ok {
		t.Errorf("raw copy not stored")
	}
}

func TestFetchUsesLanguagePrefix(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(feedFixture))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, "mensa-sued", 1, time.Second, zap.NewNop())
	if _, err := fetcher.Fetch(context.Background(), providers.LanguageEn); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if path != "/en/mensa-sued.xml" {
		t.Errorf("secondary language path = %q, want /en/mensa-sued.xml", path)
	}
}

func TestFetchRejectsBadStatusAndBadXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.xml" {
			w.Write([]byte("<speiseplan><tag>"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, "mensa-sued", 1, time.Second, zap.NewNop())
	if _, err := fetcher.Fetch(context.Background(), providers.LanguageDe); err == nil {
		t.Errorf("server error accepted")
	}

	broken := NewFetcher(server.URL, "broken", 1, time.Second, zap.NewNop())
	if _, err := broken.Fetch(context.Background(), providers.LanguageDe); err == nil {
		t.Errorf("undecodable feed accepted")
	}
}
