package swmenu

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"menu-hand/providers"
)

// httpClient wird für alle Feed-Anfragen dieses Providers verwendet.
var httpClient = &http.Client{Timeout: 60 * time.Second}

// RawCopySink erhält jede rohe Feed-Antwort, bevor sie dekodiert wird.
type RawCopySink interface {
	Store(feedName, lang string, data []byte) error
}

// Fetcher holt Speiseplan-Snapshots von einem max-manager-XML-Endpunkt.
// Der Sekundärsprachen-Feed liegt unter demselben Pfad mit "en/"-Präfix
// vor dem Dateinamen.
type Fetcher struct {
	baseURL  string
	feedName string
	location int
	delay    time.Duration
	logger   *zap.Logger
	rawCopy  RawCopySink
}

// NewFetcher erstellt einen Feed-Fetcher für einen Standort.
func NewFetcher(baseURL, feedName string, externalLocationID int, delay time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		baseURL:  baseURL,
		feedName: feedName,
		location: externalLocationID,
		delay:    delay,
		logger:   logger,
	}
}

// WithRawCopySink hängt einen Sink für Roh-Kopien der Antworten an.
func (f *Fetcher) WithRawCopySink(sink RawCopySink) *Fetcher {
	f.rawCopy = sink
	return f
}

// Name gibt den Feed-Namen zurück.
func (f *Fetcher) Name() string {
	return f.feedName
}

// ExternalLocationID gibt die konfigurierte Location-ID des Feeds zurück.
func (f *Fetcher) ExternalLocationID() int {
	return f.location
}

// Delay gibt die Wartezeit zwischen zwei Pulls zurück.
func (f *Fetcher) Delay() time.Duration {
	return f.delay
}

func (f *Fetcher) url(lang providers.Language) string {
	if lang == providers.LanguageEn {
		return fmt.Sprintf("%s/en/%s.xml", f.baseURL, f.feedName)
	}
	return fmt.Sprintf("%s/%s.xml", f.baseURL, f.feedName)
}

// Fetch holt und dekodiert den aktuellen Snapshot für die angegebene Sprache.
func (f *Fetcher) Fetch(ctx context.Context, lang providers.Language) (*providers.Menu, error) {
	url := f.url(lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if f.rawCopy != nil {
		if err := f.rawCopy.Store(f.feedName, string(lang), data); err != nil {
			f.logger.Warn("Roh-Kopie konnte nicht gespeichert werden",
				zap.String("feed", f.feedName), zap.String("lang", string(lang)), zap.Error(err))
		}
	}

	var plan speiseplan
	if err := xml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("could not deserialize menu: %w", err)
	}

	return convert(&plan), nil
}

// convert überführt das Drahtformat in die normalisierte Menü-Form.
func convert(plan *speiseplan) *providers.Menu {
	menu := &providers.Menu{LocationID: plan.LocationID}
	for _, d := range plan.Days {
		day := providers.Day{Timestamp: d.Timestamp}
		for _, it := range d.Items {
			day.Items = append(day.Items, providers.Item{
				Title:         it.Title,
				SideDishes:    it.Beilagen,
				Pictograms:    it.Piktogramme,
				PriceStudent:  it.Preis1,
				PriceStaff:    it.Preis2,
				PriceGuest:    it.Preis3,
				Kj:            it.Kj,
				Kcal:          it.Kcal,
				Fat:           it.Fett,
				SaturatedFat:  it.Gesfett,
				Carbohydrates: it.Kh,
				Sugar:         it.Zucker,
				Fiber:         it.Ballaststoffe,
				Protein:       it.Eiweiss,
				Salt:          it.Salz,
			})
		}
		menu.Days = append(menu.Days, day)
	}
	return menu
}
