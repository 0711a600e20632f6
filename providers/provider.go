package providers

import (
	"context"
	"time"
)

// Language wählt den Sprach-Feed eines Endpunkts aus.
type Language string

const (
	LanguageDe Language = "de"
	LanguageEn Language = "en"
)

// Provider ist das Interface, das jede Feed-Quelle implementieren muss.
// Ein Provider liefert Snapshots für genau einen Standort in beiden Sprachen.
type Provider interface {
	// Fetch holt den aktuellen Menü-Snapshot für die angegebene Sprache.
	Fetch(ctx context.Context, lang Language) (*Menu, error)

	// Name gibt den eindeutigen Namen des Feeds zurück (z.B. "mensa-sued").
	Name() string

	// ExternalLocationID gibt die Location-ID des Feeds zurück.
	ExternalLocationID() int

	// Delay gibt die Wartezeit zwischen zwei Pulls für diesen Feed zurück.
	Delay() time.Duration
}

// Menu ist die normalisierte Form eines Feed-Snapshots.
// Die Drahtformat-Details (XML-Elemente des max-manager-Feeds) bleiben im
// jeweiligen Provider; der Reconciler sieht nur diese Form.
type Menu struct {
	LocationID int
	Days       []Day
}

// Day ist ein Tag des Speiseplans, identifiziert über den Feed-Timestamp.
type Day struct {
	Timestamp int64
	Items     []Item
}

// Item ist ein einzelnes Gericht eines Tages. Alle Felder sind rohe
// Feed-Strings; Parsen und Normalisieren passiert im Parser.
type Item struct {
	Title      *string
	SideDishes string
	Pictograms string

	PriceStudent string
	PriceStaff   string
	PriceGuest   string

	Kj            string
	Kcal          string
	Fat           string
	SaturatedFat  string
	Carbohydrates string
	Sugar         string
	Fiber         string
	Protein       string
	Salt          string
}
