package services

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mapping hält die selten wechselnden Lookup-Tabellen (Locations und
// Tag-Vokabular) im Speicher. Es wird per Referenz an alle Worker gereicht
// und periodisch unter seinem eigenen Lock neu geladen; Leser tolerieren
// das kurze Staleness-Fenster zwischen zwei Refreshes.
type Mapping struct {
	mu      sync.RWMutex
	catalog *Catalog
	logger  *zap.Logger

	locations map[int]uuid.UUID
	tags      map[string]struct{}
}

// NewMapping erstellt eine leere Mapping-Instanz; Refresh lädt die Daten.
func NewMapping(catalog *Catalog, logger *zap.Logger) *Mapping {
	return &Mapping{
		catalog:   catalog,
		logger:    logger,
		locations: map[int]uuid.UUID{},
		tags:      map[string]struct{}{},
	}
}

// Refresh lädt Locations und Tag-Vokabular neu aus der Datenbank.
func (m *Mapping) Refresh() error {
	locations, err := m.catalog.Locations()
	if err != nil {
		return fmt.Errorf("loading locations: %w", err)
	}
	tags, err := m.catalog.Tags()
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}

	locationMap := make(map[int]uuid.UUID, len(locations))
	for _, l := range locations {
		locationMap[l.ExternalID] = l.ID
	}
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t.Key] = struct{}{}
	}

	m.mu.Lock()
	m.locations = locationMap
	m.tags = tagSet
	m.mu.Unlock()

	m.logger.Info("Lookup-Tabellen neu geladen",
		zap.Int("locations", len(locationMap)), zap.Int("tags", len(tagSet)))
	return nil
}

// LocationByExternalID löst die Location-ID des Feeds auf.
func (m *Mapping) LocationByExternalID(externalID int) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.locations[externalID]
	return id, ok
}

// IsTagValid prüft, ob ein Schlüssel zum bekannten Vokabular gehört.
func (m *Mapping) IsTagValid(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tags[key]
	return ok
}
