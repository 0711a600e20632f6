package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RankedCandidate ist ein Fuzzy-Match-Kandidat für ein unbestätigtes Gericht.
// Name ist der normalisierte Alias-Schlüssel des Kandidaten.
type RankedCandidate struct {
	Score int    `json:"score"`
	Name  string `json:"name"`
}

// ConfidenceSuggestion ist eine offene Review-Anfrage für ein Gericht, das
// der Resolver nicht deterministisch zuordnen konnte. Sie existiert nur
// zwischen provisorischem Dish-Insert und der Reviewer-Entscheidung und ist
// der einzige persistierte Beleg dafür, dass ein Gericht unbestätigt ist.
type ConfidenceSuggestion struct {
	OccurrenceID uuid.UUID `json:"occurrence_id" gorm:"type:uuid;primaryKey"`
	CreatedAt    time.Time `json:"created_at"`

	DishID     uuid.UUID      `json:"dish_id" gorm:"type:uuid;not null"`
	DishAlias  string         `json:"dish_alias" gorm:"not null"`
	Candidates datatypes.JSON `json:"candidates" gorm:"type:jsonb"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ConfidenceSuggestion) TableName() string {
	return "confidence_suggestions"
}

// RankedCandidates dekodiert die gespeicherte Kandidatenliste.
func (s *ConfidenceSuggestion) RankedCandidates() ([]RankedCandidate, error) {
	var candidates []RankedCandidate
	if len(s.Candidates) == 0 {
		return candidates, nil
	}
	err := json.Unmarshal(s.Candidates, &candidates)
	return candidates, err
}

// SetRankedCandidates kodiert die Kandidatenliste als JSON-Spalte.
func (s *ConfidenceSuggestion) SetRankedCandidates(candidates []RankedCandidate) error {
	raw, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	s.Candidates = raw
	return nil
}
