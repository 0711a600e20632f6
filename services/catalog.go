package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"menu-hand/models"
)

// Catalog bündelt alle Persistenz-Operationen des Kerns auf der
// Gericht-/Occurrence-Datenbank. dishMu serialisiert Dish-/Alias-Schreiber:
// der Reconciler-Pfad und der asynchrone Decision-Handler laufen auf
// verschiedenen Goroutinen und dürfen sich bei Identitätsänderungen nicht
// überholen.
type Catalog struct {
	DB     *gorm.DB
	Logger *zap.Logger

	dishMu sync.Mutex
}

// NewCatalog erstellt einen Catalog über der gegebenen Datenbank.
func NewCatalog(db *gorm.DB, logger *zap.Logger) *Catalog {
	return &Catalog{DB: db, Logger: logger}
}

// WithDishLock führt fn unter dem Dish-Schreib-Lock aus.
func (c *Catalog) WithDishLock(fn func() error) error {
	c.dishMu.Lock()
	defer c.dishMu.Unlock()
	return fn()
}

// DishByName sucht ein Gericht über seinen kanonischen Namen.
// Kein Treffer ist kein Fehler, sondern (nil, nil).
func (c *Catalog) DishByName(name string) (*models.Dish, error) {
	var dish models.Dish
	err := c.DB.Where("name_de = ?", name).First(&dish).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dish, nil
}

// AliasByNormalizedName sucht einen Alias über den Lookup-Schlüssel.
func (c *Catalog) AliasByNormalizedName(key string) (*models.DishAlias, error) {
	var alias models.DishAlias
	err := c.DB.Where("normalized_alias_name = ?", key).First(&alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

// InsertDish legt ein Gericht an, insert-if-absent über den kanonischen
// Namen. Gibt in beiden Fällen den gespeicherten Datensatz zurück.
func (c *Catalog) InsertDish(nameDe string, nameEn *string) (*models.Dish, error) {
	dish := models.Dish{NameDe: nameDe, NameEn: nameEn}
	result := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_de"}},
		DoNothing: true,
	}).Create(&dish)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return c.DishByName(nameDe)
	}
	return &dish, nil
}

// InsertAlias legt einen Alias für ein Gericht an (idempotent).
func (c *Catalog) InsertAlias(aliasText, normalized string, dishID uuid.UUID) error {
	alias := models.DishAlias{
		AliasName:           aliasText,
		NormalizedAliasName: normalized,
		DishID:              dishID,
	}
	return c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias_name"}},
		DoNothing: true,
	}).Create(&alias).Error
}

// RepointAlias hängt einen Alias an ein anderes Gericht um.
func (c *Catalog) RepointAlias(aliasText string, dishID uuid.UUID) error {
	return c.DB.Model(&models.DishAlias{}).
		Where("alias_name = ?", aliasText).
		Update("dish_id", dishID).Error
}

// DeleteDish entfernt einen (provisorischen) Gericht-Datensatz.
func (c *Catalog) DeleteDish(id uuid.UUID) error {
	return c.DB.Delete(&models.Dish{}, "id = ?", id).Error
}

// DeleteAlias entfernt einen Alias über seinen Text.
func (c *Catalog) DeleteAlias(aliasText string) error {
	return c.DB.Delete(&models.DishAlias{}, "alias_name = ?", aliasText).Error
}

// AliasIndex lädt alle Aliase für den Fuzzy-Abgleich.
func (c *Catalog) AliasIndex() ([]models.DishAlias, error) {
	var aliases []models.DishAlias
	err := c.DB.Find(&aliases).Error
	return aliases, err
}

// OccurrencesSince lädt alle Occurrences eines Standorts ab dem gegebenen
// Datum, inklusive Tags. Damit wird der Tages-Cache eines Workers geprimt.
func (c *Catalog) OccurrencesSince(locationID uuid.UUID, from time.Time) ([]models.Occurrence, error) {
	var occurrences []models.Occurrence
	err := c.DB.Preload("Tags").
		Where("location_id = ? AND date >= ?", locationID, from).
		Find(&occurrences).Error
	return occurrences, err
}

// InsertOccurrence legt eine neue Occurrence an.
func (c *Catalog) InsertOccurrence(o *models.Occurrence) error {
	return c.DB.Omit("Tags").Create(o).Error
}

// occurrenceContentColumns sind die Felder, die der Reconciler bei einer
// Inhaltsänderung in place aktualisiert. Explizite Liste, damit auch
// NULL-Werte geschrieben werden.
var occurrenceContentColumns = []string{
	"price_student", "price_staff", "price_guest",
	"kj", "kcal", "fat", "saturated_fat", "carbohydrates",
	"sugar", "fiber", "protein", "salt",
}

// UpdateOccurrenceContent schreibt die Inhalts-Felder einer Occurrence neu.
func (c *Catalog) UpdateOccurrenceContent(o *models.Occurrence) error {
	return c.DB.Model(&models.Occurrence{}).
		Where("id = ?", o.ID).
		Select(occurrenceContentColumns).
		Updates(o).Error
}

// UpdateOccurrenceDish hängt eine Occurrence an ein anderes Gericht um.
func (c *Catalog) UpdateOccurrenceDish(occurrenceID, dishID uuid.UUID) error {
	return c.DB.Model(&models.Occurrence{}).
		Where("id = ?", occurrenceID).
		Update("dish_id", dishID).Error
}

// RetireOccurrence setzt den Rückzugs-Zeitstempel genau einmal; eine
// bereits zurückgezogene Occurrence wird nie wieder angefasst.
func (c *Catalog) RetireOccurrence(occurrenceID uuid.UUID, at time.Time) error {
	return c.DB.Model(&models.Occurrence{}).
		Where("id = ? AND not_available_after IS NULL", occurrenceID).
		Update("not_available_after", at).Error
}

// DeleteOccurrence entfernt eine Occurrence samt Tags und Beilagen-Links.
func (c *Catalog) DeleteOccurrence(occurrenceID uuid.UUID) error {
	if err := c.DB.Delete(&models.OccurrenceTag{}, "occurrence_id = ?", occurrenceID).Error; err != nil {
		return err
	}
	if err := c.DB.Delete(&models.OccurrenceSideDish{}, "occurrence_id = ?", occurrenceID).Error; err != nil {
		return err
	}
	return c.DB.Delete(&models.Occurrence{}, "id = ?", occurrenceID).Error
}

// InsertOccurrenceTag verknüpft eine Occurrence mit einem Tag (idempotent).
func (c *Catalog) InsertOccurrenceTag(occurrenceID uuid.UUID, tagKey string) error {
	tag := models.OccurrenceTag{OccurrenceID: occurrenceID, TagKey: tagKey}
	return c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error
}

// DeleteOccurrenceTag löst eine Tag-Verknüpfung.
func (c *Catalog) DeleteOccurrenceTag(occurrenceID uuid.UUID, tagKey string) error {
	return c.DB.Delete(&models.OccurrenceTag{},
		"occurrence_id = ? AND tag_key = ?", occurrenceID, tagKey).Error
}

// InsertSideDish verknüpft eine Occurrence mit einem Beilagen-Gericht.
func (c *Catalog) InsertSideDish(occurrenceID, dishID uuid.UUID) error {
	link := models.OccurrenceSideDish{OccurrenceID: occurrenceID, DishID: dishID}
	return c.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

// InsertSuggestion persistiert eine offene Review-Anfrage.
func (c *Catalog) InsertSuggestion(s *models.ConfidenceSuggestion) error {
	return c.DB.Create(s).Error
}

// SuggestionByOccurrence lädt die offene Review-Anfrage einer Occurrence.
func (c *Catalog) SuggestionByOccurrence(occurrenceID uuid.UUID) (*models.ConfidenceSuggestion, error) {
	var suggestion models.ConfidenceSuggestion
	err := c.DB.Where("occurrence_id = ?", occurrenceID).First(&suggestion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// DeleteSuggestion entfernt eine behandelte Review-Anfrage.
func (c *Catalog) DeleteSuggestion(occurrenceID uuid.UUID) error {
	return c.DB.Delete(&models.ConfidenceSuggestion{}, "occurrence_id = ?", occurrenceID).Error
}

// PendingSuggestions lädt alle offenen Review-Anfragen.
func (c *Catalog) PendingSuggestions() ([]models.ConfidenceSuggestion, error) {
	var suggestions []models.ConfidenceSuggestion
	err := c.DB.Order("created_at asc").Find(&suggestions).Error
	return suggestions, err
}

// Locations lädt die Location-Tabelle.
func (c *Catalog) Locations() ([]models.Location, error) {
	var locations []models.Location
	err := c.DB.Find(&locations).Error
	return locations, err
}

// Tags lädt das Tag-Vokabular.
func (c *Catalog) Tags() ([]models.Tag, error) {
	var tags []models.Tag
	err := c.DB.Find(&tags).Error
	return tags, err
}
