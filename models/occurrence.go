package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Occurrence ist ein Gericht an einem Standort an einem Datum, mit
// Preis-, Nährwert- und Tag-Fakten. Pro (Location, Datum, Gericht) gibt es
// höchstens eine aktive Occurrence (NotAvailableAfter == nil); einmal
// gesetzt wird NotAvailableAfter nie zurückgenommen.
type Occurrence struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DishID     uuid.UUID `json:"dish_id" gorm:"type:uuid;index;not null"`
	LocationID uuid.UUID `json:"location_id" gorm:"type:uuid;index;not null"`
	Date       time.Time `json:"date" gorm:"type:date;index;not null"`

	PriceStudent *int `json:"price_student,omitempty"`
	PriceStaff   *int `json:"price_staff,omitempty"`
	PriceGuest   *int `json:"price_guest,omitempty"`

	Kj            *int `json:"kj,omitempty"`
	Kcal          *int `json:"kcal,omitempty"`
	Fat           *int `json:"fat,omitempty"`
	SaturatedFat  *int `json:"saturated_fat,omitempty"`
	Carbohydrates *int `json:"carbohydrates,omitempty"`
	Sugar         *int `json:"sugar,omitempty"`
	Fiber         *int `json:"fiber,omitempty"`
	Protein       *int `json:"protein,omitempty"`
	Salt          *int `json:"salt,omitempty"`

	NotAvailableAfter *time.Time `json:"not_available_after,omitempty" gorm:"index"`

	Tags []OccurrenceTag `json:"tags,omitempty" gorm:"foreignKey:OccurrenceID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Occurrence) TableName() string {
	return "occurrences"
}

func (o *Occurrence) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Active meldet, ob die Occurrence noch angeboten wird.
func (o *Occurrence) Active() bool {
	return o.NotAvailableAfter == nil
}

// TagKeys gibt die Tag-Schlüssel der Occurrence als Slice zurück.
func (o *Occurrence) TagKeys() []string {
	keys := make([]string, 0, len(o.Tags))
	for _, t := range o.Tags {
		keys = append(keys, t.TagKey)
	}
	return keys
}

// OccurrenceTag verknüpft eine Occurrence mit einem Vokabular-Tag.
type OccurrenceTag struct {
	OccurrenceID uuid.UUID `json:"occurrence_id" gorm:"type:uuid;primaryKey"`
	TagKey       string    `json:"tag_key" gorm:"primaryKey"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (OccurrenceTag) TableName() string {
	return "occurrence_tags"
}

// OccurrenceSideDish verknüpft eine Occurrence mit einem Beilagen-Gericht.
type OccurrenceSideDish struct {
	OccurrenceID uuid.UUID `json:"occurrence_id" gorm:"type:uuid;primaryKey"`
	DishID       uuid.UUID `json:"dish_id" gorm:"type:uuid;primaryKey"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (OccurrenceSideDish) TableName() string {
	return "occurrence_side_dishes"
}
