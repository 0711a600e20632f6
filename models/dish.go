package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dish ist der kanonische Identitätsdatensatz eines Gerichts.
// NameDe ist der kanonische Name (Primärsprache), NameEn optional.
type Dish struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NameDe string  `json:"name_de" gorm:"uniqueIndex;not null"`
	NameEn *string `json:"name_en,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Dish) TableName() string {
	return "dishes"
}

func (d *Dish) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
