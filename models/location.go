package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Location bildet die Location-ID des Feeds auf eine interne Identität ab.
type Location struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string    `json:"name" gorm:"not null"`
	ExternalID int       `json:"external_id" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Location) TableName() string {
	return "locations"
}

func (l *Location) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
