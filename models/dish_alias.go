package models

import "github.com/google/uuid"

// DishAlias ist eine Oberflächen-Schreibweise eines Gerichtnamens.
// NormalizedAliasName ist der bereinigte Lookup-Schlüssel, über den jeder
// Pull zuerst auflöst; viele Aliase können auf dasselbe Gericht zeigen.
type DishAlias struct {
	AliasName           string    `json:"alias_name" gorm:"primaryKey"`
	NormalizedAliasName string    `json:"normalized_alias_name" gorm:"index;not null"`
	DishID              uuid.UUID `json:"dish_id" gorm:"type:uuid;index;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (DishAlias) TableName() string {
	return "dish_aliases"
}
