package models

// Tag ist ein Eintrag des bekannten Tag-/Allergen-Vokabulars.
// Nur Schlüssel aus dieser Tabelle werden als Occurrence-Tags akzeptiert.
type Tag struct {
	Key       string `json:"key" gorm:"primaryKey"`
	Name      string `json:"name"`
	IsAllergy bool   `json:"is_allergy"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Tag) TableName() string {
	return "tags"
}
