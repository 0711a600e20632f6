package services

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"menu-hand/models"
)

// newTestCatalog öffnet eine frische In-Memory-Datenbank pro Test.
func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	err = db.AutoMigrate(&models.Dish{}, &models.DishAlias{}, &models.Tag{}, &models.Location{},
		&models.Occurrence{}, &models.OccurrenceTag{}, &models.OccurrenceSideDish{},
		&models.ConfidenceSuggestion{})
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewCatalog(db, zap.NewNop())
}

func strPtr(s string) *string { return &s }

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return count
}

func TestResolveCreatesAndRoundTrips(t *testing.T) {
	catalog := newTestCatalog(t)
	resolver := NewResolver(catalog, testParser(), 50, 3, zap.NewNop())

	title := "Currywurst (S,R) mit Pommes"
	first, err := resolver.Resolve(title, strPtr("Curry sausage with fries"), true)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.Outcome != OutcomeCreated {
		t.Fatalf("first outcome = %v, want OutcomeCreated", first.Outcome)
	}
	if first.Draft != nil {
		t.Fatalf("draft on empty catalog, want none")
	}

	dish, err := catalog.DishByName("Currywurst mit Pommes")
	if err != nil || dish == nil {
		t.Fatalf("canonical dish missing: %v", err)
	}
	if dish.NameEn == nil || *dish.NameEn != "Curry sausage with fries" {
		t.Errorf("secondary name = %v", dish.NameEn)
	}

	// Zweite Auflösung desselben Titels trifft den Alias, keine neuen Zeilen.
	second, err := resolver.Resolve(title, nil, true)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Outcome != OutcomeAlias {
		t.Errorf("second outcome = %v, want OutcomeAlias", second.Outcome)
	}
	if second.DishID != first.DishID {
		t.Errorf("dish id changed between resolves")
	}
	if n := countRows(t, catalog.DB, &models.Dish{}); n != 1 {
		t.Errorf("dish count = %d, want 1", n)
	}
	if n := countRows(t, catalog.DB, &models.DishAlias{}); n != 1 {
		t.Errorf("alias count = %d, want 1", n)
	}
}

func TestResolveCanonicalNameAddsAlias(t *testing.T) {
	catalog := newTestCatalog(t)
	resolver := NewResolver(catalog, testParser(), 50, 3, zap.NewNop())

	dish, err := catalog.InsertDish("Currywurst mit Pommes", nil)
	if err != nil {
		t.Fatalf("seeding dish: %v", err)
	}

	// Neue Schreibweise, aber der extrahierte Name trifft das bekannte Gericht.
	result, err := resolver.Resolve("Currywurst mit Pommes (S)", nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Outcome != OutcomeCanonical {
		t.Errorf("outcome = %v, want OutcomeCanonical", result.Outcome)
	}
	if result.DishID != dish.ID {
		t.Errorf("resolved to wrong dish")
	}

	alias, err := catalog.AliasByNormalizedName("currywurst pommes")
	if err != nil || alias == nil {
		t.Fatalf("alias not created: %v", err)
	}
	if alias.DishID != dish.ID {
		t.Errorf("alias points to %s, want %s", alias.DishID, dish.ID)
	}
	if n := countRows(t, catalog.DB, &models.Dish{}); n != 1 {
		t.Errorf("dish count = %d, want 1", n)
	}
}

func TestResolveUnknownDishOpensDraft(t *testing.T) {
	catalog := newTestCatalog(t)
	resolver := NewResolver(catalog, testParser(), 1, 3, zap.NewNop())

	seeded, err := catalog.InsertDish("Pizza Salami", nil)
	if err != nil {
		t.Fatalf("seeding dish: %v", err)
	}
	if err := catalog.InsertAlias("Pizza Salami (Wz)", "pizza salami", seeded.ID); err != nil {
		t.Fatalf("seeding alias: %v", err)
	}

	result, err := resolver.Resolve("Pizza Prosciutto (Wz)", nil, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %v, want OutcomeCreated", result.Outcome)
	}
	if result.DishID == seeded.ID {
		t.Fatalf("provisional dish reused the seeded id")
	}
	if result.Draft == nil {
		t.Fatalf("no draft despite similar alias in catalog")
	}
	if result.Draft.DishID != result.DishID {
		t.Errorf("draft dish id mismatch")
	}
	if result.Draft.AliasText != "Pizza Prosciutto (Wz)" {
		t.Errorf("draft alias text = %q", result.Draft.AliasText)
	}
	if len(result.Draft.Candidates) == 0 || result.Draft.Candidates[0].Name != "pizza salami" {
		t.Errorf("candidates = %v, want pizza salami first", result.Draft.Candidates)
	}
	if len(result.Draft.Candidates) > 3 {
		t.Errorf("candidate list longer than limit: %d", len(result.Draft.Candidates))
	}
}

func TestResolveSideDishNeverDrafts(t *testing.T) {
	catalog := newTestCatalog(t)
	resolver := NewResolver(catalog, testParser(), 1, 3, zap.NewNop())

	seeded, err := catalog.InsertDish("Pommes frites", nil)
	if err != nil {
		t.Fatalf("seeding dish: %v", err)
	}
	if err := catalog.InsertAlias("Pommes frites", "pommes frites", seeded.ID); err != nil {
		t.Fatalf("seeding alias: %v", err)
	}

	result, err := resolver.Resolve("Pommes rot-weiß", nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("outcome = %v, want OutcomeCreated", result.Outcome)
	}
	if result.Draft != nil {
		t.Errorf("side dish resolution produced a draft")
	}
}
