package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"menu-hand/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (r *recordingNotifier) Notify(s *models.ConfidenceSuggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s.OccurrenceID)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type suggestionHarness struct {
	catalog  *Catalog
	service  *SuggestionService
	notifier *recordingNotifier

	existingDish    *models.Dish
	provisionalDish *models.Dish
	occurrence      *models.Occurrence
}

// newSuggestionHarness baut die typische Ausgangslage einer Review:
// ein etabliertes Gericht mit Alias, ein provisorisches Gericht mit eigener
// Occurrence und eine offene Anfrage mit dem etablierten als Kandidat.
func newSuggestionHarness(t *testing.T) *suggestionHarness {
	t.Helper()
	catalog := newTestCatalog(t)
	notifier := &recordingNotifier{}
	service := NewSuggestionService(catalog, notifier, zap.NewNop())

	existing, err := catalog.InsertDish("Pizza Salami", nil)
	if err != nil {
		t.Fatalf("seeding existing dish: %v", err)
	}
	if err := catalog.InsertAlias("Pizza Salami (Wz)", "pizza salami", existing.ID); err != nil {
		t.Fatalf("seeding alias: %v", err)
	}

	provisional, err := catalog.InsertDish("Pizza Salame", nil)
	if err != nil {
		t.Fatalf("seeding provisional dish: %v", err)
	}
	if err := catalog.InsertAlias("Pizza Salame (Wz)", "pizza salame", provisional.ID); err != nil {
		t.Fatalf("seeding provisional alias: %v", err)
	}

	location := models.Location{Name: "mensa-sued", ExternalID: 1}
	if err := catalog.DB.Create(&location).Error; err != nil {
		t.Fatalf("seeding location: %v", err)
	}
	occurrence := &models.Occurrence{
		DishID:     provisional.ID,
		LocationID: location.ID,
		Date:       time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	if err := catalog.InsertOccurrence(occurrence); err != nil {
		t.Fatalf("seeding occurrence: %v", err)
	}

	draft := &SuggestionDraft{
		DishID:        provisional.ID,
		AliasText:     "Pizza Salame (Wz)",
		ExtractedName: "Pizza Salame",
		Candidates:    []models.RankedCandidate{{Score: 90, Name: "pizza salami"}},
	}
	if err := service.Open(draft, occurrence.ID); err != nil {
		t.Fatalf("opening suggestion: %v", err)
	}

	return &suggestionHarness{
		catalog:         catalog,
		service:         service,
		notifier:        notifier,
		existingDish:    existing,
		provisionalDish: provisional,
		occurrence:      occurrence,
	}
}

func (h *suggestionHarness) submit(t *testing.T, action Action, candidate int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.service.Run(ctx)
	return h.service.Submit(ctx, h.occurrence.ID, action, candidate)
}

func TestOpenPersistsBeforeNotifyAndRejectsDuplicates(t *testing.T) {
	h := newSuggestionHarness(t)

	if h.notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", h.notifier.count())
	}
	stored, err := h.catalog.SuggestionByOccurrence(h.occurrence.ID)
	if err != nil || stored == nil {
		t.Fatalf("suggestion not persisted: %v", err)
	}
	candidates, err := stored.RankedCandidates()
	if err != nil || len(candidates) != 1 || candidates[0].Name != "pizza salami" {
		t.Errorf("stored candidates = %v (%v)", candidates, err)
	}

	// Zweite Anfrage für dieselbe Occurrence wird abgelehnt.
	err = h.service.Open(&SuggestionDraft{
		DishID:    h.provisionalDish.ID,
		AliasText: "Pizza Salame (Wz)",
	}, h.occurrence.ID)
	if err == nil {
		t.Errorf("duplicate suggestion accepted")
	}
	if h.notifier.count() != 1 {
		t.Errorf("duplicate triggered a notification")
	}
}

func TestDecisionAcceptMergesProvisionalDish(t *testing.T) {
	h := newSuggestionHarness(t)

	if err := h.submit(t, ActionAccept, 0); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var occurrence models.Occurrence
	if err := h.catalog.DB.First(&occurrence, "id = ?", h.occurrence.ID).Error; err != nil {
		t.Fatalf("loading occurrence: %v", err)
	}
	if occurrence.DishID != h.existingDish.ID {
		t.Errorf("occurrence dish = %s, want existing dish", occurrence.DishID)
	}

	// Der neue Alias zeigt jetzt auf das etablierte Gericht.
	alias, err := h.catalog.AliasByNormalizedName("pizza salame")
	if err != nil || alias == nil {
		t.Fatalf("repointed alias missing: %v", err)
	}
	if alias.DishID != h.existingDish.ID {
		t.Errorf("alias dish = %s, want existing dish", alias.DishID)
	}

	// Das provisorische Gericht ist verschwunden, die Anfrage erledigt.
	dish, err := h.catalog.DishByName("Pizza Salame")
	if err != nil {
		t.Fatalf("dish lookup: %v", err)
	}
	if dish != nil {
		t.Errorf("provisional dish still present")
	}
	if s, _ := h.catalog.SuggestionByOccurrence(h.occurrence.ID); s != nil {
		t.Errorf("suggestion not cleaned up")
	}
}

func TestDecisionInsertNewKeepsDish(t *testing.T) {
	h := newSuggestionHarness(t)

	if err := h.submit(t, ActionInsertNew, 0); err != nil {
		t.Fatalf("new: %v", err)
	}

	dish, err := h.catalog.DishByName("Pizza Salame")
	if err != nil || dish == nil {
		t.Fatalf("provisional dish gone after confirmation: %v", err)
	}
	var occurrence models.Occurrence
	if err := h.catalog.DB.First(&occurrence, "id = ?", h.occurrence.ID).Error; err != nil {
		t.Fatalf("loading occurrence: %v", err)
	}
	if occurrence.DishID != h.provisionalDish.ID {
		t.Errorf("occurrence moved away from confirmed dish")
	}
	if s, _ := h.catalog.SuggestionByOccurrence(h.occurrence.ID); s != nil {
		t.Errorf("suggestion not cleaned up")
	}
}

func TestDecisionDiscardRemovesProvisionalRecords(t *testing.T) {
	h := newSuggestionHarness(t)

	if err := h.submit(t, ActionDiscard, 0); err != nil {
		t.Fatalf("discard: %v", err)
	}

	if n := countRows(t, h.catalog.DB, &models.Occurrence{}); n != 0 {
		t.Errorf("occurrence count = %d, want 0", n)
	}
	if alias, _ := h.catalog.AliasByNormalizedName("pizza salame"); alias != nil {
		t.Errorf("provisional alias still present")
	}
	if dish, _ := h.catalog.DishByName("Pizza Salame"); dish != nil {
		t.Errorf("provisional dish still present")
	}
	// Das etablierte Gericht bleibt unberührt.
	if dish, _ := h.catalog.DishByName("Pizza Salami"); dish == nil {
		t.Errorf("existing dish was removed")
	}
	if s, _ := h.catalog.SuggestionByOccurrence(h.occurrence.ID); s != nil {
		t.Errorf("suggestion not cleaned up")
	}
}

func TestDecisionErrorsSurfaceToCaller(t *testing.T) {
	h := newSuggestionHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.service.Run(ctx)

	// Unbekannte Occurrence
	if err := h.service.Submit(ctx, uuid.New(), ActionAccept, 0); err == nil {
		t.Errorf("unknown occurrence accepted")
	}
	// Kandidaten-Index außerhalb der Liste
	if err := h.service.Submit(ctx, h.occurrence.ID, ActionAccept, 5); err == nil {
		t.Errorf("out of range candidate accepted")
	}
	// Unbekannte Aktion
	if err := h.service.Submit(ctx, h.occurrence.ID, Action("maybe"), 0); err == nil {
		t.Errorf("unknown action accepted")
	}
	// Nach den Fehlern ist die Anfrage weiterhin offen und entscheidbar.
	if err := h.service.Submit(ctx, h.occurrence.ID, ActionInsertNew, 0); err != nil {
		t.Errorf("valid decision after failures: %v", err)
	}
}
