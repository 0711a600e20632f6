package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"menu-hand/models"
)

// Action ist die Entscheidung eines Reviewers über ein unbestätigtes Gericht.
type Action string

const (
	// ActionAccept übernimmt Kandidat i: die Occurrence und der neue Alias
	// werden auf das bestehende Gericht umgehängt, das provisorische gelöscht.
	ActionAccept Action = "accept"
	// ActionInsertNew bestätigt das provisorische Gericht als eigenständig.
	ActionInsertNew Action = "new"
	// ActionDiscard verwirft den gesamten provisorischen Datensatz.
	ActionDiscard Action = "discard"
)

// Decision ist eine eingehende Reviewer-Entscheidung.
type Decision struct {
	OccurrenceID uuid.UUID
	Action       Action
	Candidate    int

	reply chan error
}

// Notifier benachrichtigt den Review-Kanal über eine neue offene Anfrage.
// Die Implementierung darf nicht blockieren (fire-and-forget).
type Notifier interface {
	Notify(s *models.ConfidenceSuggestion)
}

// SuggestionService persistiert offene Review-Anfragen und wendet
// Reviewer-Entscheidungen an. Entscheidungen laufen über einen expliziten
// Kanal und werden von genau einer Handler-Goroutine konsumiert.
type SuggestionService struct {
	catalog   *Catalog
	notifier  Notifier
	logger    *zap.Logger
	decisions chan Decision
}

// NewSuggestionService erstellt den Suggestion-Workflow.
func NewSuggestionService(catalog *Catalog, notifier Notifier, logger *zap.Logger) *SuggestionService {
	return &SuggestionService{
		catalog:   catalog,
		notifier:  notifier,
		logger:    logger,
		decisions: make(chan Decision, 16),
	}
}

// Open persistiert eine Review-Anfrage für die gegebene Occurrence und
// benachrichtigt danach den Reviewer. Die Reihenfolge ist Absicht: ein
// Crash zwischen Insert und Notification hinterlässt wiederherstellbaren
// Zustand. Pro Occurrence darf nur eine Anfrage offen sein.
func (s *SuggestionService) Open(draft *SuggestionDraft, occurrenceID uuid.UUID) error {
	existing, err := s.catalog.SuggestionByOccurrence(occurrenceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("suggestion for occurrence %s already pending", occurrenceID)
	}

	suggestion := &models.ConfidenceSuggestion{
		OccurrenceID: occurrenceID,
		DishID:       draft.DishID,
		DishAlias:    draft.AliasText,
	}
	if err := suggestion.SetRankedCandidates(draft.Candidates); err != nil {
		return err
	}
	if err := s.catalog.InsertSuggestion(suggestion); err != nil {
		return err
	}

	s.notifier.Notify(suggestion)
	return nil
}

// Submit reicht eine Entscheidung ein und wartet auf das Ergebnis der
// Verarbeitung.
func (s *SuggestionService) Submit(ctx context.Context, occurrenceID uuid.UUID, action Action, candidate int) error {
	d := Decision{
		OccurrenceID: occurrenceID,
		Action:       action,
		Candidate:    candidate,
		reply:        make(chan error, 1),
	}
	select {
	case s.decisions <- d:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-d.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run konsumiert eingehende Entscheidungen bis zum Shutdown.
func (s *SuggestionService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.decisions:
			err := s.handle(d)
			if err != nil {
				s.logger.Error("Reviewer-Entscheidung fehlgeschlagen",
					zap.String("occurrence", d.OccurrenceID.String()),
					zap.String("action", string(d.Action)),
					zap.Error(err))
			}
			d.reply <- err
		}
	}
}

// handle wendet eine einzelne Entscheidung an. Der Suggestion-Datensatz
// wird in jedem behandelten Fall gelöscht; eine entschiedene Anfrage kommt
// nie wieder.
func (s *SuggestionService) handle(d Decision) error {
	return s.catalog.WithDishLock(func() error {
		suggestion, err := s.catalog.SuggestionByOccurrence(d.OccurrenceID)
		if err != nil {
			return err
		}
		if suggestion == nil {
			return fmt.Errorf("no pending suggestion for occurrence %s", d.OccurrenceID)
		}

		switch d.Action {
		case ActionAccept:
			if err := s.accept(suggestion, d.Candidate); err != nil {
				return err
			}
		case ActionInsertNew:
			// Das provisorische Gericht bleibt als eigenständiges bestehen.
		case ActionDiscard:
			// Der Reviewer hat den gesamten Datensatz verworfen: Occurrence,
			// Alias und provisorisches Gericht werden aufgeräumt.
			if err := s.catalog.DeleteOccurrence(suggestion.OccurrenceID); err != nil {
				return err
			}
			if err := s.catalog.DeleteAlias(suggestion.DishAlias); err != nil {
				return err
			}
			if err := s.catalog.DeleteDish(suggestion.DishID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown action %q", d.Action)
		}

		return s.catalog.DeleteSuggestion(d.OccurrenceID)
	})
}

// accept übernimmt Kandidat i. Danach hat das provisorische Gericht aus
// Katalogsicht nie existiert.
func (s *SuggestionService) accept(suggestion *models.ConfidenceSuggestion, candidate int) error {
	candidates, err := suggestion.RankedCandidates()
	if err != nil {
		return err
	}
	if candidate < 0 || candidate >= len(candidates) {
		return fmt.Errorf("candidate index %d out of range (have %d)", candidate, len(candidates))
	}

	alias, err := s.catalog.AliasByNormalizedName(candidates[candidate].Name)
	if err != nil {
		return err
	}
	if alias == nil {
		return fmt.Errorf("candidate alias %q no longer exists", candidates[candidate].Name)
	}

	if err := s.catalog.UpdateOccurrenceDish(suggestion.OccurrenceID, alias.DishID); err != nil {
		return err
	}
	if err := s.catalog.RepointAlias(suggestion.DishAlias, alias.DishID); err != nil {
		return err
	}
	return s.catalog.DeleteDish(suggestion.DishID)
}
