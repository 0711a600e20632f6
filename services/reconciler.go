package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"menu-hand/models"
	"menu-hand/providers"
)

// Reconciler gleicht die Item-Listen eines Pulls gegen die bereits
// bekannten Occurrences ab und entscheidet pro Item zwischen Insert,
// Update-in-place, Nichtstun und Rückzug. Jeder Worker besitzt genau einen
// Reconciler; der Tages-Cache wird nie zwischen Workern geteilt.
type Reconciler struct {
	catalog     *Catalog
	resolver    *Resolver
	suggestions *SuggestionService
	parser      *Parser
	mapping     *Mapping
	logger      *zap.Logger
	telemetry   *WorkerTelemetry
	retention   time.Duration

	locationID uuid.UUID
	// known hält die Occurrences der letzten Tage, keyed nach Datum.
	// Einträge älter als das Retention-Fenster fliegen zu Zyklusbeginn
	// aus dem Speicher, nie aus der Datenbank.
	known map[string][]*models.Occurrence
}

// NewReconciler erstellt einen Reconciler für einen Standort.
func NewReconciler(catalog *Catalog, resolver *Resolver, suggestions *SuggestionService,
	parser *Parser, mapping *Mapping, telemetry *WorkerTelemetry,
	retention time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		catalog:     catalog,
		resolver:    resolver,
		suggestions: suggestions,
		parser:      parser,
		mapping:     mapping,
		logger:      logger,
		telemetry:   telemetry,
		retention:   retention,
		known:       map[string][]*models.Occurrence{},
	}
}

// Prime lädt die bekannten Occurrences des Retention-Fensters aus der
// Datenbank in den Tages-Cache. Muss vor dem ersten Zyklus laufen.
func (r *Reconciler) Prime(externalLocationID int) error {
	locationID, ok := r.mapping.LocationByExternalID(externalLocationID)
	if !ok {
		return fmt.Errorf("unknown feed location id %d", externalLocationID)
	}
	r.locationID = locationID

	from := time.Now().UTC().Add(-r.retention).Truncate(24 * time.Hour)
	occurrences, err := r.catalog.OccurrencesSince(locationID, from)
	if err != nil {
		return err
	}
	for i := range occurrences {
		o := &occurrences[i]
		key := DateKey(o.Date)
		r.known[key] = append(r.known[key], o)
	}
	r.logger.Info("Tages-Cache geladen",
		zap.Int("occurrences", len(occurrences)), zap.Int("days", len(r.known)))
	return nil
}

// ReconcileMenus verarbeitet einen Pull beider Sprach-Feeds. Ein nil-Menü
// oder eine fehlende Tagesliste ist ein fataler Fehler für diesen Worker:
// ohne beide Seiten lässt sich der Item-Zip nicht sicher ausrichten.
func (r *Reconciler) ReconcileMenus(primary, secondary *providers.Menu) error {
	if primary == nil || secondary == nil {
		return fmt.Errorf("menu missing: primary=%t secondary=%t", primary == nil, secondary == nil)
	}
	if primary.Days == nil || secondary.Days == nil {
		return fmt.Errorf("menu day list missing: primary=%t secondary=%t",
			primary.Days == nil, secondary.Days == nil)
	}

	r.evictStaleDays()

	if len(primary.Days) != len(secondary.Days) {
		r.logger.Error("Mismatch between primary and secondary menu day count",
			zap.Int("primary", len(primary.Days)), zap.Int("secondary", len(secondary.Days)))
		return nil
	}

	for i := range primary.Days {
		primaryDay, secondaryDay := primary.Days[i], secondary.Days[i]

		if len(primaryDay.Items) != len(secondaryDay.Items) {
			r.logger.Error("Mismatch between primary and secondary item count, skipping day",
				zap.Int64("timestamp", primaryDay.Timestamp),
				zap.Int("primary", len(primaryDay.Items)), zap.Int("secondary", len(secondaryDay.Items)))
			continue
		}
		if primaryDay.Timestamp != secondaryDay.Timestamp {
			r.logger.Error("Timestamp mismatch between primary and secondary day, skipping day",
				zap.Int64("primary", primaryDay.Timestamp), zap.Int64("secondary", secondaryDay.Timestamp))
			continue
		}

		r.reconcileDay(primaryDay, secondaryDay)
		r.telemetry.IncDays()
	}
	return nil
}

// evictStaleDays begrenzt den Speicher des Tages-Caches. ISO-Datums-Keys
// sortieren lexikographisch, der Vergleich reicht.
func (r *Reconciler) evictStaleDays() {
	cutoff := DateKey(time.Now().UTC().Add(-r.retention))
	for key := range r.known {
		if key < cutoff {
			delete(r.known, key)
		}
	}
}

func (r *Reconciler) reconcileDay(primaryDay, secondaryDay providers.Day) {
	date := DateFromTimestamp(primaryDay.Timestamp)
	key := DateKey(date)
	log := r.logger.With(zap.String("date", key))

	if _, exists := r.known[key]; !exists {
		// Erster Pull dieses Tages: es gibt nichts zurückzuziehen.
		r.known[key] = nil
	}

	// Snapshot der aktiven Gerichte des Vortags-Pulls; wird beim Matchen
	// destruktiv konsumiert, der Rest wird zurückgezogen.
	previousPull := map[uuid.UUID]struct{}{}
	for _, o := range r.known[key] {
		if o.Active() {
			previousPull[o.DishID] = struct{}{}
		}
	}

	for i := range primaryDay.Items {
		item, secondaryItem := primaryDay.Items[i], secondaryDay.Items[i]

		if item.Title == nil {
			log.Error("Primary dish title is null, skipping item")
			continue
		}
		if *item.Title == PlaceholderTitle {
			log.Warn("Noticed placeholder item, skipping", zap.String("title", *item.Title))
			continue
		}
		r.telemetry.IncItems()

		resolved, err := r.resolver.Resolve(*item.Title, secondaryItem.Title, true)
		if err != nil {
			log.Error("Gericht konnte nicht aufgelöst werden",
				zap.String("title", *item.Title), zap.Error(err))
			continue
		}
		r.telemetry.CountOutcome(resolved.Outcome)
		delete(previousPull, resolved.DishID)

		if active := r.activeOccurrence(key, resolved.DishID); active != nil {
			r.updateOccurrence(log, item, active)
			continue
		}

		r.insertOccurrence(log, date, key, item, secondaryItem, resolved)
	}

	// Alles, was vor diesem Pull aktiv war und jetzt fehlt, wird weich
	// zurückgezogen. Keine Löschung, keine Wiederbelebung.
	now := time.Now().UTC()
	for dishID := range previousPull {
		occurrence := r.activeOccurrence(key, dishID)
		if occurrence == nil {
			continue
		}
		log.Info("Noticed dish removal, retiring occurrence",
			zap.String("dish", dishID.String()), zap.String("occurrence", occurrence.ID.String()))
		if err := r.catalog.RetireOccurrence(occurrence.ID, now); err != nil {
			log.Error("Occurrence konnte nicht zurückgezogen werden",
				zap.String("occurrence", occurrence.ID.String()), zap.Error(err))
			continue
		}
		occurrence.NotAvailableAfter = &now
		r.telemetry.IncRetired()
	}
}

// activeOccurrence sucht die aktive Occurrence eines Gerichts an einem Tag.
func (r *Reconciler) activeOccurrence(key string, dishID uuid.UUID) *models.Occurrence {
	for _, o := range r.known[key] {
		if o.DishID == dishID && o.Active() {
			return o
		}
	}
	return nil
}

// updateOccurrence prüft ein bereits bekanntes Item auf Inhalts- und
// Tag-Änderungen. Ohne Unterschied passiert kein einziger Write.
func (r *Reconciler) updateOccurrence(log *zap.Logger, item providers.Item, stored *models.Occurrence) {
	if !ContentEquals(item, stored) {
		applyContent(item, stored)
		if err := r.catalog.UpdateOccurrenceContent(stored); err != nil {
			log.Error("Inhalts-Update fehlgeschlagen",
				zap.String("occurrence", stored.ID.String()), zap.Error(err))
		} else {
			r.telemetry.IncUpdated()
		}
	}

	feedTags := r.parser.CombinedTags(*item.Title, item.Pictograms)
	added, removed := diffTags(feedTags, stored.TagKeys())
	for _, tag := range added {
		if err := r.catalog.InsertOccurrenceTag(stored.ID, tag); err != nil {
			log.Error("Tag-Insert fehlgeschlagen", zap.String("tag", tag), zap.Error(err))
			continue
		}
		stored.Tags = append(stored.Tags, models.OccurrenceTag{OccurrenceID: stored.ID, TagKey: tag})
	}
	for _, tag := range removed {
		if err := r.catalog.DeleteOccurrenceTag(stored.ID, tag); err != nil {
			log.Error("Tag-Delete fehlgeschlagen", zap.String("tag", tag), zap.Error(err))
			continue
		}
		stored.Tags = removeTag(stored.Tags, tag)
	}
}

// insertOccurrence legt eine neue Occurrence samt Tags, Beilagen und
// gegebenenfalls der Review-Anfrage an. Ein fehlgeschlagener Tag- oder
// Beilagen-Write bricht den Rest des Batches nicht ab.
func (r *Reconciler) insertOccurrence(log *zap.Logger, date time.Time, key string,
	item, secondaryItem providers.Item, resolved *ResolveResult) {

	occurrence := &models.Occurrence{
		DishID:     resolved.DishID,
		LocationID: r.locationID,
		Date:       date,
	}
	applyContent(item, occurrence)
	if err := r.catalog.InsertOccurrence(occurrence); err != nil {
		log.Error("Occurrence-Insert fehlgeschlagen",
			zap.String("dish", resolved.DishID.String()), zap.Error(err))
		return
	}
	r.telemetry.IncCreated()

	for _, tag := range r.parser.CombinedTags(*item.Title, item.Pictograms) {
		if err := r.catalog.InsertOccurrenceTag(occurrence.ID, tag); err != nil {
			log.Error("Tag-Insert fehlgeschlagen", zap.String("tag", tag), zap.Error(err))
			continue
		}
		occurrence.Tags = append(occurrence.Tags, models.OccurrenceTag{OccurrenceID: occurrence.ID, TagKey: tag})
		r.telemetry.IncTags()
	}

	r.insertSideDishes(log, occurrence, item, secondaryItem)

	if resolved.Draft != nil {
		if err := r.suggestions.Open(resolved.Draft, occurrence.ID); err != nil {
			log.Error("Review-Anfrage konnte nicht geöffnet werden",
				zap.String("occurrence", occurrence.ID.String()), zap.Error(err))
		} else {
			r.telemetry.IncSuggestions()
		}
	}

	r.known[key] = append(r.known[key], occurrence)
}

// insertSideDishes löst die Beilagen beider Sprachen auf und verlinkt sie.
// Beilagen öffnen nie eine Review-Anfrage.
func (r *Reconciler) insertSideDishes(log *zap.Logger, occurrence *models.Occurrence,
	item, secondaryItem providers.Item) {

	primarySides := r.parser.ExtractSideDishes(item.SideDishes)
	secondarySides := r.parser.ExtractSideDishes(secondaryItem.SideDishes)
	if len(primarySides) != len(secondarySides) {
		log.Warn("Side dish count mismatch",
			zap.Int("primary", len(primarySides)), zap.Int("secondary", len(secondarySides)))
	}

	for i, side := range primarySides {
		var secondarySide *string
		if i < len(secondarySides) {
			secondarySide = &secondarySides[i]
		}
		resolved, err := r.resolver.Resolve(side, secondarySide, false)
		if err != nil {
			log.Error("Beilage konnte nicht aufgelöst werden", zap.String("side_dish", side), zap.Error(err))
			continue
		}
		if err := r.catalog.InsertSideDish(occurrence.ID, resolved.DishID); err != nil {
			log.Error("Beilagen-Link fehlgeschlagen", zap.String("side_dish", side), zap.Error(err))
			continue
		}
		r.telemetry.IncSideDishes()
	}
}

// applyContent überträgt die geparsten Inhalts-Felder eines Feed-Items.
func applyContent(item providers.Item, o *models.Occurrence) {
	o.PriceStudent = ParseCents(item.PriceStudent)
	o.PriceStaff = ParseCents(item.PriceStaff)
	o.PriceGuest = ParseCents(item.PriceGuest)
	o.Kj = ParseCents(item.Kj)
	o.Kcal = ParseCents(item.Kcal)
	o.Fat = ParseCents(item.Fat)
	o.SaturatedFat = ParseCents(item.SaturatedFat)
	o.Carbohydrates = ParseCents(item.Carbohydrates)
	o.Sugar = ParseCents(item.Sugar)
	o.Fiber = ParseCents(item.Fiber)
	o.Protein = ParseCents(item.Protein)
	o.Salt = ParseCents(item.Salt)
}

// ContentEquals vergleicht Preis- und Nährwert-Felder eines Feed-Items mit
// einer gespeicherten Occurrence. Tags werden separat verglichen.
func ContentEquals(item providers.Item, o *models.Occurrence) bool {
	return intPtrEqual(ParseCents(item.PriceStudent), o.PriceStudent) &&
		intPtrEqual(ParseCents(item.PriceStaff), o.PriceStaff) &&
		intPtrEqual(ParseCents(item.PriceGuest), o.PriceGuest) &&
		intPtrEqual(ParseCents(item.Kj), o.Kj) &&
		intPtrEqual(ParseCents(item.Kcal), o.Kcal) &&
		intPtrEqual(ParseCents(item.Fat), o.Fat) &&
		intPtrEqual(ParseCents(item.SaturatedFat), o.SaturatedFat) &&
		intPtrEqual(ParseCents(item.Carbohydrates), o.Carbohydrates) &&
		intPtrEqual(ParseCents(item.Sugar), o.Sugar) &&
		intPtrEqual(ParseCents(item.Fiber), o.Fiber) &&
		intPtrEqual(ParseCents(item.Protein), o.Protein) &&
		intPtrEqual(ParseCents(item.Salt), o.Salt)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// diffTags liefert die Mengendifferenz in beide Richtungen.
func diffTags(feedTags, storedTags []string) (added, removed []string) {
	feedSet := make(map[string]struct{}, len(feedTags))
	for _, t := range feedTags {
		feedSet[t] = struct{}{}
	}
	storedSet := make(map[string]struct{}, len(storedTags))
	for _, t := range storedTags {
		storedSet[t] = struct{}{}
	}
	for _, t := range feedTags {
		if _, ok := storedSet[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range storedTags {
		if _, ok := feedSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}

func removeTag(tags []models.OccurrenceTag, key string) []models.OccurrenceTag {
	out := tags[:0]
	for _, t := range tags {
		if t.TagKey != key {
			out = append(out, t)
		}
	}
	return out
}
