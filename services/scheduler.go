package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"menu-hand/providers"
)

var (
	metricFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "menuhand_feed_fetches_total",
		Help: "Anzahl der Feed-Abrufe, aufgeteilt nach Ergebnis",
	}, []string{"feed", "result"})

	metricResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "menuhand_dish_resolutions_total",
		Help: "Anzahl der Titel-Auflösungen, aufgeteilt nach Pfad",
	}, []string{"feed", "outcome"})

	metricOccurrences = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "menuhand_occurrences_total",
		Help: "Occurrence-Schreiboperationen, aufgeteilt nach Art",
	}, []string{"feed", "op"})

	metricSuggestions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "menuhand_suggestions_opened_total",
		Help: "Anzahl der geöffneten Review-Anfragen",
	}, []string{"feed"})

	metricScrapeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "menuhand_scrape_duration_seconds",
		Help:    "Dauer eines vollständigen Pull-Zyklus (beide Sprachen plus Abgleich)",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})
)

func init() {
	prometheus.MustRegister(metricFetches, metricResolutions,
		metricOccurrences, metricSuggestions, metricScrapeDuration)
}

// WorkerTelemetry zählt die Arbeit eines Workers seit Prozessstart. Die
// Zähler speisen sowohl die Prometheus-Metriken als auch den /stats-Endpunkt.
type WorkerTelemetry struct {
	feed string

	mu                 sync.Mutex
	fetches            uint64
	fetchFailures      uint64
	days               uint64
	items              uint64
	aliasHits          uint64
	canonicalHits      uint64
	dishesCreated      uint64
	occurrencesCreated uint64
	occurrencesUpdated uint64
	occurrencesRetired uint64
	tagsWritten        uint64
	sideDishesLinked   uint64
	suggestionsOpened  uint64
	scrapeTime         time.Duration
}

// NewWorkerTelemetry erstellt die Zähler eines Feeds.
func NewWorkerTelemetry(feed string) *WorkerTelemetry {
	return &WorkerTelemetry{feed: feed}
}

// TelemetrySnapshot ist der Stand eines Workers für den /stats-Endpunkt.
type TelemetrySnapshot struct {
	Feed               string  `json:"feed"`
	Fetches            uint64  `json:"fetches"`
	FetchFailures      uint64  `json:"fetch_failures"`
	Days               uint64  `json:"days"`
	Items              uint64  `json:"items"`
	AliasHits          uint64  `json:"alias_hits"`
	CanonicalHits      uint64  `json:"canonical_hits"`
	DishesCreated      uint64  `json:"dishes_created"`
	OccurrencesCreated uint64  `json:"occurrences_created"`
	OccurrencesUpdated uint64  `json:"occurrences_updated"`
	OccurrencesRetired uint64  `json:"occurrences_retired"`
	TagsWritten        uint64  `json:"tags_written"`
	SideDishesLinked   uint64  `json:"side_dishes_linked"`
	SuggestionsOpened  uint64  `json:"suggestions_opened"`
	ScrapeSeconds      float64 `json:"scrape_seconds"`
}

// Snapshot liefert eine konsistente Kopie der Zähler.
func (t *WorkerTelemetry) Snapshot() TelemetrySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TelemetrySnapshot{
		Feed:               t.feed,
		Fetches:            t.fetches,
		FetchFailures:      t.fetchFailures,
		Days:               t.days,
		Items:              t.items,
		AliasHits:          t.aliasHits,
		CanonicalHits:      t.canonicalHits,
		DishesCreated:      t.dishesCreated,
		OccurrencesCreated: t.occurrencesCreated,
		OccurrencesUpdated: t.occurrencesUpdated,
		OccurrencesRetired: t.occurrencesRetired,
		TagsWritten:        t.tagsWritten,
		SideDishesLinked:   t.sideDishesLinked,
		SuggestionsOpened:  t.suggestionsOpened,
		ScrapeSeconds:      t.scrapeTime.Seconds(),
	}
}

// IncFetch zählt einen Feed-Abruf.
func (t *WorkerTelemetry) IncFetch(ok bool) {
	result := "ok"
	t.mu.Lock()
	t.fetches++
	if !ok {
		t.fetchFailures++
		result = "error"
	}
	t.mu.Unlock()
	metricFetches.WithLabelValues(t.feed, result).Inc()
}

// IncDays zählt einen abgeglichenen Tag.
func (t *WorkerTelemetry) IncDays() {
	t.mu.Lock()
	t.days++
	t.mu.Unlock()
}

// IncItems zählt ein verarbeitetes Feed-Item.
func (t *WorkerTelemetry) IncItems() {
	t.mu.Lock()
	t.items++
	t.mu.Unlock()
}

// CountOutcome zählt den Auflösungspfad eines Titels.
func (t *WorkerTelemetry) CountOutcome(outcome ResolveOutcome) {
	t.mu.Lock()
	var label string
	switch outcome {
	case OutcomeAlias:
		t.aliasHits++
		label = "alias"
	case OutcomeCanonical:
		t.canonicalHits++
		label = "canonical"
	case OutcomeCreated:
		t.dishesCreated++
		label = "created"
	}
	t.mu.Unlock()
	metricResolutions.WithLabelValues(t.feed, label).Inc()
}

// IncCreated zählt eine neu angelegte Occurrence.
func (t *WorkerTelemetry) IncCreated() {
	t.mu.Lock()
	t.occurrencesCreated++
	t.mu.Unlock()
	metricOccurrences.WithLabelValues(t.feed, "created").Inc()
}

// IncUpdated zählt ein Inhalts-Update.
func (t *WorkerTelemetry) IncUpdated() {
	t.mu.Lock()
	t.occurrencesUpdated++
	t.mu.Unlock()
	metricOccurrences.WithLabelValues(t.feed, "updated").Inc()
}

// IncRetired zählt einen Occurrence-Rückzug.
func (t *WorkerTelemetry) IncRetired() {
	t.mu.Lock()
	t.occurrencesRetired++
	t.mu.Unlock()
	metricOccurrences.WithLabelValues(t.feed, "retired").Inc()
}

// IncTags zählt eine Tag-Verknüpfung.
func (t *WorkerTelemetry) IncTags() {
	t.mu.Lock()
	t.tagsWritten++
	t.mu.Unlock()
}

// IncSideDishes zählt einen Beilagen-Link.
func (t *WorkerTelemetry) IncSideDishes() {
	t.mu.Lock()
	t.sideDishesLinked++
	t.mu.Unlock()
}

// IncSuggestions zählt eine geöffnete Review-Anfrage.
func (t *WorkerTelemetry) IncSuggestions() {
	t.mu.Lock()
	t.suggestionsOpened++
	t.mu.Unlock()
	metricSuggestions.WithLabelValues(t.feed).Inc()
}

// AddScrapeTime akkumuliert die Dauer eines Pull-Zyklus.
func (t *WorkerTelemetry) AddScrapeTime(d time.Duration) {
	t.mu.Lock()
	t.scrapeTime += d
	t.mu.Unlock()
	metricScrapeDuration.WithLabelValues(t.feed).Observe(d.Seconds())
}

// Worker treibt den Pull-Zyklus genau eines Feeds: beide Sprachen abrufen,
// abgleichen, schlafen. Transiente Fetch-Fehler überspringen den Zyklus,
// ein Abgleich-Fehler beendet den Worker.
type Worker struct {
	provider   providers.Provider
	reconciler *Reconciler
	telemetry  *WorkerTelemetry
	logger     *zap.Logger
}

// NewWorker erstellt einen Worker für den gegebenen Feed.
func NewWorker(provider providers.Provider, reconciler *Reconciler,
	telemetry *WorkerTelemetry, logger *zap.Logger) *Worker {
	return &Worker{
		provider:   provider,
		reconciler: reconciler,
		telemetry:  telemetry,
		logger:     logger.With(zap.String("feed", provider.Name())),
	}
}

// Run läuft bis zum Context-Abbruch oder einem fatalen Abgleich-Fehler.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.reconciler.Prime(w.provider.ExternalLocationID()); err != nil {
		return err
	}

	for {
		started := time.Now()

		primary, err := w.provider.Fetch(ctx, providers.LanguageDe)
		w.telemetry.IncFetch(err == nil)
		if err != nil {
			w.logger.Error("Primär-Feed konnte nicht geladen werden", zap.Error(err))
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		secondary, err := w.provider.Fetch(ctx, providers.LanguageEn)
		w.telemetry.IncFetch(err == nil)
		if err != nil {
			w.logger.Error("Sekundär-Feed konnte nicht geladen werden", zap.Error(err))
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		if err := w.reconciler.ReconcileMenus(primary, secondary); err != nil {
			w.logger.Error("Abgleich fehlgeschlagen, Worker stoppt", zap.Error(err))
			return err
		}
		w.telemetry.AddScrapeTime(time.Since(started))

		if !w.sleep(ctx) {
			return nil
		}
	}
}

// sleep wartet die Feed-Delay ab; false bei Context-Abbruch.
func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.provider.Delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Scheduler startet und überwacht alle Worker.
type Scheduler struct {
	workers []*Worker
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewScheduler erstellt einen Scheduler über den gegebenen Workern.
func NewScheduler(workers []*Worker, logger *zap.Logger) *Scheduler {
	return &Scheduler{workers: workers, logger: logger}
}

// Start lässt jeden Worker in einer eigenen Goroutine laufen. Ein fataler
// Fehler eines Workers lässt die übrigen unberührt.
func (s *Scheduler) Start(ctx context.Context) {
	for _, w := range s.workers {
		worker := w
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := worker.Run(ctx); err != nil {
				s.logger.Error("Worker beendet", zap.Error(err))
			}
		}()
	}
}

// Wait blockiert, bis alle Worker beendet sind.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
