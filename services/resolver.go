package services

import (
	"sort"

	"github.com/google/uuid"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"

	"menu-hand/models"
)

// ResolveOutcome beschreibt, über welchen Weg ein Titel aufgelöst wurde.
type ResolveOutcome int

const (
	// OutcomeAlias: Treffer über den normalisierten Alias-Schlüssel, keine Writes.
	OutcomeAlias ResolveOutcome = iota
	// OutcomeCanonical: Treffer über den kanonischen Namen, neuer Alias angelegt.
	OutcomeCanonical
	// OutcomeCreated: nie gesehenes Gericht, provisorisch angelegt.
	OutcomeCreated
)

// SuggestionDraft ist eine noch nicht persistierte Review-Anfrage. Sie
// entsteht im Resolver und wird vom Reconciler an die Occurrence gebunden,
// sobald deren ID feststeht.
type SuggestionDraft struct {
	DishID        uuid.UUID
	AliasText     string
	ExtractedName string
	Candidates    []models.RankedCandidate
}

// ResolveResult ist das Ergebnis einer Titel-Auflösung.
type ResolveResult struct {
	DishID  uuid.UUID
	Outcome ResolveOutcome
	Draft   *SuggestionDraft
}

// Resolver bestimmt die Katalog-Identität eines Gerichts aus seinem
// Feed-Titel. Reihenfolge: Alias-Lookup, kanonischer Name, Fuzzy-Abgleich
// mit provisorischem Insert.
type Resolver struct {
	catalog   *Catalog
	parser    *Parser
	threshold int
	topN      int
	logger    *zap.Logger
}

// NewResolver erstellt einen Resolver. threshold ist der Fuzzy-Score (0-100),
// ab dem ein neues Gericht in die Review geht; topN die Kandidatenanzahl.
func NewResolver(catalog *Catalog, parser *Parser, threshold, topN int, logger *zap.Logger) *Resolver {
	return &Resolver{
		catalog:   catalog,
		parser:    parser,
		threshold: threshold,
		topN:      topN,
		logger:    logger,
	}
}

// Resolve löst einen Titel (plus Gegenstück der Sekundärsprache) auf.
// allowSuggestion steuert, ob ein Miss eine Review-Anfrage öffnen darf;
// Beilagen werden immer direkt akzeptiert.
func (r *Resolver) Resolve(primaryTitle string, secondaryTitle *string, allowSuggestion bool) (*ResolveResult, error) {
	extracted := r.parser.ExtractName(primaryTitle)
	sanitized := SanitizeString(extracted)

	// 1. Schneller Pfad: exakter Treffer über den normalisierten Schlüssel.
	alias, err := r.catalog.AliasByNormalizedName(sanitized)
	if err != nil {
		return nil, err
	}
	if alias != nil {
		return &ResolveResult{DishID: alias.DishID, Outcome: OutcomeAlias}, nil
	}

	var result *ResolveResult
	err = r.catalog.WithDishLock(func() error {
		// 2. Kanonischer Name: bekanntes Gericht unter neuer Schreibweise.
		dish, err := r.catalog.DishByName(extracted)
		if err != nil {
			return err
		}
		if dish != nil {
			if err := r.catalog.InsertAlias(primaryTitle, sanitized, dish.ID); err != nil {
				return err
			}
			result = &ResolveResult{DishID: dish.ID, Outcome: OutcomeCanonical}
			return nil
		}

		// 3. Nie gesehen: Fuzzy-Abgleich gegen alle Alias-Schlüssel,
		// provisorisches Gericht anlegen.
		candidates, err := r.rankCandidates(sanitized)
		if err != nil {
			return err
		}

		var secondaryName *string
		if secondaryTitle != nil {
			name := r.parser.ExtractName(*secondaryTitle)
			secondaryName = &name
		}
		created, err := r.catalog.InsertDish(extracted, secondaryName)
		if err != nil {
			return err
		}
		if err := r.catalog.InsertAlias(primaryTitle, sanitized, created.ID); err != nil {
			return err
		}

		result = &ResolveResult{DishID: created.ID, Outcome: OutcomeCreated}
		if allowSuggestion && len(candidates) > 0 && candidates[0].Score >= r.threshold {
			top := candidates
			if len(top) > r.topN {
				top = top[:r.topN]
			}
			result.Draft = &SuggestionDraft{
				DishID:        created.ID,
				AliasText:     primaryTitle,
				ExtractedName: extracted,
				Candidates:    top,
			}
			r.logger.Info("Unbekanntes Gericht geht in die Review",
				zap.String("name", extracted),
				zap.Int("best_score", candidates[0].Score),
				zap.String("best_candidate", candidates[0].Name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rankCandidates bewertet den bereinigten Namen gegen jeden bekannten
// Alias-Schlüssel (gewichtete Token-Ratio) und sortiert absteigend;
// Gleichstände behalten die Relationsreihenfolge.
func (r *Resolver) rankCandidates(sanitized string) ([]models.RankedCandidate, error) {
	aliases, err := r.catalog.AliasIndex()
	if err != nil {
		return nil, err
	}
	candidates := make([]models.RankedCandidate, 0, len(aliases))
	for _, a := range aliases {
		candidates = append(candidates, models.RankedCandidate{
			Score: fuzzy.WRatio(sanitized, a.NormalizedAliasName),
			Name:  a.NormalizedAliasName,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}
