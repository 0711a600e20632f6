package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PlaceholderTitle wird im Feed angezeigt, bevor die Pizza-Sorten des Tages
// feststehen. Items mit diesem Titel werden vor dem Parsen übersprungen.
const PlaceholderTitle = "Heute ab 15.30 Uhr Pizza an unserer Cafebar"

// tagSynonyms bildet historische Tag-Schreibweisen auf die kanonische Form ab.
var tagSynonyms = map[string]string{
	"Veg": "veg", // vegan
	"Glf": "Gf",  // glutenfrei
}

var (
	nonAlphanumericRE = regexp.MustCompile(`[^a-z0-9 ]`)
	pictogramStemRE   = regexp.MustCompile(`([^/]+)\.png`)
)

// Parser zerlegt rohe Feed-Titel in kanonischen Namen, Tags und Beilagen.
// Ob ein Klammer-Token ein Tag ist, entscheidet das übergebene Vokabular.
type Parser struct {
	validTag func(key string) bool
	logger   *zap.Logger
}

// NewParser erstellt einen Parser über dem gegebenen Tag-Vokabular.
func NewParser(validTag func(key string) bool, logger *zap.Logger) *Parser {
	return &Parser{validTag: validTag, logger: logger}
}

// knownTag prüft ein rohes Token gegen das Vokabular, Synonyme eingeschlossen.
func (p *Parser) knownTag(token string) bool {
	return p.validTag(NormalizeTag(token))
}

// isTagGroup meldet, ob ein Klammerinhalt ausschließlich aus bekannten Tags
// besteht. Leere Gruppen (und Gruppen aus lauter leeren Tokens) zählen als
// Tag-Gruppe und verschwinden damit aus dem Namen.
func (p *Parser) isTagGroup(content string) bool {
	for _, token := range strings.Split(content, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if !p.knownTag(token) {
			return false
		}
	}
	return true
}

// extract läuft einmal über den Titel und trennt Namenstext von
// Tag-Gruppen. Unbalancierte Klammern sind ein Parse-Fehler: beide
// Ausgaben bleiben leer, der Roh-Titel wird geloggt.
func (p *Parser) extract(title string) (name string, tagGroups []string, ok bool) {
	if strings.Count(title, "(") != strings.Count(title, ")") {
		p.logger.Error("Mismatched parentheses in title", zap.String("title", title))
		return "", nil, false
	}

	var nameOut strings.Builder
	var group strings.Builder
	depth := 0

	for _, r := range title {
		switch r {
		case '(':
			depth++
			if depth == 1 {
				group.Reset()
				continue
			}
			group.WriteRune(r)
		case ')':
			depth--
			if depth < 0 {
				// Gleiche Klammeranzahl, aber ")" vor "(" — ebenfalls kaputt.
				p.logger.Error("Mismatched parentheses in title", zap.String("title", title))
				return "", nil, false
			}
			if depth == 0 {
				content := group.String()
				if p.isTagGroup(content) {
					tagGroups = append(tagGroups, content)
				} else {
					nameOut.WriteRune('(')
					nameOut.WriteString(content)
					nameOut.WriteRune(')')
				}
				continue
			}
			group.WriteRune(r)
		default:
			if depth > 0 {
				group.WriteRune(r)
			} else {
				nameOut.WriteRune(r)
			}
		}
	}

	return nameOut.String(), tagGroups, true
}

// ExtractName gibt den kanonischen Gerichtsnamen eines Roh-Titels zurück:
// Tag-Gruppen entfernt, Whitespace kollabiert, erster Buchstabe groß.
func (p *Parser) ExtractName(title string) string {
	name, _, ok := p.extract(title)
	if !ok {
		return ""
	}
	return FirstCharUpper(RemoveMultipleWhiteSpaces(strings.Trim(name, " ,")))
}

// ExtractTags gibt die Tag-Schlüssel aus den Klammer-Gruppen des Titels
// zurück: vokabulargefiltert, synonym-normalisiert, dedupliziert.
func (p *Parser) ExtractTags(title string) []string {
	_, groups, ok := p.extract(title)
	if !ok {
		return nil
	}
	var raw []string
	for _, group := range groups {
		raw = append(raw, strings.Split(group, ",")...)
	}
	return p.filterTags(raw)
}

// ExtractPictogramTags leitet Tags aus dem Piktogramm-URL-Feld ab, über den
// Dateinamens-Stamm zwischen abschließendem ".png" und vorangehendem "/".
func (p *Parser) ExtractPictogramTags(pictograms string) []string {
	var raw []string
	for _, match := range pictogramStemRE.FindAllStringSubmatch(pictograms, -1) {
		raw = append(raw, match[1])
	}
	return p.filterTags(raw)
}

// CombinedTags vereinigt Titel- und Piktogramm-Tags.
func (p *Parser) CombinedTags(title, pictograms string) []string {
	return dedupe(append(p.ExtractTags(title), p.ExtractPictogramTags(pictograms)...))
}

// ExtractSideDishes zerlegt das Beilagen-Feld in einzelne Gerichtsnamen.
func (p *Parser) ExtractSideDishes(field string) []string {
	cleaned := strings.ReplaceAll(p.ExtractName(field), "Wahlbeilagen:", "")
	var sideDishes []string
	for _, part := range strings.Split(cleaned, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			sideDishes = append(sideDishes, part)
		}
	}
	return sideDishes
}

func (p *Parser) filterTags(raw []string) []string {
	var tags []string
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" || !p.knownTag(token) {
			continue
		}
		tags = append(tags, NormalizeTag(token))
	}
	return dedupe(tags)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NormalizeTag bildet historische Tag-Schreibweisen auf die kanonische ab.
func NormalizeTag(key string) string {
	if canonical, ok := tagSynonyms[key]; ok {
		return canonical
	}
	return key
}

// SanitizeString erzeugt den normalisierten Lookup-Schlüssel eines Namens:
// Kleinschreibung, diakritische Zeichen entfernt, nur [a-z0-9 ],
// Füllwörter raus, Whitespace kollabiert. Ein Ergebnis von "" ist ein
// gültiger (wenn auch entarteter) Schlüssel.
func SanitizeString(input string) string {
	s := strings.ToLower(input)
	s = RemoveDiacritics(s)
	s = nonAlphanumericRE.ReplaceAllString(s, "")
	s = RemoveIrrelevantWords(s)
	return RemoveMultipleWhiteSpaces(s)
}

// RemoveDiacritics zerlegt nach NFD und verwirft kombinierende Zeichen,
// é wird also zu e.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// RemoveIrrelevantWords entfernt die Verbinder "mit" und "und".
func RemoveIrrelevantWords(s string) string {
	s = strings.ReplaceAll(s, "mit", "")
	return strings.ReplaceAll(s, "und", "")
}

// RemoveMultipleWhiteSpaces kollabiert Space-Läufe und trimmt die Ränder.
func RemoveMultipleWhiteSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FirstCharUpper schreibt den ersten Buchstaben groß.
func FirstCharUpper(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// ParseCents wandelt einen Feed-Preis/Nährwert-String in eine ganze Zahl um,
// Dezimaltrenner entfernt ("3,50" -> 350). Leere Felder und "-" sind nil.
func ParseCents(s string) *int {
	if s == "" || s == "-" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// feedLocation ist die Zeitzone, in der die Feed-Timestamps Kalendertage
// bezeichnen.
var feedLocation = mustLoadLocation("Europe/Berlin")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DateFromTimestamp übersetzt einen Unix-Timestamp des Feeds in das
// Kalenderdatum, das er lokal bezeichnet.
func DateFromTimestamp(ts int64) time.Time {
	local := time.Unix(ts, 0).In(feedLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey formatiert ein Datum als Map-Schlüssel des Tages-Caches.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
