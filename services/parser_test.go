package services

import (
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testVocabulary = map[string]struct{}{
	"Wz": {}, "Fi": {}, "Mi": {}, "S": {}, "R": {}, "G": {},
	"Sen": {}, "Sel": {}, "V": {}, "veg": {}, "Gf": {},
	"1": {}, "2": {}, "3": {},
}

func testParser() *Parser {
	return NewParser(func(key string) bool {
		_, ok := testVocabulary[key]
		return ok
	}, zap.NewNop())
}

func TestExtractName(t *testing.T) {
	p := testParser()

	cases := []struct {
		title string
		want  string
	}{
		{"Pizza Mediterrane mit Thunfisch, Zwiebeln und Peperoni (Wz,Fi,1,2)",
			"Pizza Mediterrane mit Thunfisch, Zwiebeln und Peperoni"},
		{"Putenschnitzel (S,R) mit Rahmsauce (Mi)", "Putenschnitzel mit Rahmsauce"},
		// Klammern mit unbekanntem Inhalt gehören zum Namen
		{"Pasta (hausgemacht) mit Tomaten (1,2)", "Pasta (hausgemacht) mit Tomaten"},
		// Gemischte Gruppen bleiben ebenfalls stehen
		{"Braten (S, hausgemacht)", "Braten (S, hausgemacht)"},
		// Leere Gruppen und Gruppen aus leeren Tokens verschwinden
		{"Salat ( , , )", "Salat"},
		{"Salat ()", "Salat"},
		// Rand-Kommas und Mehrfach-Spaces
		{"  Salat,  (V)  ", "Salat"},
		{"kleiner Gruß aus der Küche", "Kleiner Gruß aus der Küche"},
		// Verschachtelte Klammern: innere Gruppe macht den Inhalt zum Namen
		{"Gericht (Sauce (Mi))", "Gericht (Sauce (Mi))"},
	}
	for _, c := range cases {
		if got := p.ExtractName(c.title); got != c.want {
			t.Errorf("ExtractName(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestExtractNameMismatchedParentheses(t *testing.T) {
	p := testParser()

	for _, title := range []string{
		"Gericht (Wz",
		"Gericht Wz)",
		"Gericht )Wz( mehr",
	} {
		if got := p.ExtractName(title); got != "" {
			t.Errorf("ExtractName(%q) = %q, want empty", title, got)
		}
		if tags := p.ExtractTags(title); tags != nil {
			t.Errorf("ExtractTags(%q) = %v, want nil", title, tags)
		}
	}
}

func TestExtractTags(t *testing.T) {
	p := testParser()

	cases := []struct {
		title string
		want  []string
	}{
		{"Putenschnitzel (S,R) mit Rahmsauce (Mi)", []string{"S", "R", "Mi"}},
		// Synonyme werden auf die kanonische Form abgebildet
		{"Gemüsepfanne (Veg,Glf)", []string{"veg", "Gf"}},
		// Duplikate über Gruppen hinweg
		{"Eintopf (S) mit Einlage (S,R)", []string{"S", "R"}},
		// Gemischte Gruppe liefert keine Tags
		{"Braten (S, hausgemacht)", nil},
		{"Gericht ohne Klammern", nil},
	}
	for _, c := range cases {
		if got := p.ExtractTags(c.title); !reflect.DeepEqual(got, c.want) {
			t.Errorf("ExtractTags(%q) = %v, want %v", c.title, got, c.want)
		}
	}
}

func TestExtractPictogramTags(t *testing.T) {
	p := testParser()

	got := p.ExtractPictogramTags("https://cdn.example.com/icons/S.png, https://cdn.example.com/icons/veg.png")
	want := []string{"S", "veg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractPictogramTags = %v, want %v", got, want)
	}

	if got := p.ExtractPictogramTags("https://cdn.example.com/icons/unbekannt.png"); got != nil {
		t.Errorf("unknown pictogram produced tags: %v", got)
	}
	if got := p.ExtractPictogramTags(""); got != nil {
		t.Errorf("empty pictogram field produced tags: %v", got)
	}
}

func TestCombinedTags(t *testing.T) {
	p := testParser()

	got := p.CombinedTags("Putenschnitzel (S,R)", "icons/S.png, icons/Mi.png")
	want := []string{"S", "R", "Mi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CombinedTags = %v, want %v", got, want)
	}
}

func TestExtractSideDishes(t *testing.T) {
	p := testParser()

	got := p.ExtractSideDishes("Wahlbeilagen: Pommes frites (Wz), Reis, Salat (V)")
	want := []string{"Pommes frites", "Reis", "Salat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractSideDishes = %v, want %v", got, want)
	}

	if got := p.ExtractSideDishes(""); got != nil {
		t.Errorf("empty side dish field = %v, want nil", got)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Döner mit Dän", "doner dan"},
		{"Gemüse-Lasagne", "gemuselasagne"},
		{"Rinderbrühe und Nudeln", "rinderbruhe nudeln"},
		{"Crème brûlée", "creme brulee"},
		// Füllwort-Entfernung arbeitet auf Substring-Ebene
		{"Hundefutter", "hefutter"},
		{"   ", ""},
		{"(!?)", ""},
	}
	for _, c := range cases {
		if got := SanitizeString(c.in); got != c.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want *int
	}{
		{"3,50", intPtr(350)},
		{"12.5", intPtr(125)},
		{"0,8", intPtr(8)},
		{"", nil},
		{"-", nil},
		{"abc", nil},
	}
	for _, c := range cases {
		got := ParseCents(c.in)
		if !intPtrEqual(got, c.want) {
			t.Errorf("ParseCents(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDateFromTimestamp(t *testing.T) {
	// 2024-06-03 02:00 Europe/Berlin (Sommerzeit, UTC+2)
	got := DateFromTimestamp(1717372800)
	want := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateFromTimestamp = %v, want %v", got, want)
	}
	if DateKey(got) != "2024-06-03" {
		t.Errorf("DateKey = %q, want 2024-06-03", DateKey(got))
	}
}

func intPtr(v int) *int { return &v }
