package indexer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hyperjump/normlab/internal/models"
)

// Work types recognised in chunk text.
const (
	WorkTypeRebar    = "rebar"
	WorkTypeFormwork = "formwork"
	WorkTypeConcrete = "concrete"
)

// workTypeVocabulary lists lower-case stems per work type in English, Turkish, and Russian.
var workTypeVocabulary = []struct {
	workType string
	terms    []string
}{
	{WorkTypeRebar, []string{"rebar", "reinforcement", "reinforcing", "donatı", "donati", "demir", "арматур"}},
	{WorkTypeFormwork, []string{"formwork", "shuttering", "kalıp", "kalip", "опалуб"}},
	{WorkTypeConcrete, []string{"concrete", "beton", "бетон"}},
}

var (
	ferCode = regexp.MustCompile(`(?i)(?:\bFER|ФЕР)[\s-]?(\d[0-9A-Za-z]*(?:[-.]\d[0-9A-Za-z]*)*)`)
	pozCode = regexp.MustCompile(`(?i)\bPoz(?:\s*No)?[.:]?\s*(\d+(?:[./-]\d+)*)`)
)

// unitPriority is the order in which unit tokens win when a chunk mentions several.
var unitPriority = []string{"kg", "m2", "m3", "hour"}

// Annotator extracts work types, norm codes, and the unit from chunk text.
type Annotator struct{}

// NewAnnotator creates an annotator.
func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Annotate fills WorkTypes, NormCodes, Unit, and Locale on chunk.
// lang selects locale-aware case folding (Turkish dotted and dotless i).
func (a *Annotator) Annotate(chunk *models.Chunk, lang, locale string) {
	folded := fold(chunk.Heading+"\n"+chunk.Text, lang)
	chunk.WorkTypes = WorkTypes(folded)
	chunk.NormCodes = NormCodes(chunk.Text)
	chunk.Unit = DetectUnit(chunk.Text)
	chunk.Locale = strings.ToLower(strings.TrimSpace(locale))
}

func fold(text, lang string) string {
	tag := language.Und
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			tag = t
		}
	}
	return cases.Lower(tag).String(text)
}

// WorkTypes returns the work types whose vocabulary occurs in already case-folded text.
func WorkTypes(folded string) []string {
	out := []string{}
	for _, v := range workTypeVocabulary {
		for _, term := range v.terms {
			if strings.Contains(folded, term) {
				out = append(out, v.workType)
				break
			}
		}
	}
	return out
}

// NormCodes returns the FER and Poz codes in text, in order of first appearance, deduplicated.
// FER codes are rendered as "FER<code>", Poz codes as "Poz <number>".
func NormCodes(text string) []string {
	type match struct {
		pos  int
		code string
	}
	var found []match
	for _, m := range ferCode.FindAllStringSubmatchIndex(text, -1) {
		found = append(found, match{m[0], "FER" + strings.ToUpper(text[m[2]:m[3]])})
	}
	for _, m := range pozCode.FindAllStringSubmatchIndex(text, -1) {
		found = append(found, match{m[0], "Poz " + text[m[2]:m[3]]})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	out := []string{}
	seen := make(map[string]struct{}, len(found))
	for _, f := range found {
		if _, ok := seen[f.code]; ok {
			continue
		}
		seen[f.code] = struct{}{}
		out = append(out, f.code)
	}
	return out
}

// DetectUnit returns the highest-priority canonical unit mentioned in text, or "".
func DetectUnit(text string) string {
	present := make(map[string]bool)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '^'
	})
	for _, tok := range tokens {
		present[models.NormalizeUnit(tok)] = true
	}
	for _, u := range unitPriority {
		if present[u] {
			return u
		}
	}
	return ""
}
