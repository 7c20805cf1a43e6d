package stats

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/falchooser/internal/metrics"
)

const notApplicable = "N/A"

var (
	thousandsPattern = regexp.MustCompile(`\d+(?:,\d+)*`)
	hashPattern      = regexp.MustCompile(`#(\d+)`)
	decimalPattern   = regexp.MustCompile(`\d+\.\d+`)
	usersPattern     = regexp.MustCompile(`(\d+(?:,\d+)*) users`)
)

// rule extracts one field from a labelled block.
type rule struct {
	field   Field
	pattern *regexp.Regexp
	parse   func(string) (Value, error)
	// skipNA disables the N/A check; the users count sits next to the score and must not
	// inherit the score's N/A marker.
	skipNA bool
	// nullIfMissing records null instead of leaving the field absent when nothing matches.
	nullIfMissing bool
}

func thousands(field Field) []rule {
	return []rule{{field: field, pattern: thousandsPattern, parse: parseInt}}
}

func hashed(field Field) []rule {
	return []rule{{field: field, pattern: hashPattern, parse: parseInt}}
}

// rules is keyed by the block label exactly as MAL prints it.
var rules = map[string][]rule{
	"Score:": {
		{field: FieldScore, pattern: decimalPattern, parse: parseFloat},
		{field: FieldUsers, pattern: usersPattern, parse: parseInt, skipNA: true, nullIfMissing: true},
	},
	"Ranked:":        hashed(FieldRanked),
	"Popularity:":    hashed(FieldPopularity),
	"Members:":       thousands(FieldMembers),
	"Favorites:":     thousands(FieldFavorites),
	"Watching:":      thousands(FieldWatching),
	"Completed:":     thousands(FieldCompleted),
	"On-Hold:":       thousands(FieldOnHold),
	"Dropped:":       thousands(FieldDropped),
	"Plan to Watch:": thousands(FieldPlanToWatch),
}

// Extract parses a full statistics page.
func Extract(html []byte) (Stats, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse stats page: %w", err)
	}
	return ExtractDocument(doc), nil
}

// ExtractDocument walks the sidebar and the central stats list of an already parsed page.
func ExtractDocument(doc *goquery.Document) Stats {
	out := make(Stats, len(Fields))
	visit := func(_ int, block *goquery.Selection) {
		for field, value := range extractBlock(block) {
			out[field] = value
		}
	}
	doc.Find("div.js-scrollfix-bottom").First().ChildrenFiltered("div").Each(visit)
	doc.Find("div.js-scrollfix-bottom-rel").First().Find("div.spaceit_pad").Each(visit)
	for field, value := range out {
		metrics.ObserveField(string(field), value.IsNull())
	}
	return out
}

func extractBlock(block *goquery.Selection) Stats {
	first := block.Children().First()
	if first.Length() == 0 {
		return nil
	}
	blockRules, ok := rules[strings.TrimSpace(first.Text())]
	if !ok {
		return nil
	}

	// Footnote markers like <sup>2</sup> glue onto the numbers otherwise.
	block.ChildrenFiltered("sup").Remove()
	text := block.Text()

	out := make(Stats, len(blockRules))
	for _, r := range blockRules {
		value, ok := r.apply(text)
		if ok {
			out[r.field] = value
		}
	}
	return out
}

func (r rule) apply(text string) (Value, bool) {
	if !r.skipNA && strings.Contains(text, notApplicable) {
		return Null(), true
	}
	match := r.pattern.FindStringSubmatch(text)
	if match == nil {
		if r.nullIfMissing {
			return Null(), true
		}
		return Value{}, false
	}
	raw := match[0]
	if len(match) > 1 {
		raw = match[1]
	}
	value, err := r.parse(raw)
	if err != nil {
		return Value{}, false
	}
	return value, true
}

func parseInt(raw string) (Value, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse integer %q: %w", raw, err)
	}
	return Int(n), nil
}

func parseFloat(raw string) (Value, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse decimal %q: %w", raw, err)
	}
	return Float(f), nil
}
