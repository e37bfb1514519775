package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/lismorewater/flowmon/internal/fetch"
	"github.com/lismorewater/flowmon/internal/reading"
)

// Locator tells the extractor where a field's raw value lives on a
// particular device's page.
type Locator struct {
	// Selector is a CSS selector for the element carrying the value.
	Selector string
	// JSONKey is the property name to look up in embedded JSON payloads.
	// Empty means the field's primary alias is used.
	JSONKey string
}

const numberSrc = `[-+]?\d+(?:\.\d+)?`

var numberPattern = regexp.MustCompile(numberSrc)

// labelPatterns matches a field label followed by a nearby number, or a
// number trailed by one of the field's unit suffixes. Built once; the
// known field set is fixed.
var labelPatterns = buildLabelPatterns()

func buildLabelPatterns() map[reading.Field][]*regexp.Regexp {
	out := make(map[reading.Field][]*regexp.Regexp)
	for _, f := range reading.Fields() {
		var pats []*regexp.Regexp
		for _, alias := range f.Aliases() {
			pats = append(pats, regexp.MustCompile(
				`(?i)`+regexp.QuoteMeta(alias)+`[^0-9+\-]{0,20}(`+numberSrc+`)`))
		}
		for _, unit := range f.Units() {
			pats = append(pats, regexp.MustCompile(
				`(`+numberSrc+`)\s*`+regexp.QuoteMeta(unit)+`(?:[^\w/]|$)`))
		}
		out[f] = pats
	}
	return out
}

// Extractor turns fetched documents into readings. Every field is tried
// independently; a field that no strategy can parse is left absent and the
// rest of the extraction continues.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract produces a reading from the document. Per field, three strategies
// run in order until one yields a parseable number: embedded JSON lookup,
// CSS selector lookup, then a label/unit scan over the page text. A document
// that cannot be parsed at all yields an all-absent reading with FetchOK
// left false.
func (e *Extractor) Extract(deviceID string, observedAt time.Time, doc fetch.Document, locators map[reading.Field]Locator) reading.Reading {
	r := reading.New(deviceID, observedAt)

	if strings.TrimSpace(doc.HTML) == "" {
		e.logger.Warn("empty document, nothing to extract",
			zap.String("device_id", deviceID))
		return r
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		e.logger.Warn("document could not be parsed",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return r
	}
	r.FetchOK = true

	payloads := jsonPayloads(gq, doc.HTML)
	text := gq.Text()

	for _, f := range reading.Fields() {
		loc := locators[f]

		if v, ok := fromJSON(payloads, f, loc); ok {
			r.Set(f, v)
			continue
		}
		if v, ok := fromSelector(gq, loc); ok {
			r.Set(f, v)
			continue
		}
		if v, ok := fromText(text, f); ok {
			r.Set(f, v)
			continue
		}

		e.logger.Warn("field not extractable",
			zap.String("device_id", deviceID),
			zap.String("field", string(f)))
	}

	return r
}

// jsonPayloads collects every decodable JSON value in the document: the raw
// body when it is itself JSON, plus the contents of each script element.
func jsonPayloads(gq *goquery.Document, raw string) []interface{} {
	var payloads []interface{}

	appendPayload := func(text string) {
		text = strings.TrimSpace(text)
		if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
			return
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			payloads = append(payloads, decoded)
		}
	}

	appendPayload(raw)
	gq.Find("script").Each(func(_ int, s *goquery.Selection) {
		appendPayload(s.Text())
	})

	return payloads
}

func fromJSON(payloads []interface{}, f reading.Field, loc Locator) (float64, bool) {
	key := loc.JSONKey
	if key == "" {
		key = f.Aliases()[0]
	}
	for _, p := range payloads {
		if v, ok := findJSONValue(p, key); ok {
			return v, true
		}
	}
	return 0, false
}

// findJSONValue depth-first searches decoded JSON for a case-insensitive
// key match whose value is numeric or a string containing a number.
func findJSONValue(node interface{}, key string) (float64, bool) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			if strings.EqualFold(k, key) {
				if n, ok := asNumber(child); ok {
					return n, true
				}
			}
		}
		for _, child := range v {
			if n, ok := findJSONValue(child, key); ok {
				return n, true
			}
		}
	case []interface{}:
		for _, child := range v {
			if n, ok := findJSONValue(child, key); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case string:
		return parseNumber(n)
	}
	return 0, false
}

func fromSelector(gq *goquery.Document, loc Locator) (float64, bool) {
	if loc.Selector == "" {
		return 0, false
	}
	sel := gq.Find(loc.Selector)
	if sel.Length() == 0 {
		return 0, false
	}
	return parseNumber(sel.First().Text())
}

func fromText(text string, f reading.Field) (float64, bool) {
	for _, pat := range labelPatterns[f] {
		m := pat.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			return v, true
		}
	}
	return 0, false
}

// parseNumber pulls the first decimal number out of the text. Non-finite
// results are rejected.
func parseNumber(text string) (float64, bool) {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
