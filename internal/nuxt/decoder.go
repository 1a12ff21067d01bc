// Package nuxt decodes the flat, reference-indexed data graph that the site
// embeds in its pages. The payload is a single JSON array where an integer
// value may be either a literal or an offset into the same array.
package nuxt

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var statePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\});`),
}

// Parse extracts the embedded data graph from a page. It prefers the
// __NUXT_DATA__ script tag and falls back to the legacy window-global
// assignments, which yield a single-element graph wrapping one object.
// The second return is false when the page carries no recognizable graph.
func Parse(html string) ([]any, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	if raw := doc.Find(`script#__NUXT_DATA__`).Text(); raw != "" {
		var data []any
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			return data, true
		}
	}

	var found []any
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if text == "" {
			return true
		}
		for _, pattern := range statePatterns {
			match := pattern.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(match[1]), &obj); err == nil {
				found = []any{obj}
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// Resolve follows an offset reference exactly one hop. A value resolves only
// when it is an integral number, in range, and not self-referential; in every
// other case the raw value comes back unchanged. The single-hop bound
// guarantees termination on cyclic or malformed graphs.
func Resolve(data []any, v any) any {
	idx, ok := asIndex(v)
	if !ok || idx < 0 || idx >= len(data) {
		return v
	}
	if target, isNum := asIndex(data[idx]); isNum && target == idx {
		return v
	}
	return data[idx]
}

// asIndex accepts the numeric shapes JSON decoding and tests produce.
func asIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
