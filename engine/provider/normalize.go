package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/herbid/herbid/engine/domain"
)

// Field-name variants probed in order.
var (
	scientificKeys = []string{"scientificNameWithoutAuthor", "scientificName", "scientific_name", "plant_name", "name"}
	commonKeys     = []string{"commonNames", "common_names", "commonName", "common_name", "vernacularNames", "vernacular_names"}
	scoreKeys      = []string{"score", "probability", "confidence"}
	detailKeys     = []string{"plant_details", "details"}
)

// shape is one known response layout. parse reports false when the body
// does not have this layout or carries no scientific name.
type shape struct {
	name  string
	parse func(body map[string]any) (domain.Identification, bool)
}

var shapes = []shape{
	{"ranked-results", parseRankedResults},
	{"suggestions", parseSuggestions},
	{"flat", parseFlat},
}

// Normalize converts a provider response body into an Identification. It
// tries each known shape in priority order and stops at the first one that
// yields a scientific name. The common name falls back to the scientific
// name.
func Normalize(body []byte) (domain.Identification, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return domain.Identification{}, fmt.Errorf("%w: decode: %v", domain.ErrProviderResponse, err)
	}
	for _, s := range shapes {
		id, ok := s.parse(obj)
		if !ok {
			continue
		}
		if id.CommonName == "" {
			id.CommonName = id.ScientificName
		}
		id.Source = domain.SourceProvider
		return id, nil
	}
	return domain.Identification{}, fmt.Errorf("%w: no recognised result", domain.ErrProviderResponse)
}

// {"results":[{"score":0.9,"species":{"scientificNameWithoutAuthor":...,"commonNames":[...]}}]}
func parseRankedResults(obj map[string]any) (domain.Identification, bool) {
	top, ok := firstObject(obj["results"])
	if !ok {
		return domain.Identification{}, false
	}
	species, ok := top["species"].(map[string]any)
	if !ok {
		species = top
	}
	sci := probeString(species, scientificKeys)
	if sci == "" {
		return domain.Identification{}, false
	}
	common := probeCommon(species)
	if common == "" {
		common = probeCommon(top)
	}
	return domain.Identification{ScientificName: sci, CommonName: common, Score: probeScore(top)}, true
}

// {"suggestions":[{"plant_name":...,"probability":0.8,"plant_details":{"common_names":[...]}}]}
// or the same list under result.classification.
func parseSuggestions(obj map[string]any) (domain.Identification, bool) {
	list := obj["suggestions"]
	if list == nil {
		result, _ := obj["result"].(map[string]any)
		classification, _ := result["classification"].(map[string]any)
		list = classification["suggestions"]
	}
	top, ok := firstObject(list)
	if !ok {
		return domain.Identification{}, false
	}
	sci := probeString(top, scientificKeys)
	if sci == "" {
		return domain.Identification{}, false
	}
	common := probeCommon(top)
	for _, k := range detailKeys {
		if common != "" {
			break
		}
		if details, ok := top[k].(map[string]any); ok {
			common = probeCommon(details)
		}
	}
	return domain.Identification{ScientificName: sci, CommonName: common, Score: probeScore(top)}, true
}

// {"scientific_name":...,"common_name":...,"score":...}
func parseFlat(obj map[string]any) (domain.Identification, bool) {
	sci := probeString(obj, scientificKeys)
	if sci == "" {
		return domain.Identification{}, false
	}
	return domain.Identification{ScientificName: sci, CommonName: probeCommon(obj), Score: probeScore(obj)}, true
}

func firstObject(v any) (map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	m, ok := list[0].(map[string]any)
	return m, ok
}

func probeString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func probeScore(m map[string]any) float64 {
	for _, k := range scoreKeys {
		if f, ok := m[k].(float64); ok {
			return f
		}
	}
	return 0
}

// probeCommon reads the first usable common name from any of the known
// keys, whose value may be a list, a string or a locale map.
func probeCommon(m map[string]any) string {
	for _, k := range commonKeys {
		if name := commonValue(m[k]); name != "" {
			return name
		}
	}
	return ""
}

func commonValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	case map[string]any:
		for _, loc := range localeOrder(t) {
			if name := commonValue(t[loc]); name != "" {
				return name
			}
		}
	}
	return ""
}

// localeOrder puts "en" first, then other English locales, then the rest
// alphabetically.
func localeOrder(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	rank := func(k string) int {
		switch {
		case k == "en":
			return 0
		case strings.HasPrefix(strings.ToLower(k), "en"):
			return 1
		default:
			return 2
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}
