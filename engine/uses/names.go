package uses

import "strings"

// rankTokens are taxonomic rank abbreviations and markers that make a name
// less specific than an encyclopedia title.
var rankTokens = map[string]bool{
	"sp.": true, "sp": true, "spp.": true, "spp": true,
	"var.": true, "subsp.": true, "ssp.": true, "f.": true,
	"cv.": true, "agg.": true, "aff.": true, "cf.": true,
	"x": true, "×": true,
}

// StripRank removes trailing rank tokens ("Mentha sp." → "Mentha") and cuts
// infraspecific parts ("Ocimum basilicum var. thyrsiflora" →
// "Ocimum basilicum").
func StripRank(name string) string {
	fields := strings.Fields(name)
	for i := 1; i < len(fields); i++ {
		if rankTokens[strings.ToLower(fields[i])] && i+1 < len(fields) && i >= 2 {
			fields = fields[:i]
			break
		}
	}
	for len(fields) > 1 && rankTokens[strings.ToLower(fields[len(fields)-1])] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Genus returns the first token of a scientific name, skipping a leading
// hybrid marker.
func Genus(scientific string) string {
	for _, f := range strings.Fields(scientific) {
		if f == "×" || strings.EqualFold(f, "x") {
			continue
		}
		return strings.Trim(f, ".,;")
	}
	return ""
}

// dedupe drops empty and repeated names, ignoring case.
func dedupe(names ...string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}
