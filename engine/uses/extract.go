package uses

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultKeywords mark sentences with medicinal or biological relevance.
// Matching is case-insensitive on whole words. A trailing "*" turns an
// entry into a stem that matches any word starting with it.
var DefaultKeywords = []string{
	"medicin*", "treat", "treats", "treated", "treating", "treatment*",
	"remed*", "therap*", "cures", "curative", "heal", "heals", "healing",
	"relieve", "relieves", "relieving", "relief", "pain relief", "painkiller*",
	"antioxidant*", "anti-inflammatory", "antiinflammatory", "antibacterial", "antimicrobial",
	"antifungal", "antiviral", "antiseptic", "analgesic", "antispasmodic",
	"digestion", "digestive", "indigestion", "respiratory", "cough*", "common cold", "colds",
	"fever*", "asthma", "bronchitis", "wound healing", "wounds",
	"skin condition*", "skin disease*", "skin infection*", "skin disorder*", "inflammat*",
	"diabet*", "blood sugar", "blood pressure", "cholesterol", "immun*", "nausea",
	"diuretic", "laxative", "sedative", "tonic", "astringent", "expectorant",
	"carminative", "ayurved*", "herbal", "traditional medicine", "folk medicine",
}

// abbreviations do not end a sentence when followed by a period.
var abbreviations = map[string]bool{
	"e.g": true, "i.e": true, "etc": true, "approx": true, "cf": true, "vs": true,
	"sp": true, "spp": true, "var": true, "subsp": true, "ssp": true, "cv": true,
	"st": true, "dr": true, "mt": true, "no": true, "fig": true, "ca": true,
}

// SplitSentences breaks prose into trimmed sentences. Terminal punctuation
// is kept. Line breaks always end a sentence.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range text {
		switch r {
		case '\n':
			emit(i)
		case '.', '!', '?':
			next := i + utf8.RuneLen(r)
			if next < len(text) {
				nr, _ := utf8.DecodeRuneInString(text[next:])
				if !unicode.IsSpace(nr) {
					continue
				}
			}
			if r == '.' && isAbbreviation(text[start:i]) {
				continue
			}
			emit(next)
		}
	}
	emit(len(text))
	return out
}

// isAbbreviation reports whether the word before a period is a known
// abbreviation or a single-letter initial.
func isAbbreviation(before string) bool {
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "(\"'"))
	if utf8.RuneCountInString(last) == 1 {
		return true
	}
	return abbreviations[last]
}

// HasKeyword reports whether sentence contains one of keywords as a whole
// word or phrase. Entries ending in "*" match as word-start stems.
func HasKeyword(sentence string, keywords []string) bool {
	lower := strings.ToLower(sentence)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		stem := strings.HasSuffix(kw, "*")
		kw = strings.TrimSuffix(kw, "*")
		if kw == "" {
			continue
		}
		for off := 0; ; {
			i := strings.Index(lower[off:], kw)
			if i < 0 {
				break
			}
			start, end := off+i, off+i+len(kw)
			if wordEdge(lower[:start], true) && (stem || wordEdge(lower[end:], false)) {
				return true
			}
			off = end
		}
	}
	return false
}

// wordEdge reports whether s ends (before) or starts (after) at a word
// boundary.
func wordEdge(s string, before bool) bool {
	if s == "" {
		return true
	}
	var r rune
	if before {
		r, _ = utf8.DecodeLastRuneInString(s)
	} else {
		r, _ = utf8.DecodeRuneInString(s)
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Extract keeps the sentences of text that carry a keyword, in their
// original order, until maxSentences or maxChars is reached. An empty
// result means nothing relevant was found.
func Extract(text string, keywords []string, maxSentences, maxChars int) string {
	var (
		b     strings.Builder
		count int
		chars int
	)
	for _, s := range SplitSentences(text) {
		if maxSentences > 0 && count >= maxSentences {
			break
		}
		if !HasKeyword(s, keywords) {
			continue
		}
		if maxChars > 0 {
			need := utf8.RuneCountInString(s)
			if count > 0 {
				need++
			}
			if chars+need > maxChars {
				if count == 0 {
					b.WriteString(truncateWords(s, maxChars))
					count++
				}
				break
			}
		}
		if count > 0 {
			b.WriteByte(' ')
			chars++
		}
		b.WriteString(s)
		chars += utf8.RuneCountInString(s)
		count++
	}
	return b.String()
}

// truncateWords cuts s to at most max runes at a word boundary and marks
// the cut with an ellipsis.
func truncateWords(s string, max int) string {
	const ellipsis = "..."
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	runes := []rune(s)
	cut := max - len(ellipsis)
	if cut > len(runes) {
		cut = len(runes)
	}
	head := string(runes[:cut])
	if i := strings.LastIndexFunc(head, unicode.IsSpace); i > 0 {
		head = head[:i]
	}
	return strings.TrimRight(head, " ,;:") + ellipsis
}
