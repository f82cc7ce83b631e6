package uses

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"abbreviation", "Mint, e.g. spearmint, is common. It grows fast.", []string{"Mint, e.g. spearmint, is common.", "It grows fast."}},
		{"rank abbreviation", "Ocimum sp. is aromatic. Leaves are used.", []string{"Ocimum sp. is aromatic.", "Leaves are used."}},
		{"initial", "Described by L. Linnaeus in 1753. Widely grown.", []string{"Described by L. Linnaeus in 1753.", "Widely grown."}},
		{"decimal", "Grows to 1.5 m tall. Flowers white.", []string{"Grows to 1.5 m tall.", "Flowers white."}},
		{"newline", "Heading\nBody text here.", []string{"Heading", "Body text here."}},
		{"blank", "  \n ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasKeyword(t *testing.T) {
	tests := []struct {
		sentence string
		want     bool
	}{
		{"It is used to treat coughs.", true},
		{"TREATMENT of fever is common.", true},
		{"Leaves have antioxidant properties.", true},
		{"It is used in Ayurvedic preparations.", true},
		{"The retreat was quiet.", false},
		{"It eases the common cold.", true},
		{"Extracts show anti-inflammatory activity.", true},
		{"Grows best in colder regions.", false},
		{"Its petals are painted with purple streaks.", false},
		{"The timber is cured before being sold.", false},
		{"The fruit skin turns red when ripe.", false},
		{"The plant grows in gardens.", false},
	}
	for _, tt := range tests {
		if got := HasKeyword(tt.sentence, DefaultKeywords); got != tt.want {
			t.Errorf("HasKeyword(%q) = %v, want %v", tt.sentence, got, tt.want)
		}
	}
}

func TestExtractKeepsOrderAndFilters(t *testing.T) {
	text := "Basil is a culinary herb. It is used to treat colds. Its leaves are green. Basil oil has antibacterial effects."
	got := Extract(text, DefaultKeywords, 6, 900)
	want := "It is used to treat colds. Basil oil has antibacterial effects."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractSentenceBudget(t *testing.T) {
	text := "Treats pain. Treats fever. Treats cough. Treats colds."
	got := Extract(text, DefaultKeywords, 2, 900)
	if got != "Treats pain. Treats fever." {
		t.Errorf("got %q", got)
	}
}

func TestExtractCharBudget(t *testing.T) {
	text := "Treats pain. Treats fever. Treats cough."
	got := Extract(text, DefaultKeywords, 6, 26)
	if got != "Treats pain. Treats fever." {
		t.Errorf("got %q", got)
	}
	if utf8.RuneCountInString(got) > 26 {
		t.Errorf("over budget: %d", len(got))
	}
}

func TestExtractTruncatesLongFirstSentence(t *testing.T) {
	text := "The herb is used in traditional medicine across many regions of the subcontinent for a range of ailments."
	got := Extract(text, DefaultKeywords, 6, 40)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if n := utf8.RuneCountInString(got); n > 40 {
		t.Errorf("length %d exceeds budget", n)
	}
}

func TestExtractSkipsBotanicalProse(t *testing.T) {
	text := "The species grows best in colder regions of the Himalaya. " +
		"Its petals are painted with purple streaks. " +
		"The timber is cured before being sold."
	if got := Extract(text, DefaultKeywords, 6, 900); got != "" {
		t.Errorf("expected no medicinal sentences, got %q", got)
	}
}

func TestHasKeywordStems(t *testing.T) {
	kws := []string{"digest*", "tonic"}
	if !HasKeyword("Aids digestion.", kws) {
		t.Error("stem should match a longer word")
	}
	if HasKeyword("A tonicity test.", kws) {
		t.Error("whole-word keyword matched inside a longer word")
	}
	if !HasKeyword("Used as a Tonic.", kws) {
		t.Error("whole-word keyword should match case-insensitively")
	}
}

func TestExtractNothingRelevant(t *testing.T) {
	if got := Extract("A plant. It is green.", DefaultKeywords, 6, 900); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestStripRank(t *testing.T) {
	tests := map[string]string{
		"Mentha sp.":                        "Mentha",
		"Mentha spp.":                       "Mentha",
		"Ocimum basilicum var. thyrsiflora": "Ocimum basilicum",
		"Centella asiatica subsp. asiatica": "Centella asiatica",
		"Ocimum tenuiflorum":                "Ocimum tenuiflorum",
		"Mentha × piperita":                 "Mentha × piperita",
		"":                                  "",
	}
	for in, want := range tests {
		if got := StripRank(in); got != want {
			t.Errorf("StripRank(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenus(t *testing.T) {
	tests := map[string]string{
		"Ocimum tenuiflorum": "Ocimum",
		"× Mentha piperita":  "Mentha",
		"Mentha":             "Mentha",
		"":                   "",
	}
	for in, want := range tests {
		if got := Genus(in); got != want {
			t.Errorf("Genus(%q) = %q, want %q", in, got, want)
		}
	}
}
