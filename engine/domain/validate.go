package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxImageBytes bounds the size of an image accepted by the engine.
const MaxImageBytes = 20 << 20

const maxNameLength = 200

// ValidateImage performs cheap checks before any decoding happens.
func ValidateImage(image []byte) error {
	if len(image) == 0 {
		return NewValidationError("image", "", ErrUnreadableImage)
	}
	if len(image) > MaxImageBytes {
		return NewValidationError("image", "too large", ErrUnreadableImage)
	}
	return nil
}

// ValidateHerbRecord checks a record before it is written to the catalog.
func ValidateHerbRecord(h HerbRecord) error {
	if strings.TrimSpace(h.ID) == "" {
		return NewValidationError("id", h.ID, ErrInvalidRecord)
	}
	common := strings.TrimSpace(h.CommonName)
	scientific := strings.TrimSpace(h.ScientificName)
	if common == "" && scientific == "" {
		return NewValidationError("name", "", ErrInvalidRecord)
	}
	if utf8.RuneCountInString(common) > maxNameLength {
		return NewValidationError("common_name", common[:32], ErrInvalidRecord)
	}
	if utf8.RuneCountInString(scientific) > maxNameLength {
		return NewValidationError("scientific_name", scientific[:32], ErrInvalidRecord)
	}
	return nil
}

// DisplayName picks the common name, falling back to the scientific name.
func DisplayName(common, scientific string) string {
	if c := strings.TrimSpace(common); c != "" {
		return c
	}
	return strings.TrimSpace(scientific)
}
