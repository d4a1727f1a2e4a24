package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrDatasetEmpty is returned when the dataset id is empty or whitespace-only.
var ErrDatasetEmpty = errors.New("dataset is required")

// ErrDatasetTooLong is returned when the dataset id exceeds the maximum length.
var ErrDatasetTooLong = errors.New("dataset too long")

// ErrDatasetInvalidChars is returned when the dataset id contains disallowed characters.
var ErrDatasetInvalidChars = errors.New("dataset contains invalid characters")

// ErrLocationEmpty is returned when a location filter is empty after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooLong is returned when a location filter exceeds the maximum length.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when a location filter contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ValidateDataset trims the input, enforces a length bound, and restricts to
// characters that appear in real dataset ids across the providers: letters,
// digits, hyphen, underscore, dot, and slash (Census paths like "2020/dec/pl").
// Returns the trimmed id or an error suitable for 400 responses.
func ValidateDataset(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrDatasetEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrDatasetTooLong
	}
	for _, c := range r {
		if !isAllowedDatasetRune(c) {
			return "", ErrDatasetInvalidChars
		}
	}
	return s, nil
}

func isAllowedDatasetRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '-', '_', '.', '/':
		return true
	}
	return false
}

// ValidateLocation trims a location filter and restricts it to letters
// (Unicode, so Chinese division names pass), digits, space, comma, hyphen.
func ValidateLocation(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrLocationEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-':
		return true
	}
	return false
}
