package comparator

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
}

// NormalizeName folds case, strips diacritics and punctuation and collapses
// whitespace, so "Siti  Nurhaliza," and "siti nurhaliza" compare equal.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '.' || r == '\'':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParseDate parses a birth date in any accepted layout.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate returns the date as YYYY-MM-DD, or the trimmed input when it
// cannot be parsed.
func NormalizeDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(s)
}

// NormalizePhone keeps digits only and rewrites the 62 country prefix to the
// domestic 0 prefix.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "62") && len(digits) > 9 {
		digits = "0" + digits[2:]
	}
	return digits
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeRegion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Normalize applies the normalization for f.
func Normalize(f Field, s string) string {
	switch f {
	case FullName:
		return NormalizeName(s)
	case BirthDate:
		return NormalizeDate(s)
	case Region:
		return NormalizeRegion(s)
	case Phone:
		return NormalizePhone(s)
	case Email:
		return NormalizeEmail(s)
	}
	return strings.TrimSpace(s)
}
