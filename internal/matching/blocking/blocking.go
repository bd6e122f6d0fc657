// Package blocking derives the keys that group identities into comparison
// blocks. Only identities sharing at least one key with a submission are scored
// against it, so a true duplicate whose keys all differ is never a candidate.
package blocking

import (
	"strings"
	"unicode/utf8"

	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
)

// Kind names one blocking strategy.
type Kind string

const (
	Region       Kind = "region"
	BirthYear    Kind = "birth_year"
	NameInitials Kind = "name_initials"
	PhoneSuffix  Kind = "phone_suffix"
	Email        Kind = "email"
)

// Kinds lists every supported kind. Stores index all of them so the configured
// subset can change without reindexing.
var Kinds = []Kind{Region, BirthYear, NameInitials, PhoneSuffix, Email}

// DefaultKinds is the blocking configuration of a new deployment.
var DefaultKinds = []Kind{Region, BirthYear, NameInitials}

const phoneSuffixLen = 6

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKinds validates configured kind names, dropping duplicates.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one blocking key is required")
	}
	seen := make(map[Kind]bool, len(names))
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k := Kind(strings.TrimSpace(n))
		if !k.Valid() {
			return nil, dErrors.NewField(dErrors.CodeValidation, "blocking_keys", "unknown blocking key "+n)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}

// Key returns the "kind:value" key of r, or false when r lacks the data.
func Key(k Kind, r comparator.Record) (string, bool) {
	var v string
	switch k {
	case Region:
		v = comparator.NormalizeRegion(r.Region)
	case BirthYear:
		if t, ok := comparator.ParseDate(r.BirthDate); ok {
			v = t.Format("2006")
		}
	case NameInitials:
		v = initials(comparator.NormalizeName(r.FullName))
	case PhoneSuffix:
		p := comparator.NormalizePhone(r.Phone)
		if len(p) >= phoneSuffixLen {
			v = p[len(p)-phoneSuffixLen:]
		}
	case Email:
		v = comparator.NormalizeEmail(r.Email)
	}
	if v == "" {
		return "", false
	}
	return string(k) + ":" + v, true
}

// Keys returns the keys of r for kinds, in order.
func Keys(r comparator.Record, kinds []Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if key, ok := Key(k, r); ok {
			out = append(out, key)
		}
	}
	return out
}

// AllKeys returns the keys of r for every supported kind.
func AllKeys(r comparator.Record) []string {
	return Keys(r, Kinds)
}

// initials takes the first rune of the first and last name tokens, so
// middle names and their omission do not split a block.
func initials(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(parts[0])
	if len(parts) == 1 {
		return string(first)
	}
	last, _ := utf8.DecodeRuneInString(parts[len(parts)-1])
	return string(first) + string(last)
}
