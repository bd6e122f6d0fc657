// Package merge decides, field by field, what a master identity looks like
// after a quarantined submission is folded into it.
package merge

import (
	"sort"
	"strings"
	"time"

	"ssot/internal/identity/models"
	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
)

// Rule records why a field has its merged value.
type Rule string

const (
	KeptMaster        Rule = "kept_master"
	AdoptedSubmission Rule = "adopted_submission"
	Override          Rule = "override"
	Unchanged         Rule = "unchanged"
)

// Fields lists every mergeable field: the comparable fields plus address.
var Fields = append(append([]string{}, fieldNames(comparator.Fields)...), models.AddressKey)

func fieldNames(fs []comparator.Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

// FieldChange documents one field whose master and submission values differ,
// or that an operator overrode.
type FieldChange struct {
	Field           string `json:"field"`
	MasterValue     string `json:"master_value"`
	SubmissionValue string `json:"submission_value"`
	Chosen          string `json:"chosen"`
	Rule            Rule   `json:"rule"`
}

// Report is the audit record of one merge.
type Report struct {
	Changes   []FieldChange     `json:"changes"`
	Overrides map[string]string `json:"overrides,omitempty"`
	Actor     string            `json:"actor"`
}

// Changed reports whether any field of the master took a new value.
func (r Report) Changed() bool {
	for _, c := range r.Changes {
		if c.Chosen != c.MasterValue {
			return true
		}
	}
	return false
}

// ValidateOverrides rejects unknown fields and empty values. Clearing a field
// through a merge is not allowed.
func ValidateOverrides(overrides map[string]string) error {
	for _, field := range sortedKeys(overrides) {
		if !isMergeable(field) {
			return dErrors.NewField(dErrors.CodeValidation, field, "unknown field in field_overrides")
		}
		v := strings.TrimSpace(overrides[field])
		if v == "" {
			return dErrors.NewField(dErrors.CodeValidation, field, "field override must not be empty")
		}
		if field == string(comparator.BirthDate) {
			if _, ok := comparator.ParseDate(v); !ok {
				return dErrors.NewField(dErrors.CodeValidation, field, "field override is not a valid date")
			}
		}
	}
	return nil
}

// Apply returns the merged master and the report. The input master is not
// modified.
//
// Per field:
//   - an override wins
//   - a present master value is kept
//   - an empty master value adopts the submission's
func Apply(master *models.Master, payload models.Payload, overrides map[string]string, actor string, now time.Time) (*models.Master, Report, error) {
	if err := ValidateOverrides(overrides); err != nil {
		return nil, Report{}, err
	}

	merged := master.Clone()
	report := Report{Actor: actor, Changes: []FieldChange{}}
	if len(overrides) > 0 {
		report.Overrides = make(map[string]string, len(overrides))
	}

	for _, field := range Fields {
		mv := master.Value(field)
		sv := payload.Lookup(field)
		change := FieldChange{Field: field, MasterValue: mv, SubmissionValue: sv}

		if ov, ok := overrides[field]; ok {
			ov = strings.TrimSpace(ov)
			report.Overrides[field] = ov
			change.Chosen, change.Rule = ov, Override
		} else {
			if mv == sv {
				continue
			}
			switch {
			case mv == "":
				change.Chosen, change.Rule = sv, AdoptedSubmission
			case sv == "":
				change.Chosen, change.Rule = mv, Unchanged
			default:
				change.Chosen, change.Rule = mv, KeptMaster
			}
		}
		merged.SetValue(field, change.Chosen)
		report.Changes = append(report.Changes, change)
	}

	if report.Changed() {
		merged.UpdatedAt = now
	}
	return merged, report, nil
}

func isMergeable(field string) bool {
	for _, f := range Fields {
		if f == field {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
