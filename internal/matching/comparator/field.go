// Package comparator decides, field by field, whether two identity records agree.
//
// Comparators are pure and deterministic: the same pair of values always yields
// the same Outcome, and a Set always reports fields in the order of Fields.
package comparator

import (
	dErrors "ssot/pkg/domain-errors"
)

// Field is a comparable identity attribute.
type Field string

const (
	FullName  Field = "full_name"
	BirthDate Field = "birth_date"
	Region    Field = "region"
	Phone     Field = "phone"
	Email     Field = "email"
)

// Fields lists every comparable field in evaluation order.
var Fields = []Field{FullName, BirthDate, Region, Phone, Email}

func (f Field) String() string { return string(f) }

// Valid reports whether f is a known comparable field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField validates a field name received from an operator.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !f.Valid() {
		return "", dErrors.NewField(dErrors.CodeValidation, s, "unknown comparable field")
	}
	return f, nil
}

// Agreement is the per-field comparison result.
type Agreement string

const (
	Agree    Agreement = "agree"
	Disagree Agreement = "disagree"
	// Missing means at least one side had no usable value.
	Missing Agreement = "missing"
)

// Outcome is the comparison of one field across two records.
type Outcome struct {
	Field      Field     `json:"field"`
	Agreement  Agreement `json:"agreement"`
	Similarity float64   `json:"similarity"`
}

// Record holds the raw comparable values of one identity.
type Record struct {
	FullName  string `json:"full_name,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Region    string `json:"region,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Value returns the raw value of f.
func (r Record) Value(f Field) string {
	switch f {
	case FullName:
		return r.FullName
	case BirthDate:
		return r.BirthDate
	case Region:
		return r.Region
	case Phone:
		return r.Phone
	case Email:
		return r.Email
	}
	return ""
}

// With returns a copy of r with f set to v.
func (r Record) With(f Field, v string) Record {
	switch f {
	case FullName:
		r.FullName = v
	case BirthDate:
		r.BirthDate = v
	case Region:
		r.Region = v
	case Phone:
		r.Phone = v
	case Email:
		r.Email = v
	}
	return r
}
