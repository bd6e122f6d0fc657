package models

import (
	"encoding/json"
	"strconv"
	"strings"

	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
)

// AddressKey is the payload key of the carried (not compared) address.
const AddressKey = "address"

// Payload is a submitted identity exactly as the registration flow sent it.
// It is stored verbatim and never overwritten.
type Payload map[string]any

// payloadAliases maps each canonical key to the keys used by the legacy
// registration form.
var payloadAliases = map[string][]string{
	string(comparator.FullName):  {"nama_lengkap", "name"},
	string(comparator.BirthDate): {"tanggal_lahir", "dob"},
	string(comparator.Region):    {"id_wijk", "wijk"},
	string(comparator.Phone):     {"no_telp", "telephone"},
	string(comparator.Email):     {"e_mail"},
	AddressKey:                   {"alamat"},
}

// ParsePayload decodes a raw JSON object.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload must be a JSON object")
	}
	if p == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "payload must be a JSON object")
	}
	return p, nil
}

// Lookup returns the trimmed value of key, falling back to its aliases.
func (p Payload) Lookup(key string) string {
	if v := stringValue(p[key]); v != "" {
		return v
	}
	for _, alias := range payloadAliases[key] {
		if v := stringValue(p[alias]); v != "" {
			return v
		}
	}
	return ""
}

// Record extracts the comparable fields.
func (p Payload) Record() comparator.Record {
	var r comparator.Record
	for _, f := range comparator.Fields {
		r = r.With(f, p.Lookup(string(f)))
	}
	return r
}

func (p Payload) Address() string {
	return p.Lookup(AddressKey)
}

// Validate checks that the payload can become a master identity.
//
// Invariants:
//   - full_name is present
//   - birth_date, when present, is a recognizable date
func (p Payload) Validate() error {
	if len(p) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is empty")
	}
	r := p.Record()
	if r.FullName == "" {
		return dErrors.NewField(dErrors.CodeValidation, string(comparator.FullName), "full_name is required")
	}
	if r.BirthDate != "" {
		if _, ok := comparator.ParseDate(r.BirthDate); !ok {
			return dErrors.NewField(dErrors.CodeValidation, string(comparator.BirthDate), "birth_date is not a valid date")
		}
	}
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}
