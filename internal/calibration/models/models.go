package models

import (
	"time"

	"ssot/internal/matching/comparator"
	"ssot/internal/matching/scoring"
	dErrors "ssot/pkg/domain-errors"
)

// Parameter is the stored calibration of one comparable field.
type Parameter struct {
	Field     comparator.Field `json:"field"`
	M         float64          `json:"m"`
	U         float64          `json:"u"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Validate checks the field name and the 0 < u < m < 1 invariant.
func (p Parameter) Validate() error {
	if !p.Field.Valid() {
		return dErrors.NewField(dErrors.CodeValidation, string(p.Field), "unknown comparable field")
	}
	return scoring.Parameter{M: p.M, U: p.U}.Validate(string(p.Field))
}

// ParameterInput is an operator-supplied m/u pair.
type ParameterInput struct {
	Field string  `json:"field"`
	M     float64 `json:"m"`
	U     float64 `json:"u"`
}

// Defaults is the initial calibration of a new deployment.
var Defaults = []Parameter{
	{Field: comparator.FullName, M: 0.95, U: 0.05},
	{Field: comparator.BirthDate, M: 0.90, U: 0.10},
	{Field: comparator.Email, M: 0.99, U: 0.01},
	{Field: comparator.Phone, M: 0.90, U: 0.10},
	{Field: comparator.Region, M: 0.60, U: 0.40},
}

// Snapshot is an immutable, versioned view of all calibration parameters.
// Scoring holds one snapshot for its whole computation so a concurrent update
// can never mix old and new parameters within a score.
type Snapshot struct {
	version int64
	params  map[comparator.Field]Parameter
}

// NewSnapshot copies params into a new snapshot.
func NewSnapshot(version int64, params []Parameter) *Snapshot {
	m := make(map[comparator.Field]Parameter, len(params))
	for _, p := range params {
		m[p.Field] = p
	}
	return &Snapshot{version: version, params: m}
}

func (s *Snapshot) Version() int64 { return s.version }

// Parameter implements scoring.Calibration.
func (s *Snapshot) Parameter(f comparator.Field) (scoring.Parameter, bool) {
	p, ok := s.params[f]
	if !ok {
		return scoring.Parameter{}, false
	}
	return scoring.Parameter{M: p.M, U: p.U}, true
}

// Get returns the stored parameter of f.
func (s *Snapshot) Get(f comparator.Field) (Parameter, bool) {
	p, ok := s.params[f]
	return p, ok
}

// Parameters lists parameters in comparable-field order.
func (s *Snapshot) Parameters() []Parameter {
	out := make([]Parameter, 0, len(s.params))
	for _, f := range comparator.Fields {
		if p, ok := s.params[f]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Snapshot) Empty() bool { return len(s.params) == 0 }

// Merge returns the parameter set that results from applying updates.
func (s *Snapshot) Merge(updates []Parameter) []Parameter {
	merged := make(map[comparator.Field]Parameter, len(s.params))
	for f, p := range s.params {
		merged[f] = p
	}
	for _, p := range updates {
		merged[p.Field] = p
	}
	return NewSnapshot(s.version, mapValues(merged)).Parameters()
}

func mapValues(m map[comparator.Field]Parameter) []Parameter {
	out := make([]Parameter, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}
