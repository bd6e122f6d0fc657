// Package scoring turns per-field comparison outcomes into a Fellegi-Sunter
// match weight and a classification.
//
// An agreeing field contributes ln(m/u), a disagreeing field ln((1-m)/(1-u)), and
// a missing field contributes nothing. Scoring is a pure function of its inputs;
// it never returns a partial score.
package scoring

import (
	"fmt"
	"math"

	"ssot/internal/matching/comparator"
	dErrors "ssot/pkg/domain-errors"
)

// Classification buckets a score against the decision thresholds.
type Classification string

const (
	Match    Classification = "match"
	Possible Classification = "possible"
	NonMatch Classification = "non_match"
)

func (c Classification) Valid() bool {
	return c == Match || c == Possible || c == NonMatch
}

// Parameter is the calibrated probability pair of one field.
//   - M: P(agree | same individual)
//   - U: P(agree | different individuals)
type Parameter struct {
	M float64
	U float64
}

// Validate enforces 0 < u < m < 1. Weights are undefined at the bounds and an
// agreement must be evidence for a match.
func (p Parameter) Validate(field string) error {
	if math.IsNaN(p.M) || math.IsNaN(p.U) {
		return dErrors.NewField(dErrors.CodeValidation, field, "m and u must be numbers")
	}
	if p.U <= 0 || p.M >= 1 {
		return dErrors.NewField(dErrors.CodeValidation, field,
			fmt.Sprintf("m and u must lie strictly between 0 and 1 (m=%g, u=%g)", p.M, p.U))
	}
	if p.M <= p.U {
		return dErrors.NewField(dErrors.CodeValidation, field,
			fmt.Sprintf("m must be greater than u (m=%g, u=%g)", p.M, p.U))
	}
	return nil
}

// AgreeWeight is ln(m/u).
func (p Parameter) AgreeWeight() float64 { return math.Log(p.M / p.U) }

// DisagreeWeight is ln((1-m)/(1-u)).
func (p Parameter) DisagreeWeight() float64 { return math.Log((1 - p.M) / (1 - p.U)) }

// Calibration is the read side of a calibration snapshot.
type Calibration interface {
	Parameter(field comparator.Field) (Parameter, bool)
	Version() int64
}

// Thresholds split scores into classifications: score >= Upper is a match,
// score <= Lower is a non-match, anything between is possible.
type Thresholds struct {
	Upper float64 `yaml:"upper" json:"upper"`
	Lower float64 `yaml:"lower" json:"lower"`
}

// DefaultThresholds place the all-fields-agree score (about 12.3 under default
// calibration) above Upper and the all-disagree score below Lower.
var DefaultThresholds = Thresholds{Upper: 8.0, Lower: -8.0}

func (t Thresholds) Validate() error {
	if math.IsNaN(t.Upper) || math.IsNaN(t.Lower) || math.IsInf(t.Upper, 0) || math.IsInf(t.Lower, 0) {
		return dErrors.New(dErrors.CodeValidation, "thresholds must be finite")
	}
	if t.Lower >= t.Upper {
		return dErrors.New(dErrors.CodeValidation, "lower threshold must be below upper threshold")
	}
	return nil
}

// Classify buckets score.
func (t Thresholds) Classify(score float64) Classification {
	switch {
	case score >= t.Upper:
		return Match
	case score <= t.Lower:
		return NonMatch
	default:
		return Possible
	}
}

// Contribution is one field's share of a score.
type Contribution struct {
	Field      comparator.Field     `json:"field"`
	Agreement  comparator.Agreement `json:"agreement"`
	Similarity float64              `json:"similarity"`
	Weight     float64              `json:"weight"`
}

// Result is a complete, reproducible scoring of one pair.
type Result struct {
	Score              float64        `json:"score"`
	Classification     Classification `json:"classification"`
	CalibrationVersion int64          `json:"calibration_version"`
	Contributions      []Contribution `json:"contributions"`
}

// Score computes the match weight of outcomes. Every compared field must be
// calibrated with a valid parameter, even when its outcome is missing, so that
// a configuration gap is never mistaken for missing data.
func Score(outcomes []comparator.Outcome, cal Calibration, thresholds Thresholds) (Result, error) {
	if cal == nil {
		return Result{}, dErrors.New(dErrors.CodeUncalibrated, "no calibration loaded")
	}
	if err := thresholds.Validate(); err != nil {
		return Result{}, err
	}

	result := Result{
		CalibrationVersion: cal.Version(),
		Contributions:      make([]Contribution, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		p, ok := cal.Parameter(o.Field)
		if !ok {
			return Result{}, UncalibratedFieldError(o.Field)
		}
		if err := p.Validate(string(o.Field)); err != nil {
			return Result{}, err
		}

		var w float64
		switch o.Agreement {
		case comparator.Agree:
			w = p.AgreeWeight()
		case comparator.Disagree:
			w = p.DisagreeWeight()
		case comparator.Missing:
			w = 0
		default:
			return Result{}, dErrors.NewField(dErrors.CodeValidation, string(o.Field),
				fmt.Sprintf("unknown agreement %q", o.Agreement))
		}

		result.Score += w
		result.Contributions = append(result.Contributions, Contribution{
			Field:      o.Field,
			Agreement:  o.Agreement,
			Similarity: o.Similarity,
			Weight:     w,
		})
	}
	result.Classification = thresholds.Classify(result.Score)
	return result, nil
}

// UncalibratedFieldError reports a compared field without a parameter.
func UncalibratedFieldError(f comparator.Field) error {
	return dErrors.NewField(dErrors.CodeUncalibrated, string(f),
		fmt.Sprintf("field %s has no calibration parameter", f))
}
