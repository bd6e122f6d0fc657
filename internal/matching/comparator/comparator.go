package comparator

// DefaultNameAgreement is the Jaro-Winkler similarity at or above which two
// normalized names agree.
const DefaultNameAgreement = 0.92

// Set compares every comparable field of two records.
type Set struct {
	nameAgreement float64
}

type Option func(*Set)

// WithNameAgreement overrides the name similarity threshold. Values outside
// (0,1] are ignored.
func WithNameAgreement(threshold float64) Option {
	return func(s *Set) {
		if threshold > 0 && threshold <= 1 {
			s.nameAgreement = threshold
		}
	}
}

func NewSet(opts ...Option) *Set {
	s := &Set{nameAgreement: DefaultNameAgreement}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NameAgreement returns the active name similarity threshold.
func (s *Set) NameAgreement() float64 { return s.nameAgreement }

// Compare returns one outcome per field, in the order of Fields.
func (s *Set) Compare(a, b Record) []Outcome {
	out := make([]Outcome, 0, len(Fields))
	for _, f := range Fields {
		out = append(out, s.CompareField(f, a.Value(f), b.Value(f)))
	}
	return out
}

// CompareField compares two raw values of f.
func (s *Set) CompareField(f Field, a, b string) Outcome {
	na, nb := Normalize(f, a), Normalize(f, b)
	if na == "" || nb == "" {
		return Outcome{Field: f, Agreement: Missing}
	}

	if f == FullName {
		sim := jaroWinkler(na, nb)
		if sim >= s.nameAgreement {
			return Outcome{Field: f, Agreement: Agree, Similarity: sim}
		}
		return Outcome{Field: f, Agreement: Disagree, Similarity: sim}
	}

	if na == nb {
		return Outcome{Field: f, Agreement: Agree, Similarity: 1}
	}
	return Outcome{Field: f, Agreement: Disagree, Similarity: 0}
}
