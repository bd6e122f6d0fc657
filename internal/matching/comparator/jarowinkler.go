package comparator

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Names reach the metric already case-folded and stripped of diacritics.
var nameMetric = &metrics.JaroWinkler{CaseSensitive: true}

// jaroWinkler returns the Jaro-Winkler similarity of a and b in [0,1].
func jaroWinkler(a, b string) float64 {
	return strutil.Similarity(a, b, nameMetric)
}
