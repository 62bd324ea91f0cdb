package ecm

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// A Result maps hierarchy transitions ("L1-L2", "L2-L3", "L3-MEM") to the
// predicted cycles per cache line of work.
type Result map[string]float64

// Labels returns the transitions of the result in hierarchy order. Labels
// sort lexically in level order because the hierarchy never exceeds nine
// levels and "MEM" sorts after digit-led transition names.
func (r Result) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return labels
}

func (r Result) String() string {
	var b strings.Builder
	for i, label := range r.Labels() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %.1f cy/CL", label, r[label])
	}

	return b.String()
}

// A Deviation reports one metric where a prediction differs from its
// expected value. Fatal deviations exceed the comparison tolerance.
type Deviation struct {
	Metric string
	Want   float64
	Got    float64
	Fatal  bool
}

func (d Deviation) String() string {
	verdict := "within tolerance"
	if d.Fatal {
		verdict = "exceeds tolerance"
	}

	return fmt.Sprintf("%s: predicted %.1f, expected %.1f, %s",
		d.Metric, d.Got, d.Want, verdict)
}

// Compare checks a prediction against expected values. It returns one
// Deviation per differing metric, marking those off by more than the
// relative tolerance as fatal. Expected metrics absent from the prediction
// are ignored, as are extra predicted metrics.
func Compare(got Result, want map[string]float64, tolerance float64) []Deviation {
	var deviations []Deviation

	for _, label := range got.Labels() {
		expected, ok := want[label]
		if !ok {
			continue
		}

		predicted := got[label]
		diff := math.Abs(predicted - expected)
		if diff == 0 {
			continue
		}

		deviations = append(deviations, Deviation{
			Metric: label,
			Want:   expected,
			Got:    predicted,
			Fatal:  diff > math.Abs(expected)*tolerance,
		})
	}

	return deviations
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
