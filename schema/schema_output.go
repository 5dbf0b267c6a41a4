package schema

import (
	"cmp"
	"math"
	"slices"
)

// RankedOutlier adds presentation data to an OutlierRecord.
type RankedOutlier struct {
	Rank     int     `json:"rank"`
	Label    string  `json:"label"`
	Severity float64 `json:"severity"` // |num_sigma| over the sigma gate of the metric
	OutlierRecord
}

// SpectrumResult is the segmented spectral power of one signal.
type SpectrumResult struct {
	Freq  []float64 `json:"freq"`
	Power []float64 `json:"power"`
}

// PeakBin returns the non-DC bin with the largest power, or -1 if there is none.
// The DC bin is the zero frequency, or bin 0 when Freq is absent.
func (s SpectrumResult) PeakBin() int {
	best := -1
	for i := range s.Power {
		if s.isDC(i) {
			continue
		}
		if best < 0 || s.Power[i] > s.Power[best] {
			best = i
		}
	}
	return best
}

func (s SpectrumResult) isDC(i int) bool {
	if len(s.Freq) != len(s.Power) {
		return i == 0
	}
	return s.Freq[i] == 0
}

// GetPlainLabel returns a plain text label for a severity ratio.
func GetPlainLabel(severity float64) string {
	switch severity = math.Abs(severity); {
	case severity >= 4:
		return "Critical"
	case severity >= 2:
		return "High"
	case severity >= 1:
		return "Moderate"
	default:
		return "Low"
	}
}

// RankOutliers orders records by descending severity and labels them.
// sigmaGate returns the sigma threshold a metric was gated at.
func RankOutliers(records []OutlierRecord, sigmaGate func(Metric) float64) []RankedOutlier {
	output := make([]RankedOutlier, len(records))
	for i, r := range records {
		severity := math.Abs(r.NumSigma)
		if gate := sigmaGate(r.Metric); gate > 0 {
			severity /= gate
		}
		output[i] = RankedOutlier{Severity: severity, Label: GetPlainLabel(severity), OutlierRecord: r}
	}
	slices.SortStableFunc(output, func(a, b RankedOutlier) int {
		return cmp.Compare(b.Severity, a.Severity)
	})
	for i := range output {
		output[i].Rank = i + 1
	}
	return output
}
