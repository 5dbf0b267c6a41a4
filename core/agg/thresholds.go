package agg

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/huangsam/visqa/schema"
)

// Threshold is the dual gate of one metric: a deviation must exceed both.
type Threshold struct {
	Sigma    float64 `json:"sigma" mapstructure:"sigma"`
	Physical float64 `json:"physical" mapstructure:"physical"`
}

// Thresholds holds one validated Threshold per metric. The zero value is unusable;
// build it with NewThresholds or DefaultThresholds.
type Thresholds struct {
	byMetric map[schema.Metric]Threshold
}

// defaultThresholds are in sigma and in %/GHz, %, deg/GHz and deg respectively.
var defaultThresholds = map[schema.Metric]Threshold{
	schema.AmpSlope:       {Sigma: 25, Physical: 5},
	schema.AmpIntercept:   {Sigma: 53, Physical: 10},
	schema.PhaseSlope:     {Sigma: 40, Physical: 3},
	schema.PhaseIntercept: {Sigma: 60.5, Physical: 6},
}

// metricAliases are the short names accepted in overrides.
var metricAliases = map[string]schema.Metric{
	"amp_slope":       schema.AmpSlope,
	"amp_intercept":   schema.AmpIntercept,
	"phase_slope":     schema.PhaseSlope,
	"phase_intercept": schema.PhaseIntercept,
}

// DefaultThresholds returns the standard gates.
func DefaultThresholds() Thresholds {
	return Thresholds{byMetric: maps.Clone(defaultThresholds)}
}

// NewThresholds starts from the defaults and applies overrides. Every gate must be
// positive and finite.
func NewThresholds(overrides map[schema.Metric]Threshold) (Thresholds, error) {
	th := DefaultThresholds()
	for metric, gate := range overrides {
		if _, ok := defaultThresholds[metric]; !ok {
			return Thresholds{}, fmt.Errorf("%w: unknown metric %q", schema.ErrInvalidConfiguration, metric)
		}
		if !(gate.Sigma > 0) || !(gate.Physical > 0) || math.IsInf(gate.Sigma, 0) || math.IsInf(gate.Physical, 0) {
			return Thresholds{}, fmt.Errorf("%w: %s thresholds must be positive, got sigma=%g physical=%g",
				schema.ErrInvalidConfiguration, metric, gate.Sigma, gate.Physical)
		}
		th.byMetric[metric] = gate
	}
	return th, nil
}

// For returns the gate of metric.
func (t Thresholds) For(metric schema.Metric) Threshold {
	if gate, ok := t.byMetric[metric]; ok {
		return gate
	}
	return defaultThresholds[metric]
}

// All returns a copy of every gate.
func (t Thresholds) All() map[schema.Metric]Threshold {
	out := make(map[schema.Metric]Threshold, len(schema.AllMetrics))
	for _, m := range schema.AllMetrics {
		out[m] = t.For(m)
	}
	return out
}

// ResolveMetric maps a short alias or a full metric name to a Metric.
func ResolveMetric(name string) (schema.Metric, error) {
	name = strings.TrimSpace(name)
	if m, ok := metricAliases[name]; ok {
		return m, nil
	}
	if _, ok := defaultThresholds[schema.Metric(name)]; ok {
		return schema.Metric(name), nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", schema.ErrInvalidConfiguration, name)
}

// ParseThresholdOverrides parses "amp_slope:25/5,phase_intercept:60.5/6".
func ParseThresholdOverrides(s string) (map[schema.Metric]Threshold, error) {
	out := make(map[schema.Metric]Threshold)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for part := range strings.SplitSeq(s, ",") {
		name, values, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: threshold override %q must be metric:sigma/physical", schema.ErrInvalidConfiguration, part)
		}
		metric, err := ResolveMetric(name)
		if err != nil {
			return nil, err
		}
		sigmaStr, physStr, ok := strings.Cut(values, "/")
		if !ok {
			return nil, fmt.Errorf("%w: threshold override %q must be metric:sigma/physical", schema.ErrInvalidConfiguration, part)
		}
		sigma, err := strconv.ParseFloat(strings.TrimSpace(sigmaStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: sigma threshold %q: %v", schema.ErrInvalidConfiguration, sigmaStr, err)
		}
		phys, err := strconv.ParseFloat(strings.TrimSpace(physStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: physical threshold %q: %v", schema.ErrInvalidConfiguration, physStr, err)
		}
		out[metric] = Threshold{Sigma: sigma, Physical: phys}
	}
	return out, nil
}
