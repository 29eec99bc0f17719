// Package evaluate screens one document's extracted fields for low
// confidence, benchmark implausibility, and missing critical data. The
// evaluator is pure: it emits issues and leaves persistence to the caller.
package evaluate

import (
	"fmt"
	"math"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Options carries the evaluation thresholds. Zero values fall back to the
// shipped defaults so a partially filled Options stays safe.
type Options struct {
	MinConfidence        float64 // low-confidence floor, default 70
	AutoResolveThreshold float64 // silent-accept ceiling, default 95
	MaxBenchmarkVariance float64 // tolerated fraction beyond benchmark bounds, default 0.20
}

func (o Options) withDefaults() Options {
	if o.MinConfidence == 0 {
		o.MinConfidence = 70
	}
	if o.AutoResolveThreshold == 0 {
		o.AutoResolveThreshold = 95
	}
	if o.MaxBenchmarkVariance == 0 {
		o.MaxBenchmarkVariance = 0.20
	}
	return o
}

// Result is the outcome of evaluating one document.
type Result struct {
	Issues            []model.Issue
	AutoResolved      []string // fields accepted despite a would-be flag, on very high confidence
	OverallConfidence float64
}

// Evaluate applies the screening rules independently per field; multiple
// issues per field are possible. A field whose value cannot participate in a
// given check is skipped by that check only.
func Evaluate(dealID string, fields map[string]model.ExtractedField, benchmarks map[string]model.BenchmarkRange, critical model.CriticalFields, opts Options) Result {
	opts = opts.withDefaults()

	var res Result
	for name, f := range fields {
		isCritical := critical[name]

		// Missing critical data outranks everything else for this field.
		if f.Value.IsMissing() {
			if isCritical {
				res.Issues = append(res.Issues, model.Issue{
					DealID:     dealID,
					DocumentID: f.DocumentID,
					FieldName:  name,
					Kind:       model.IssueMissing,
					Priority:   model.PriorityFor(model.IssueMissing, true, 0),
					Reason:     "critical field missing from extraction",
					Status:     model.IssuePending,
				})
			}
			continue
		}

		flaggable := fieldFlags(dealID, name, f, benchmarks, isCritical, opts)

		// Very high extraction confidence silently accepts a field that one
		// of the checks would otherwise flag.
		if f.Confidence >= opts.AutoResolveThreshold {
			if len(flaggable) > 0 {
				res.AutoResolved = append(res.AutoResolved, name)
			}
			continue
		}

		res.Issues = append(res.Issues, flaggable...)
	}

	res.OverallConfidence = OverallConfidence(fields, critical)
	return res
}

// fieldFlags runs the per-field checks that auto-resolve can override.
func fieldFlags(dealID, name string, f model.ExtractedField, benchmarks map[string]model.BenchmarkRange, isCritical bool, opts Options) []model.Issue {
	var issues []model.Issue

	if f.Confidence > 0 && f.Confidence < opts.MinConfidence {
		issues = append(issues, model.Issue{
			DealID:          dealID,
			DocumentID:      f.DocumentID,
			FieldName:       name,
			Kind:            model.IssueLowConfidence,
			Priority:        model.PriorityFor(model.IssueLowConfidence, isCritical, f.Confidence),
			Reason:          fmt.Sprintf("extraction confidence %.0f below threshold %.0f", f.Confidence, opts.MinConfidence),
			SuggestedValues: f.Alternatives,
			Status:          model.IssuePending,
		})
	}

	if f.Value.Kind == model.ValueNumber {
		if r, ok := benchmarks[name]; ok {
			if variance := BenchmarkVariance(f.Value.Number, r); math.Abs(variance) > opts.MaxBenchmarkVariance {
				rr := r
				issues = append(issues, model.Issue{
					DealID:          dealID,
					DocumentID:      f.DocumentID,
					FieldName:       name,
					Kind:            model.IssueOutOfRange,
					Priority:        model.PriorityFor(model.IssueOutOfRange, isCritical, f.Confidence),
					Reason:          rangeReason(f.Value.Number, variance, r),
					SuggestedValues: []model.FieldValue{model.NumberValue(r.Median)},
					BenchmarkRange:  &rr,
					Status:          model.IssuePending,
				})
			}
		}
	}

	return issues
}

// BenchmarkVariance is the fractional distance of value beyond the nearest
// benchmark bound: negative below min, positive above max, zero inside the
// envelope.
func BenchmarkVariance(value float64, r model.BenchmarkRange) float64 {
	switch {
	case value < r.Min && r.Min != 0:
		return (value - r.Min) / r.Min
	case value > r.Max && r.Max != 0:
		return (value - r.Max) / r.Max
	default:
		return 0
	}
}

func rangeReason(value, variance float64, r model.BenchmarkRange) string {
	pct := math.Abs(variance) * 100
	if variance < 0 {
		return fmt.Sprintf("value %s is %.1f%% below benchmark minimum %s",
			model.NumberValue(value), pct, model.NumberValue(r.Min))
	}
	return fmt.Sprintf("value %s is %.1f%% above benchmark maximum %s",
		model.NumberValue(value), pct, model.NumberValue(r.Max))
}

// OverallConfidence is the confidence-weighted mean over all fields with a
// known confidence, weighting critical fields double. A document precise on
// the numbers that matter downstream scores higher than one precise on
// trivia.
func OverallConfidence(fields map[string]model.ExtractedField, critical model.CriticalFields) float64 {
	var sum, weight float64
	for name, f := range fields {
		if f.Confidence <= 0 {
			continue
		}
		w := 1.0
		if critical[name] {
			w = 2.0
		}
		sum += f.Confidence * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
