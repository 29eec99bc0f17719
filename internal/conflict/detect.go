package conflict

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Entry is one document's observation of a field, as fed to Detect.
type Entry struct {
	DocumentID string
	Value      model.FieldValue
	Confidence float64
	PeriodEnd  *time.Time
}

// Options carries the detection thresholds.
type Options struct {
	VarianceThreshold float64              // fraction of disagreement before flagging, default 0.10
	CriticalFields    model.CriticalFields // fields graded on the stricter severity bands
}

func (o Options) withDefaults() Options {
	if o.VarianceThreshold == 0 {
		o.VarianceThreshold = 0.10
	}
	return o
}

// confidenceGapForSuggestion is the minimum confidence spread before one
// side's extraction is trusted outright.
const confidenceGapForSuggestion = 20

// averagingVarianceCeiling bounds how far apart two values may be before
// averaging stops being a sensible resolution.
const averagingVarianceCeiling = 0.15

// Detect compares the same field extracted from two documents of one deal.
// Returns nil when the values agree within tolerance or cannot be compared.
// Severity and variance are symmetric in argument order.
func Detect(dealID, fieldName string, a, b Entry, opts Options) *model.Conflict {
	opts = opts.withDefaults()

	na, okA := normalize(a.Value)
	nb, okB := normalize(b.Value)
	if !okA || !okB || na.isNumber != nb.isNumber {
		return nil
	}

	if !na.isNumber {
		return detectText(dealID, fieldName, a, b, na, nb)
	}

	v1, v2 := na.number, nb.number
	if v1 == 0 && v2 == 0 {
		return nil
	}

	variance := NumericVariance(v1, v2)
	if variance <= opts.VarianceThreshold {
		return nil
	}

	c := &model.Conflict{
		DealID:          dealID,
		FieldName:       fieldName,
		Document1ID:     a.DocumentID,
		Document2ID:     b.DocumentID,
		Value1:          a.Value,
		Value2:          b.Value,
		VariancePercent: variance * 100,
		Severity:        severityFor(variance, opts.CriticalFields[fieldName]),
		Resolution:      model.ResolutionPending,
	}
	c.Suggestion, c.SuggestReason = suggest(a, b, variance)
	return c
}

// NumericVariance is the disagreement fraction between two observations:
// |v1-v2| / max(|avg|, 1). The floor keeps near-zero averages from blowing
// the ratio up.
func NumericVariance(v1, v2 float64) float64 {
	avg := math.Abs((v1 + v2) / 2)
	if avg < 1 {
		avg = 1
	}
	return math.Abs(v1-v2) / avg
}

func severityFor(variance float64, critical bool) model.ConflictSeverity {
	if critical {
		switch {
		case variance > 0.20:
			return model.SeverityCritical
		case variance > 0.10:
			return model.SeverityHigh
		default:
			return model.SeverityMedium
		}
	}
	switch {
	case variance > 0.30:
		return model.SeverityHigh
	case variance > 0.15:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// suggest picks the deterministic resolution proposal: a decisive confidence
// gap first, then document recency, then averaging for close values, manual
// review as the fallback.
func suggest(a, b Entry, variance float64) (model.ConflictResolution, string) {
	gap := a.Confidence - b.Confidence
	if gap >= confidenceGapForSuggestion {
		return model.ResolutionUseFirst,
			fmt.Sprintf("first document extraction is %.0f points more confident", gap)
	}
	if -gap >= confidenceGapForSuggestion {
		return model.ResolutionUseSecond,
			fmt.Sprintf("second document extraction is %.0f points more confident", -gap)
	}

	if a.PeriodEnd != nil && b.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd) {
		if a.PeriodEnd.After(*b.PeriodEnd) {
			return model.ResolutionUseFirst, "first document covers a more recent period"
		}
		return model.ResolutionUseSecond, "second document covers a more recent period"
	}

	if variance <= averagingVarianceCeiling {
		return model.ResolutionUseAverage, "values are close enough to average"
	}

	return model.ResolutionManualValue, "variance too large for automatic resolution"
}

// detectText flags any case-insensitive mismatch between two text values.
// No numeric heuristic applies: text conflicts always go to manual review.
func detectText(dealID, fieldName string, a, b Entry, na, nb normalized) *model.Conflict {
	if strings.EqualFold(na.text, nb.text) {
		return nil
	}
	return &model.Conflict{
		DealID:        dealID,
		FieldName:     fieldName,
		Document1ID:   a.DocumentID,
		Document2ID:   b.DocumentID,
		Value1:        a.Value,
		Value2:        b.Value,
		Severity:      model.SeverityMedium,
		Suggestion:    model.ResolutionManualValue,
		SuggestReason: "text values disagree",
		Resolution:    model.ResolutionPending,
	}
}
