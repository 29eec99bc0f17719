package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

var critical = model.NewCriticalFields([]string{
	"total_revenue", "net_operating_income", "total_expenses", "occupancy_rate",
})

func entry(doc string, v model.FieldValue, conf float64) Entry {
	return Entry{DocumentID: doc, Value: v, Confidence: conf}
}

// Scenario A: $1,000,000 vs $1,150,000 revenue is ~14% variance on a
// critical field → high severity; equal confidence and no period dates →
// averaging suggestion.
func TestDetect_RevenueDisagreement(t *testing.T) {
	a := entry("doc-1", model.NumberValue(1_000_000), 85)
	b := entry("doc-2", model.NumberValue(1_150_000), 85)

	c := Detect("deal-1", "total_revenue", a, b, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.SeverityHigh, c.Severity)
	assert.Equal(t, model.ResolutionUseAverage, c.Suggestion)
	assert.Equal(t, model.ResolutionPending, c.Resolution)
	assert.InDelta(t, 13.95, c.VariancePercent, 0.02)
}

func TestDetect_ConfidenceGapWins(t *testing.T) {
	a := entry("doc-1", model.NumberValue(1_000_000), 95)
	b := entry("doc-2", model.NumberValue(1_150_000), 70)

	c := Detect("deal-1", "total_revenue", a, b, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.ResolutionUseFirst, c.Suggestion)

	// Mirrored confidences suggest the other side.
	c = Detect("deal-1", "total_revenue", b, a, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.ResolutionUseSecond, c.Suggestion)
}

func TestDetect_RecencyBreaksTie(t *testing.T) {
	older := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	a := entry("doc-1", model.NumberValue(1_000_000), 85)
	a.PeriodEnd = &older
	b := entry("doc-2", model.NumberValue(1_150_000), 85)
	b.PeriodEnd = &newer

	c := Detect("deal-1", "total_revenue", a, b, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.ResolutionUseSecond, c.Suggestion)
	assert.Contains(t, c.SuggestReason, "recent period")
}

func TestDetect_LargeVarianceGoesManual(t *testing.T) {
	a := entry("doc-1", model.NumberValue(1_000_000), 85)
	b := entry("doc-2", model.NumberValue(2_000_000), 85)

	c := Detect("deal-1", "total_revenue", a, b, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.SeverityCritical, c.Severity)
	assert.Equal(t, model.ResolutionManualValue, c.Suggestion)
}

// Threshold is exclusive: exactly maxDocumentVariance does not trigger,
// one step above does.
func TestDetect_ThresholdBoundaryExclusive(t *testing.T) {
	// Pin the threshold to the exact computed variance so the comparison
	// exercises > rather than >=.
	v1, v2 := 100.0, 111.0
	exact := NumericVariance(v1, v2)

	at := Detect("deal-1", "parking_spaces",
		entry("doc-1", model.NumberValue(v1), 85),
		entry("doc-2", model.NumberValue(v2), 85),
		Options{VarianceThreshold: exact})
	assert.Nil(t, at)

	above := Detect("deal-1", "parking_spaces",
		entry("doc-1", model.NumberValue(v1), 85),
		entry("doc-2", model.NumberValue(v2), 85),
		Options{VarianceThreshold: exact - 0.0001})
	assert.NotNil(t, above)
}

func TestDetect_Symmetry(t *testing.T) {
	a := entry("doc-1", model.NumberValue(900_000), 80)
	b := entry("doc-2", model.NumberValue(1_200_000), 88)
	opts := Options{CriticalFields: critical}

	ab := Detect("deal-1", "total_revenue", a, b, opts)
	ba := Detect("deal-1", "total_revenue", b, a, opts)
	require.NotNil(t, ab)
	require.NotNil(t, ba)
	assert.Equal(t, ab.Severity, ba.Severity)
	assert.InDelta(t, ab.VariancePercent, ba.VariancePercent, 0.0001)

	k1a, k1b := ab.PairKey()
	k2a, k2b := ba.PairKey()
	assert.Equal(t, k1a, k2a)
	assert.Equal(t, k1b, k2b)
}

func TestDetect_BothZeroNoConflict(t *testing.T) {
	c := Detect("deal-1", "total_revenue",
		entry("doc-1", model.NumberValue(0), 85),
		entry("doc-2", model.NumberValue(0), 85),
		Options{})
	assert.Nil(t, c)
}

func TestDetect_MissingOrMixedTypesSkipped(t *testing.T) {
	num := entry("doc-1", model.NumberValue(100), 85)
	txt := entry("doc-2", model.TextValue("one hundred"), 85)
	missing := entry("doc-3", model.MissingValue(), 0)

	assert.Nil(t, Detect("deal-1", "f", num, txt, Options{}))
	assert.Nil(t, Detect("deal-1", "f", num, missing, Options{}))
	assert.Nil(t, Detect("deal-1", "f", missing, missing, Options{}))
}

func TestDetect_DecoratedNumeralsCompareNumerically(t *testing.T) {
	a := entry("doc-1", model.TextValue("$1,000,000"), 85)
	b := entry("doc-2", model.TextValue("$1,500,000"), 85)

	c := Detect("deal-1", "total_revenue", a, b, Options{CriticalFields: critical})
	require.NotNil(t, c)
	assert.Equal(t, model.SeverityCritical, c.Severity)
}

func TestDetect_TextMismatchIsMediumManual(t *testing.T) {
	a := entry("doc-1", model.TextValue("Oakview SNF"), 85)
	b := entry("doc-2", model.TextValue("Oakview Rehabilitation"), 85)

	c := Detect("deal-1", "facility_name", a, b, Options{})
	require.NotNil(t, c)
	assert.Equal(t, model.SeverityMedium, c.Severity)
	assert.Equal(t, model.ResolutionManualValue, c.Suggestion)
}

func TestDetect_TextCaseInsensitiveMatch(t *testing.T) {
	a := entry("doc-1", model.TextValue("OAKVIEW SNF"), 85)
	b := entry("doc-2", model.TextValue("oakview snf"), 85)
	assert.Nil(t, Detect("deal-1", "facility_name", a, b, Options{}))
}

func TestSeverityBands(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, severityFor(0.25, true))
	assert.Equal(t, model.SeverityHigh, severityFor(0.15, true))
	assert.Equal(t, model.SeverityMedium, severityFor(0.08, true))
	assert.Equal(t, model.SeverityHigh, severityFor(0.35, false))
	assert.Equal(t, model.SeverityMedium, severityFor(0.20, false))
	assert.Equal(t, model.SeverityLow, severityFor(0.12, false))
}

func TestNumericVariance_FloorsSmallAverages(t *testing.T) {
	// avg 0.25 floors to 1, so variance is the raw difference.
	assert.InDelta(t, 0.5, NumericVariance(0.0, 0.5), 0.0001)
	assert.InDelta(t, 0.4, NumericVariance(1000, 1500), 0.0001)
}

func TestParseDecoratedNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,150,000", 1_150_000, true},
		{"85%", 85, true},
		{"(12,500)", -12_500, true},
		{"-42", -42, true},
		{"0.85", 0.85, true},
		{"n/a", 0, false},
		{"$", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseDecoratedNumber(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.0001, tc.in)
		}
	}
}
