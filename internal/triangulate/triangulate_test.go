package triangulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func src(doc string, v model.FieldValue, conf float64) model.Source {
	return model.Source{DocumentID: doc, Value: v, Confidence: conf}
}

// Scenario C: occupancy 0.85 (90), 0.86 (85), 0.60 (40) → value pulled
// toward the agreeing high-confidence pair; confidence penalized by the
// spread the outlier introduces.
func TestReconcile_OutlierPenalizesConfidence(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(0.85), 90),
		src("doc-2", model.NumberValue(0.86), 85),
		src("doc-3", model.NumberValue(0.60), 40),
	}

	rf := Reconcile("deal-1", "occupancy_rate", sources)

	require.Equal(t, model.ValueNumber, rf.Value.Kind)
	// (0.85*90 + 0.86*85 + 0.60*40) / 215 ≈ 0.8070
	assert.InDelta(t, 0.8070, rf.Value.Number, 0.001)
	// avg confidence 71.67, spread (0.86-0.60)/0.86 ≈ 0.3023 → ≈ 50.0
	assert.InDelta(t, 50.0, rf.Confidence, 0.2)
	assert.Equal(t, MethodWeightedMean, rf.Methodology)
}

func TestReconcile_ValueWithinSourceBounds(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(100), 50),
		src("doc-2", model.NumberValue(300), 90),
		src("doc-3", model.NumberValue(180), 75),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.GreaterOrEqual(t, rf.Value.Number, 100.0)
	assert.LessOrEqual(t, rf.Value.Number, 300.0)
}

func TestReconcile_ConfidenceNeverExceedsMaxSource(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(100), 80),
		src("doc-2", model.NumberValue(120), 60),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.LessOrEqual(t, rf.Confidence, 80.0)
}

func TestReconcile_FullAgreementKeepsConfidence(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(120), 90),
		src("doc-2", model.NumberValue(120), 80),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.InDelta(t, 120, rf.Value.Number, 0.0001)
	// Zero spread: no penalty, confidence is the plain average.
	assert.InDelta(t, 85, rf.Confidence, 0.0001)
}

func TestReconcile_SingleNumericSource(t *testing.T) {
	rf := Reconcile("deal-1", "licensed_beds", []model.Source{
		src("doc-1", model.NumberValue(120), 88),
	})
	assert.InDelta(t, 120, rf.Value.Number, 0.0001)
	assert.InDelta(t, 88, rf.Confidence, 0.0001)
	assert.Equal(t, MethodSingleSource, rf.Methodology)
}

func TestReconcile_TextSourcesPickHighestConfidence(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.TextValue("Oakview SNF"), 70),
		src("doc-2", model.TextValue("Oakview Skilled Nursing"), 92),
	}
	rf := Reconcile("deal-1", "facility_name", sources)
	assert.Equal(t, "Oakview Skilled Nursing", rf.Value.Text)
	assert.InDelta(t, 92, rf.Confidence, 0.0001)
	assert.Equal(t, MethodHighestConfident, rf.Methodology)
}

func TestReconcile_MixedPrefersNumeric(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(120), 60),
		src("doc-2", model.TextValue("about 120"), 95),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.Equal(t, model.ValueNumber, rf.Value.Kind)
}

func TestReconcile_AllMissing(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.MissingValue(), 0),
		src("doc-2", model.MissingValue(), 0),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.True(t, rf.Value.IsMissing())
	assert.Zero(t, rf.Confidence)
}

func TestReconcile_ZeroConfidenceWeightsFallBackToMean(t *testing.T) {
	sources := []model.Source{
		src("doc-1", model.NumberValue(100), 0),
		src("doc-2", model.NumberValue(200), 0),
	}
	rf := Reconcile("deal-1", "licensed_beds", sources)
	assert.InDelta(t, 150, rf.Value.Number, 0.0001)
	assert.Zero(t, rf.Confidence)
}

func TestAgreementFactor(t *testing.T) {
	assert.InDelta(t, 1.0, agreementFactor(100, 100), 0.0001)
	assert.InDelta(t, 0.5, agreementFactor(50, 100), 0.0001)
	assert.InDelta(t, 0.0, agreementFactor(0, 100), 0.0001)
	assert.InDelta(t, 1.0, agreementFactor(0, 0), 0.0001)
}
