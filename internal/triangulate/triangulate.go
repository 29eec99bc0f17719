// Package triangulate combines every observation of one field across a
// deal's documents into a single reconciled value with an associated
// confidence. Pure and re-derivable from the persisted extracted fields.
package triangulate

import "github.com/sells-group/reconcile-cli/internal/model"

// Methodologies recorded on the reconciled field.
const (
	MethodWeightedMean     = "confidence_weighted_mean"
	MethodHighestConfident = "highest_confidence_source"
	MethodSingleSource     = "single_source"
)

// Reconcile computes the reconciled value for one field. Numeric sources are
// blended by confidence-weighted mean with the reconciled confidence
// discounted by how far the sources spread; when no numeric sources exist
// the highest-confidence source wins outright.
func Reconcile(dealID, fieldName string, sources []model.Source) model.ReconciledField {
	rf := model.ReconciledField{
		DealID:    dealID,
		FieldName: fieldName,
		Sources:   sources,
	}

	numeric := make([]model.Source, 0, len(sources))
	for _, s := range sources {
		if s.Value.Kind == model.ValueNumber {
			numeric = append(numeric, s)
		}
	}

	if len(numeric) == 0 {
		return highestConfidence(rf, sources)
	}
	if len(numeric) == 1 {
		rf.Value = numeric[0].Value
		rf.Confidence = numeric[0].Confidence
		rf.Methodology = MethodSingleSource
		return rf
	}

	var weightedSum, confSum float64
	minV, maxV := numeric[0].Value.Number, numeric[0].Value.Number
	for _, s := range numeric {
		weightedSum += s.Value.Number * s.Confidence
		confSum += s.Confidence
		if s.Value.Number < minV {
			minV = s.Value.Number
		}
		if s.Value.Number > maxV {
			maxV = s.Value.Number
		}
	}

	if confSum == 0 {
		// No usable confidence weights: fall back to an unweighted mean at
		// zero reconciled confidence.
		var sum float64
		for _, s := range numeric {
			sum += s.Value.Number
		}
		rf.Value = model.NumberValue(sum / float64(len(numeric)))
		rf.Methodology = MethodWeightedMean
		return rf
	}

	rf.Value = model.NumberValue(weightedSum / confSum)
	rf.Confidence = (confSum / float64(len(numeric))) * agreementFactor(minV, maxV)
	rf.Methodology = MethodWeightedMean
	return rf
}

// agreementFactor scales confidence by how tightly the numeric sources
// agree: 1 at zero spread, down to 0 when spread reaches 100% of the
// largest value.
func agreementFactor(minV, maxV float64) float64 {
	if maxV == 0 {
		return 1
	}
	spread := (maxV - minV) / maxV
	if spread < 0 {
		spread = -spread
	}
	if spread > 1 {
		spread = 1
	}
	return 1 - spread
}

func highestConfidence(rf model.ReconciledField, sources []model.Source) model.ReconciledField {
	var best *model.Source
	for i := range sources {
		if sources[i].Value.IsMissing() {
			continue
		}
		if best == nil || sources[i].Confidence > best.Confidence {
			best = &sources[i]
		}
	}
	if best == nil {
		rf.Value = model.MissingValue()
		return rf
	}
	rf.Value = best.Value
	rf.Confidence = best.Confidence
	rf.Methodology = MethodHighestConfident
	return rf
}
