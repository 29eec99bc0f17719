// Package benchmark supplies expected numeric ranges per facility category
// and field name, loaded from a static YAML table.
package benchmark

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Provider is the lookup contract consumed by the field evaluator. It is a
// pure lookup: implementations must not block or perform I/O per call.
type Provider interface {
	Range(category, fieldName string) (model.BenchmarkRange, bool)
	Ranges(category string) map[string]model.BenchmarkRange
}

// defaultCategory is consulted when a facility category has no table entry
// for a field.
const defaultCategory = "default"

// Table is a static in-memory Provider backed by a YAML file of the form:
//
//	skilled_nursing:
//	  occupancy_rate: {min: 0.70, median: 0.85, max: 0.98}
//	default:
//	  occupancy_rate: {min: 0.50, median: 0.80, max: 1.00}
type Table struct {
	categories map[string]map[string]model.BenchmarkRange
}

// NewTable builds a Table from already-parsed category data.
func NewTable(categories map[string]map[string]model.BenchmarkRange) *Table {
	if categories == nil {
		categories = map[string]map[string]model.BenchmarkRange{}
	}
	return &Table{categories: categories}
}

// LoadTable reads the benchmark table from a YAML file. Ranges with
// min > max are rejected up front so evaluation never sees an inverted
// envelope.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "benchmark: read %s", path)
	}

	var categories map[string]map[string]model.BenchmarkRange
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, eris.Wrapf(err, "benchmark: parse %s", path)
	}

	for cat, fields := range categories {
		for field, r := range fields {
			if r.Min > r.Max {
				return nil, eris.Errorf("benchmark: %s.%s has min %v > max %v", cat, field, r.Min, r.Max)
			}
		}
	}

	return NewTable(categories), nil
}

// Range returns the benchmark for one field, falling back to the default
// category when the facility category has no entry.
func (t *Table) Range(category, fieldName string) (model.BenchmarkRange, bool) {
	if fields, ok := t.categories[category]; ok {
		if r, ok := fields[fieldName]; ok {
			return r, true
		}
	}
	if category != defaultCategory {
		if fields, ok := t.categories[defaultCategory]; ok {
			if r, ok := fields[fieldName]; ok {
				return r, true
			}
		}
	}
	return model.BenchmarkRange{}, false
}

// Ranges returns all benchmarks applicable to a category, default entries
// overlaid by category-specific ones.
func (t *Table) Ranges(category string) map[string]model.BenchmarkRange {
	merged := map[string]model.BenchmarkRange{}
	for field, r := range t.categories[defaultCategory] {
		merged[field] = r
	}
	if category != defaultCategory {
		for field, r := range t.categories[category] {
			merged[field] = r
		}
	}
	return merged
}
