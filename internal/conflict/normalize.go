// Package conflict compares the same field across two documents of one deal
// and decides whether the values disagree beyond tolerance.
package conflict

import (
	"strconv"
	"strings"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// normalized is the comparable form of a field value. Exactly one of the
// two flavors applies.
type normalized struct {
	isNumber bool
	number   float64
	text     string
}

// normalize reduces a field value to a comparable form. Currency and percent
// decoration is stripped from text before the numeric parse; text that still
// fails to parse compares as text. Missing values are not comparable.
func normalize(v model.FieldValue) (normalized, bool) {
	switch v.Kind {
	case model.ValueNumber:
		return normalized{isNumber: true, number: v.Number}, true
	case model.ValueText:
		s := strings.TrimSpace(v.Text)
		if s == "" {
			return normalized{}, false
		}
		if n, ok := parseDecoratedNumber(s); ok {
			return normalized{isNumber: true, number: n}, true
		}
		return normalized{text: s}, true
	default:
		return normalized{}, false
	}
}

// parseDecoratedNumber parses numerals carrying financial decoration:
// "$1,150,000", "85%", "(12,500)" for negatives.
func parseDecoratedNumber(s string) (float64, bool) {
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		n = -n
	}
	return n, true
}
