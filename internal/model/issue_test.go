package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFor_MissingCritical(t *testing.T) {
	// 5 base + 3 critical + 3 missing = 11, capped at 10.
	assert.Equal(t, 10, PriorityFor(IssueMissing, true, 0))
}

func TestPriorityFor_MissingNonCritical(t *testing.T) {
	assert.Equal(t, 8, PriorityFor(IssueMissing, false, 0))
}

func TestPriorityFor_OutOfRange(t *testing.T) {
	assert.Equal(t, 6, PriorityFor(IssueOutOfRange, false, 80))
	assert.Equal(t, 9, PriorityFor(IssueOutOfRange, true, 80))
}

func TestPriorityFor_Conflict(t *testing.T) {
	assert.Equal(t, 7, PriorityFor(IssueConflict, false, 0))
	assert.Equal(t, 10, PriorityFor(IssueConflict, true, 0))
}

func TestPriorityFor_LowConfidenceScales(t *testing.T) {
	// floor((100-confidence)/25): 65 -> +1, 40 -> +2, 10 -> +3.
	assert.Equal(t, 6, PriorityFor(IssueLowConfidence, false, 65))
	assert.Equal(t, 7, PriorityFor(IssueLowConfidence, false, 40))
	assert.Equal(t, 8, PriorityFor(IssueLowConfidence, false, 10))
}

func TestPriorityFor_MissingCriticalOutranksNoisy(t *testing.T) {
	noisy := PriorityFor(IssueLowConfidence, true, 30)
	absent := PriorityFor(IssueMissing, true, 0)
	assert.Greater(t, absent, noisy)
}

func TestIssueStatus_Terminal(t *testing.T) {
	assert.False(t, IssuePending.Terminal())
	assert.True(t, IssueResolved.Terminal())
	assert.True(t, IssueIgnored.Terminal())
}
