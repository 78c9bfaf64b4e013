package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClassify tests SLA classification against stage thresholds
func TestClassify(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name           string
		stage          Stage
		elapsedMinutes float64
		expected       SLAStatus
	}{
		{
			name:           "Under ideal is within ideal",
			stage:          StagePrelims,
			elapsedMinutes: 100,
			expected:       SLAWithinIdeal,
		},
		{
			name:           "Exactly at ideal is within ideal",
			stage:          StagePrelims,
			elapsedMinutes: 240,
			expected:       SLAWithinIdeal,
		},
		{
			name:           "Just over ideal",
			stage:          StagePrelims,
			elapsedMinutes: 240.5,
			expected:       SLAOverIdeal,
		},
		{
			name:           "Exactly at max is still over ideal",
			stage:          StagePrelims,
			elapsedMinutes: 480,
			expected:       SLAOverIdeal,
		},
		{
			name:           "Over max",
			stage:          StagePrelims,
			elapsedMinutes: 481,
			expected:       SLAOverMax,
		},
		{
			name:           "Over escalation wins over all lower thresholds",
			stage:          StagePrelims,
			elapsedMinutes: 1000,
			expected:       SLAEscalationNeeded,
		},
		{
			name:           "QC thresholds",
			stage:          StageQC,
			elapsedMinutes: 250,
			expected:       SLAOverMax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, catalog.Classify(tt.stage, tt.elapsedMinutes))
		})
	}
}

// TestClassifyDeterministic tests that repeated classification of the same
// input yields the same result
func TestClassifyDeterministic(t *testing.T) {
	catalog := DefaultCatalog()

	first := catalog.Classify(StageProduction, 975.25)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, catalog.Classify(StageProduction, 975.25))
	}
}

// TestPenalty tests penalty arithmetic
func TestPenalty(t *testing.T) {
	tests := []struct {
		name      string
		status    SLAStatus
		overBy    float64
		escalated bool
		expected  float64
	}{
		{
			name:     "Within ideal carries no penalty",
			status:   SLAWithinIdeal,
			overBy:   0,
			expected: 0,
		},
		{
			// Over ideal but still under max: the half-rate multiplier
			// applies to zero excess, so no points accrue.
			name:     "Over ideal with zero excess over max",
			status:   SLAOverIdeal,
			overBy:   0,
			expected: 0,
		},
		{
			name:     "Over max at double rate",
			status:   SLAOverMax,
			overBy:   10,
			expected: 20,
		},
		{
			name:     "Escalation needed at double rate",
			status:   SLAEscalationNeeded,
			overBy:   30,
			expected: 60,
		},
		{
			name:      "Escalated surcharge",
			status:    SLAOverMax,
			overBy:    10,
			escalated: true,
			expected:  30,
		},
		{
			name:     "Fractional excess rounds to two decimals",
			status:   SLAOverMax,
			overBy:   0.333,
			expected: 0.67,
		},
		{
			name:      "Escalated fractional rounds after surcharge",
			status:    SLAEscalationNeeded,
			overBy:    1.111,
			escalated: true,
			expected:  3.33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Penalty(tt.status, tt.overBy, tt.escalated))
		})
	}
}

// TestOverByMeasuredAgainstMax tests that penalty excess uses the max
// threshold, so a stint between ideal and max accrues nothing
func TestOverByMeasuredAgainstMax(t *testing.T) {
	catalog := NewStageCatalog(map[Stage]StageConfig{
		StagePrelims: {IdealMinutes: 20, MaxMinutes: 30, EscalationMinutes: 45},
	})

	status := catalog.Classify(StagePrelims, 25)
	require.Equal(t, SLAOverIdeal, status)

	overBy := catalog.OverBy(StagePrelims, 25)
	assert.Equal(t, float64(0), overBy)
	assert.Equal(t, float64(0), Penalty(status, overBy, false))
}

// TestDurationMinutes tests whole-minute duration rounding
func TestDurationMinutes(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		end      time.Time
		expected float64
	}{
		{
			name:     "Rounds down under half a minute",
			end:      base.Add(10*time.Minute + 20*time.Second),
			expected: 10,
		},
		{
			name:     "Rounds up from half a minute",
			end:      base.Add(10*time.Minute + 30*time.Second),
			expected: 11,
		},
		{
			name:     "Clock skew clamps to zero",
			end:      base.Add(-5 * time.Minute),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DurationMinutes(base, tt.end))
		})
	}
}

// TestElapsedMinutes tests fractional elapsed time
func TestElapsedMinutes(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 10.5, ElapsedMinutes(base, base.Add(10*time.Minute+30*time.Second)))
	assert.Equal(t, float64(0), ElapsedMinutes(base, base.Add(-time.Minute)))
}

// TestSLAStatusIsBreach tests which statuses count as breaches
func TestSLAStatusIsBreach(t *testing.T) {
	assert.False(t, SLANotStarted.IsBreach())
	assert.False(t, SLAWithinIdeal.IsBreach())
	assert.False(t, SLAOverIdeal.IsBreach())
	assert.True(t, SLAOverMax.IsBreach())
	assert.True(t, SLAEscalationNeeded.IsBreach())
}
