package domain

import (
	"math"
	"time"
)

// SLAStatus classifies how a stage visit's elapsed time compares to the
// stage's thresholds
type SLAStatus string

const (
	SLANotStarted       SLAStatus = "not_started"
	SLAWithinIdeal      SLAStatus = "within_ideal"
	SLAOverIdeal        SLAStatus = "over_ideal"
	SLAOverMax          SLAStatus = "over_max"
	SLAEscalationNeeded SLAStatus = "escalation_needed"
)

// IsBreach reports whether the classification counts as an SLA breach
func (s SLAStatus) IsBreach() bool {
	return s == SLAOverMax || s == SLAEscalationNeeded
}

// Classify returns the most severe threshold the elapsed time has exceeded.
// The checks are ordered so a later, more severe threshold wins.
func (c *StageCatalog) Classify(stage Stage, elapsedMinutes float64) SLAStatus {
	cfg, ok := c.configs[stage]
	if !ok {
		return SLAWithinIdeal
	}

	status := SLAWithinIdeal
	if elapsedMinutes > cfg.IdealMinutes {
		status = SLAOverIdeal
	}
	if elapsedMinutes > cfg.MaxMinutes {
		status = SLAOverMax
	}
	if elapsedMinutes > cfg.EscalationMinutes {
		status = SLAEscalationNeeded
	}
	return status
}

// OverBy returns the minutes the elapsed time exceeds the stage's max
// threshold, never negative. Penalties are measured against max only, so a
// visit classified over_ideal but under max accrues zero points.
func (c *StageCatalog) OverBy(stage Stage, elapsedMinutes float64) float64 {
	cfg, ok := c.configs[stage]
	if !ok {
		return 0
	}
	return math.Max(0, elapsedMinutes-cfg.MaxMinutes)
}

// Penalty computes penalty points for a classified visit. Pure and
// deterministic so totals can be reproduced from history alone.
func Penalty(status SLAStatus, overByMinutes float64, escalated bool) float64 {
	var points float64
	switch status {
	case SLAOverIdeal:
		points = overByMinutes * 0.5
	case SLAOverMax, SLAEscalationNeeded:
		points = overByMinutes * 2.0
	default:
		return 0
	}

	if escalated {
		points *= 1.5
	}

	return math.Round(points*100) / 100
}

// DurationMinutes computes the whole-minute duration between two instants,
// never negative.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		return 0
	}
	return math.Round(end.Sub(start).Minutes())
}

// ElapsedMinutes computes fractional minutes from start until now, never
// negative.
func ElapsedMinutes(start, now time.Time) float64 {
	if now.Before(start) {
		return 0
	}
	return now.Sub(start).Minutes()
}
