// Package scoring holds the pure accuracy math. No state, no I/O.
package scoring

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/foresight/internal/model"
)

const (
	// maxEarlyBird caps the time reward four years out.
	maxEarlyBird = 5.0

	// calibrationWeight scales the confidence-vs-result miss.
	calibrationWeight = 0.5

	yearDays = 365.0
)

// EarlyBirdMultiplier rewards outcomes validated long after submission.
// Monotonic non-decreasing in daysElapsed, capped at 5.0.
func EarlyBirdMultiplier(daysElapsed float64) float64 {
	return math.Min(maxEarlyBird, 1.0+daysElapsed/yearDays)
}

// CalibrationPenalty deducts for stated confidence diverging from the
// eventual result. Undeclared confidence (nil) is never penalized.
func CalibrationPenalty(confidence *float64, result float64) float64 {
	if confidence == nil {
		return 0
	}
	return math.Abs(*confidence-result) * calibrationWeight
}

// Score computes the accuracy score for a validated submission.
// result and confidence must lie in [0,1]; daysElapsed below zero is a
// data-integrity anomaly (validation predating submission), corrected to
// zero and logged rather than failed. The returned score lies in
// [-0.5, 5.0].
func Score(result float64, confidence *float64, daysElapsed float64) (float64, error) {
	if result < 0 || result > 1 {
		return 0, model.NewValidationError("result", "must be in [0,1]")
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return 0, model.NewValidationError("confidence", "must be in [0,1]")
	}
	if daysElapsed < 0 {
		zap.L().Warn("data integrity: validation predates submission, clamping elapsed days to 0",
			zap.Float64("days_elapsed", daysElapsed),
		)
		daysElapsed = 0
	}

	return result*EarlyBirdMultiplier(daysElapsed) - CalibrationPenalty(confidence, result), nil
}

// DaysBetween returns the fractional days from createdAt to validatedAt.
// May be negative; Score clamps and logs that case.
func DaysBetween(createdAt, validatedAt time.Time) float64 {
	return validatedAt.Sub(createdAt).Hours() / 24
}
