// Package billing derives consultation shares from a doctor's billing configuration.
package billing

import (
	"math"

	"github.com/dkeye/Consult/internal/apperr"
)

const percentTolerance = 0.01

// Round2 rounds half-up to cents. The nudge keeps values such as 0.145,
// stored in binary as 0.14499..., on the side a human expects.
func Round2(v float64) float64 {
	scaled := v * 100
	return math.Round(scaled+math.Copysign(1e-9, scaled)) / 100
}

// Split returns the doctor and platform shares of total. Each share is rounded
// on its own, so their sum may be one cent away from total.
func Split(total, doctorPct, platformPct float64) (doctorShare, platformShare float64) {
	return Round2(total * doctorPct / 100), Round2(total * platformPct / 100)
}

func ValidateConfig(price, doctorPct, platformPct float64) error {
	if !(price > 0) {
		return apperr.Validation("price must be greater than zero, got %.2f", price)
	}
	if doctorPct < 0 || doctorPct > 100 {
		return apperr.Validation("doctor percent must be between 0 and 100, got %.2f", doctorPct)
	}
	if platformPct < 0 || platformPct > 100 {
		return apperr.Validation("platform percent must be between 0 and 100, got %.2f", platformPct)
	}
	if math.Abs(doctorPct+platformPct-100) > percentTolerance {
		return apperr.Validation("percentages must add up to 100, got %.2f", doctorPct+platformPct)
	}
	return nil
}
