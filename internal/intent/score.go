// Package intent turns a reconstructed journey into a purchase-readiness score.
package intent

import (
	"strings"

	"github.com/AngelCh415/coursepulse/internal/models"
)

const (
	Base = 50
	Max  = 99

	HotThreshold  = 80
	WarmThreshold = 60

	perEventPoints    = 5
	eventPointsCap    = 25
	pricingPoints     = 5
	masterclassPoints = 5
	caseStudyPoints   = 3
	bookClickPoints   = 10
	engagedPoints     = 5
	attributedPoints  = 5

	// engagedThresholdMs is one minute of dwell time.
	engagedThresholdMs = 60000
)

// Score is additive from Base and clamped to [Base, Max]. attributed reports
// whether the user carries a marketing source.
func Score(timeline []models.ProcessedEvent, attributed bool) int {
	score := Base
	score += min(len(timeline)*perEventPoints, eventPointsCap)

	for _, e := range timeline {
		if strings.Contains(e.PageURL, "pricing") {
			score += pricingPoints
		}
		if strings.Contains(e.PageURL, "masterclass") {
			score += masterclassPoints
		}
		if strings.Contains(e.PageURL, "case-study") || strings.Contains(e.PageURL, "case-studies") {
			score += caseStudyPoints
		}
		if e.Type == models.EventBookCallClick {
			score += bookClickPoints
		}
		if e.DurationMs > engagedThresholdMs {
			score += engagedPoints
		}
	}

	if attributed {
		score += attributedPoints
	}
	return max(Base, min(score, Max))
}
