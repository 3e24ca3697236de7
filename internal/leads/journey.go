package leads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/intent"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
)

// JourneyView is one user's recent journey with both presentation windows.
type JourneyView struct {
	Email    string                  `json:"email"`
	Timeline []models.ProcessedEvent `json:"timeline"`
	journey.Views
	IntentScore int    `json:"intent_score"`
	IntentLevel string `json:"intent_level"`
}

// Journey reconstructs the latest lookback events of one user. The journey
// counts as attributed when any of those events carries a UTM source.
func (b *Bookings) Journey(ctx context.Context, email string) (JourneyView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	events, err := b.src.Events(ctx, query.From(ingest.EventsTable).
		Eq("email", email).
		Lt("occurred_at", b.now().UTC()).
		OrderDesc("occurred_at").
		Limit(b.lookback))
	if err != nil {
		b.log.Error("load journey", slog.String("email", email), slog.String("err", err.Error()))
		return JourneyView{}, fmt.Errorf("load journey: %w", err)
	}

	attributed := false
	for _, ev := range events {
		if ev.UTMSource != "" {
			attributed = true
			break
		}
	}
	tl := journey.Reconstruct(events)
	score := intent.Score(tl, attributed)
	level := intent.Classify(score).String()
	b.metrics.ObserveJourney(len(tl), level)
	return JourneyView{
		Email:       email,
		Timeline:    tl,
		Views:       journey.Split(tl),
		IntentScore: score,
		IntentLevel: level,
	}, nil
}
