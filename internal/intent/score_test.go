package intent

import (
	"fmt"
	"testing"

	"github.com/AngelCh415/coursepulse/internal/models"
)

func pages(n int) []models.ProcessedEvent {
	out := make([]models.ProcessedEvent, n)
	for i := range out {
		out[i] = models.ProcessedEvent{
			Type:    models.EventPageView,
			Label:   fmt.Sprintf("Lesson %d", i),
			PageURL: fmt.Sprintf("https://learn.example.com/lesson/%d", i),
		}
	}
	return out
}

func TestScoreBase(t *testing.T) {
	if got := Score(nil, false); got != 50 {
		t.Fatalf("empty timeline = %d, want 50", got)
	}
	if got := Score([]models.ProcessedEvent{}, true); got != 55 {
		t.Fatalf("attributed empty timeline = %d, want 55", got)
	}
}

func TestScoreEventCountCap(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 55},
		{4, 70},
		{5, 75},
		{6, 75},
		{8, 75},
	}
	for _, tc := range tests {
		if got := Score(pages(tc.n), false); got != tc.want {
			t.Errorf("Score(%d pages) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestScorePerEventBonuses(t *testing.T) {
	tests := []struct {
		name  string
		event models.ProcessedEvent
		want  int
	}{
		{"plain page", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/lesson"}, 55},
		{"pricing", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/pricing"}, 60},
		{"masterclass", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/free-masterclass"}, 60},
		{"case study", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/case-study/acme"}, 58},
		{"case studies", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/case-studies"}, 58},
		{"book call click", models.ProcessedEvent{Type: models.EventBookCallClick}, 65},
		{"long dwell", models.ProcessedEvent{Type: models.EventPageView, DurationMs: 60001}, 60},
		{"exactly one minute", models.ProcessedEvent{Type: models.EventPageView, DurationMs: 60000}, 55},
		{"masterclass pricing", models.ProcessedEvent{Type: models.EventPageView, PageURL: "https://x.io/masterclass?from=pricing"}, 65},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score([]models.ProcessedEvent{tc.event}, false); got != tc.want {
				t.Fatalf("Score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreClampsAt99(t *testing.T) {
	tl := make([]models.ProcessedEvent, 0, 8)
	for i := 0; i < 8; i++ {
		tl = append(tl, models.ProcessedEvent{
			Type:       models.EventPageView,
			PageURL:    fmt.Sprintf("https://x.io/pricing/masterclass/%d", i),
			DurationMs: 120000,
		})
	}
	if got := Score(tl, true); got != Max {
		t.Fatalf("Score = %d, want %d", got, Max)
	}
}

func TestScoreRange(t *testing.T) {
	urls := []string{"", "https://x.io/pricing", "https://x.io/case-studies", "https://x.io/masterclass"}
	types := []string{models.EventPageView, models.EventBookCallClick, models.EventCallBooked, "quiz_started"}
	for n := 0; n <= 8; n++ {
		for k := 0; k < len(urls); k++ {
			tl := make([]models.ProcessedEvent, n)
			for i := range tl {
				tl[i] = models.ProcessedEvent{
					Type:       types[(i+k)%len(types)],
					PageURL:    urls[(i*k)%len(urls)],
					DurationMs: int64(i * 20000),
				}
			}
			for _, attributed := range []bool{false, true} {
				got := Score(tl, attributed)
				if got < Base || got > Max {
					t.Fatalf("Score out of range: %d", got)
				}
			}
		}
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	tl := pages(3)
	tl[1].PageURL = "https://x.io/pricing"
	first := Score(tl, true)
	for i := 0; i < 5; i++ {
		if got := Score(tl, true); got != first {
			t.Fatalf("Score changed between calls: %d vs %d", got, first)
		}
	}
}
