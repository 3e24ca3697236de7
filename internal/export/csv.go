// Package export renders the bookings and warm-leads reports as CSV.
package export

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/coursepulse/internal/intent"
	"github.com/AngelCh415/coursepulse/internal/journey"
	"github.com/AngelCh415/coursepulse/internal/models"
)

const dateLayout = "Jan 2, 2006"

func BookingsFileName(now time.Time) string {
	return "Bookings-" + now.Format("2006-01-02") + ".csv"
}

func WarmLeadsFileName(now time.Time) string {
	return "Warm-Leads-" + now.Format("2006-01-02") + ".csv"
}

// WriteBookings writes the summary block, every booking ranked by score, the
// Hot leads with their top pages and the bookings of the last seven days.
func WriteBookings(w io.Writer, bookings []models.Booking, s models.BookingSummary, now time.Time) error {
	cw := csv.NewWriter(w)
	put := func(rec ...string) { _ = cw.Write(rec) }

	put("BOOKINGS REPORT")
	put("Generated", now.Format("Monday, January 2, 2006 15:04"))
	put()
	put("BOOKINGS OVERVIEW")
	put("Total Bookings", strconv.Itoa(s.Total))
	put("Last 7 Days", strconv.Itoa(s.Last7Days))
	put("High Intent Leads", strconv.Itoa(s.HighIntent))
	put("Average Intent Score", percent(s.AvgScore))
	put()
	put("INTENT SCORE BREAKDOWN")
	put(fmt.Sprintf("Hot (%d+)", intent.HotThreshold), strconv.Itoa(s.Hot))
	put(fmt.Sprintf("Warm (%d-%d)", intent.WarmThreshold, intent.HotThreshold-1), strconv.Itoa(s.Warm))
	put(fmt.Sprintf("Cold (<%d)", intent.WarmThreshold), strconv.Itoa(s.Cold))
	put()

	ranked := slices.Clone(bookings)
	slices.SortStableFunc(ranked, func(a, b models.Booking) int { return cmp.Compare(b.IntentScore, a.IntentScore) })

	put("ALL BOOKINGS")
	put("#", "EMAIL", "NAME", "INTENT SCORE", "INTENT LEVEL", "EVENTS", "BOOKED DATE")
	for i, b := range ranked {
		put(strconv.Itoa(i+1), orUnknown(b.Email), b.Name, percent(b.IntentScore), b.IntentLevel,
			strconv.Itoa(b.EventCount), b.OccurredAt.Format(dateLayout))
	}
	put("TOTAL BOOKINGS", strconv.Itoa(len(ranked)))

	var hot []models.Booking
	for _, b := range ranked {
		if b.IntentScore >= intent.HotThreshold {
			hot = append(hot, b)
		}
	}
	if len(hot) > 0 {
		put()
		put(fmt.Sprintf("HOT LEADS (Intent Score %d+)", intent.HotThreshold))
		put("#", "EMAIL", "INTENT SCORE", "EVENTS", "BOOKED DATE", "TOP PAGES VIEWED")
		for i, b := range hot {
			put(strconv.Itoa(i+1), orUnknown(b.Email), percent(b.IntentScore), strconv.Itoa(b.EventCount),
				b.OccurredAt.Format(dateLayout), topPages(b.Journey, 3))
		}
	}

	var recent []models.Booking
	for _, b := range bookings {
		if now.Sub(b.OccurredAt) <= 7*24*time.Hour {
			recent = append(recent, b)
		}
	}
	if len(recent) > 0 {
		put()
		put("RECENT BOOKINGS (Last 7 Days)")
		put("#", "EMAIL", "INTENT SCORE", "EVENTS", "BOOKED AT")
		for i, b := range recent {
			put(strconv.Itoa(i+1), orUnknown(b.Email), percent(b.IntentScore), strconv.Itoa(b.EventCount),
				b.OccurredAt.Format("Jan 2, 2006 15:04"))
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteWarmLeads writes one section per warm-leads table.
func WriteWarmLeads(w io.Writer, r models.WarmLeadsReport, now time.Time) error {
	cw := csv.NewWriter(w)
	put := func(rec ...string) { _ = cw.Write(rec) }

	put("WARM LEADS REPORT")
	put("Generated", now.Format("Monday, January 2, 2006 15:04"))
	put("Ready To Convert", strconv.Itoa(len(r.HighActivity)))
	put("Abandoned Clicks", strconv.Itoa(len(r.Abandoned)))
	put("Click To Booking Rate", strconv.FormatFloat(r.ConversionRate, 'f', 1, 64)+"%")
	put()

	put("READY TO CONVERT")
	put("#", "EMAIL", "LESSON VIEWS", "UNIQUE LESSONS", "TIME ENGAGED", "LAST ACTIVE", "BOOKED CALL")
	for i, u := range r.HighActivity {
		put(strconv.Itoa(i+1), u.Email, strconv.Itoa(u.ViewCount), strconv.Itoa(u.UniqueLessons),
			journey.FormatDuration(u.TotalEngagedMs), formatTime(u.LastActive), yesNo(u.HasBooked))
	}
	put()

	put("ABANDONED BOOKING CLICKS")
	put("#", "EMAIL", "CLICKS", "DAYS SINCE LAST CLICK", "LAST CLICK PAGE", "INTENT SCORE", "INTENT LEVEL", "JOURNEY")
	for i, a := range r.Abandoned {
		put(strconv.Itoa(i+1), a.Email, strconv.Itoa(a.ClickCount), strconv.Itoa(a.DaysSinceLastClick),
			a.LastClickPage, percent(a.IntentScore), a.IntentLevel, journeyLabels(a.Journey))
	}
	put()

	put("ACTIVE TODAY")
	put("#", "EMAIL", "EVENTS", "PAGES", "LAST PAGE", "LAST ACTIVITY")
	for i, u := range r.TodayActive {
		put(strconv.Itoa(i+1), u.Email, strconv.Itoa(u.EventCount), strconv.Itoa(u.PageCount),
			journey.PageLabel(u.LastPage), u.LastActivity.Format("15:04"))
	}
	put()

	put("BOUGHT TODAY, NOT ACTIVE")
	put("#", "EMAIL", "COURSE", "PURCHASED", "HOURS SINCE")
	for i, b := range r.BoughtInactive {
		put(strconv.Itoa(i+1), b.Email, b.Course, b.PurchaseTime.Format("15:04"), strconv.Itoa(b.HoursSince))
	}

	cw.Flush()
	return cw.Error()
}

func percent(n int) string { return strconv.Itoa(n) + "%" }

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// topPages lists the labels of the first n page views, or N/A.
func topPages(timeline []models.ProcessedEvent, n int) string {
	var labels []string
	for _, e := range timeline {
		if e.Type == models.EventPageView {
			labels = append(labels, e.Label)
			if len(labels) == n {
				break
			}
		}
	}
	if len(labels) == 0 {
		return "N/A"
	}
	return strings.Join(labels, ", ")
}

func journeyLabels(timeline []models.ProcessedEvent) string {
	labels := make([]string, len(timeline))
	for i, e := range timeline {
		labels[i] = e.Label
	}
	return strings.Join(labels, " > ")
}
