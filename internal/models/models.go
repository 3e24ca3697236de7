package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event names recorded by the course site tracker.
const (
	EventPageView      = "page_view"
	EventPageClose     = "page_close"
	EventBookCallClick = "book_call_click"
	EventCallBooked    = "call_booked"
)

// RawEvent is one row of analytics_events.
type RawEvent struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	EventName  string    `json:"event_name"`
	PageURL    string    `json:"page_url"`
	OccurredAt time.Time `json:"occurred_at"`
	SessionID  string    `json:"session_id"`
	EngagedMs  int64     `json:"engaged_ms"`
	UTMSource  string    `json:"utm_source"`
	CTAPos     string    `json:"cta_pos"`
}

// ProcessedEvent is one entry of a reconstructed journey.
type ProcessedEvent struct {
	Type        string    `json:"type"`
	Label       string    `json:"label"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
	PageURL     string    `json:"page_url,omitempty"`
	CTAPosition string    `json:"cta_pos,omitempty"`
}

type Booking struct {
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	OccurredAt  time.Time        `json:"occurred_at"`
	UTMSource   string           `json:"utm_source,omitempty"`
	Journey     []ProcessedEvent `json:"journey"`
	IntentScore int              `json:"intent_score"`
	IntentLevel string           `json:"intent_level"`
	EventCount  int              `json:"event_count"`
	BookedFrom  string           `json:"booked_from,omitempty"`
}

type BookingSummary struct {
	Total      int `json:"total"`
	Last7Days  int `json:"last_7_days"`
	HighIntent int `json:"high_intent"`
	AvgScore   int `json:"avg_score"`
	Hot        int `json:"hot"`
	Warm       int `json:"warm"`
	Cold       int `json:"cold"`
}

// Learner is a row of the learners_dashboard view.
type Learner struct {
	Email           string           `json:"email"`
	Status          string           `json:"status"`
	Courses         []string         `json:"courses"`
	TotalEvents     int              `json:"total_events"`
	ActiveDays30d   int              `json:"active_days_30d"`
	GrantedAt       *time.Time       `json:"granted_at"`
	FirstActivityAt *time.Time       `json:"first_activity_at"`
	LastActivityAt  *time.Time       `json:"last_activity_at"`
	Converted       bool             `json:"converted"`
	Journey         []ProcessedEvent `json:"journey,omitempty"`
}

type LearnerCounts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Offline   int `json:"offline"`
	Converted int `json:"converted"`
}

// HighActivityUser is a row of warm_leads_high_activity.
type HighActivityUser struct {
	Email          string     `json:"email"`
	ViewCount      int        `json:"view_count"`
	UniqueLessons  int        `json:"unique_lessons"`
	TotalEngagedMs int64      `json:"total_engaged_ms"`
	LastActive     *time.Time `json:"last_active"`
	HasBooked      bool       `json:"has_booked"`
}

// AbandonedClick is a row of warm_leads_abandoned, enriched with a journey.
type AbandonedClick struct {
	Email              string           `json:"email"`
	ClickCount         int              `json:"click_count"`
	Pages              []string         `json:"pages"`
	FirstClick         *time.Time       `json:"first_click"`
	LastClick          *time.Time       `json:"last_click"`
	LastClickPage      string           `json:"last_click_page"`
	DaysSinceLastClick int              `json:"days_since_last_click"`
	Journey            []ProcessedEvent `json:"journey"`
	IntentScore        int              `json:"intent_score"`
	IntentLevel        string           `json:"intent_level"`
}

type ActiveUser struct {
	Email        string    `json:"email"`
	EventCount   int       `json:"event_count"`
	PageCount    int       `json:"page_count"`
	LastPage     string    `json:"last_page"`
	LastActivity time.Time `json:"last_activity"`
}

type InactiveBuyer struct {
	Email        string    `json:"email"`
	Course       string    `json:"course"`
	PurchaseTime time.Time `json:"purchase_time"`
	HoursSince   int       `json:"hours_since"`
}

// Entitlement grants a user access to a purchased course.
type Entitlement struct {
	Email     string    `json:"email"`
	CourseKey string    `json:"course_key"`
	GrantedAt time.Time `json:"granted_at"`
	Price     Amount    `json:"price"`
}

type WarmLeadsReport struct {
	HighActivity   []HighActivityUser `json:"high_activity"`
	Abandoned      []AbandonedClick   `json:"abandoned"`
	TodayActive    []ActiveUser       `json:"today_active"`
	BoughtInactive []InactiveBuyer    `json:"bought_inactive"`
	BookedCount    int                `json:"booked_count"`
	ConversionRate float64            `json:"conversion_rate"`
}

// Amount is a money value. Postgres numeric columns may arrive as JSON
// strings; null and unparsable text decode as zero.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			f = 0
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(f)
	return nil
}

// BackendMetrics is the single row of backend_revenue_metrics.
type BackendMetrics struct {
	ConvertedCount    int                `json:"converted_customers_count"`
	TotalRevenue      Amount             `json:"total_backend_revenue"`
	FrontendCustomers int                `json:"frontend_customers_count"`
	TopConverted      []ConvertedSummary `json:"top_converted_customers"`
}

// ConvertedSummary is one entry of top_converted_customers.
type ConvertedSummary struct {
	Email             string   `json:"email"`
	TotalBackendSpend Amount   `json:"total_backend_spend"`
	ProductsPurchased int      `json:"products_purchased"`
	Products          []string `json:"products"`
}

// ConvertedCustomer is a frontend buyer who went on to buy a backend product.
type ConvertedCustomer struct {
	Email               string     `json:"email"`
	TotalBackendSpend   float64    `json:"total_backend_spend"`
	BackendProductCount int        `json:"backend_product_count"`
	BackendProducts     []string   `json:"backend_products"`
	FrontendProducts    []string   `json:"frontend_products"`
	LatestPurchase      *time.Time `json:"latest_purchase"`
}

type ConvertedKPIs struct {
	Converted      int     `json:"converted"`
	TotalRevenue   float64 `json:"total_revenue"`
	ConversionRate float64 `json:"conversion_rate"`
	AvgSpend       float64 `json:"avg_spend"`
}
