package leads

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/models"
	"github.com/AngelCh415/coursepulse/internal/query"
)

const (
	SortSpend    = "spend"
	SortProducts = "products"
	SortRecent   = "recent"

	backendMetricsTable = "backend_revenue_metrics"
)

// FrontendCourses are the entry-level products; every other course key is a
// backend product.
var FrontendCourses = []string{
	"Profit Machine System",
	"Profit Machine Maximizer",
	"Rapid Scaling Blueprint",
	"Profit Machine Maximizer (3-Pay plan)",
}

func isFrontend(courseKey string) bool {
	return slices.Contains(FrontendCourses, courseKey)
}

// Converted lists frontend buyers who bought a backend product.
type Converted struct {
	rows ingest.RowSource
	log  *slog.Logger
}

func NewConverted(rows ingest.RowSource, log *slog.Logger) *Converted {
	return &Converted{rows: rows, log: log.With("component", "converted")}
}

type ConvertedReport struct {
	KPIs      models.ConvertedKPIs       `json:"kpis"`
	Customers []models.ConvertedCustomer `json:"customers"`
}

type ConvertedParams struct {
	PageParams
	Sort   string
	Search string
}

func ParseConvertedParams(v url.Values) (ConvertedParams, error) {
	p := ConvertedParams{PageParams: ParsePageParams(v), Sort: SortSpend, Search: norm(v.Get("q"))}
	switch s := norm(v.Get("sort")); s {
	case "", SortSpend:
	case SortProducts, SortRecent:
		p.Sort = s
	default:
		return p, fmt.Errorf("unknown sort %q", s)
	}
	return p, nil
}

type ConvertedPage struct {
	Page[models.ConvertedCustomer]
	KPIs models.ConvertedKPIs `json:"kpis"`
}

// Load reads the revenue metrics row, then the entitlements of every listed
// customer in one batch, and splits their products into frontend and
// backend.
func (c *Converted) Load(ctx context.Context) (ConvertedReport, error) {
	var m models.BackendMetrics
	if err := c.rows.Row(ctx, query.From(backendMetricsTable), &m); err != nil {
		c.log.Error("load converted", slog.String("err", err.Error()))
		return ConvertedReport{}, fmt.Errorf("load converted: %w", err)
	}
	report := ConvertedReport{KPIs: ConvertedKPIsOf(m), Customers: []models.ConvertedCustomer{}}
	if len(m.TopConverted) == 0 {
		return report, nil
	}

	emails := make([]string, 0, len(m.TopConverted))
	for _, s := range m.TopConverted {
		emails = append(emails, s.Email)
	}
	var ents []models.Entitlement
	if err := c.rows.Rows(ctx, query.From("entitlements").
		Select("email", "course_key", "price", "granted_at").
		In("email", emails...), &ents); err != nil {
		c.log.Error("load converted entitlements", slog.String("err", err.Error()))
		return ConvertedReport{}, fmt.Errorf("load converted: %w", err)
	}
	report.Customers = BuildConverted(m.TopConverted, ents)
	c.log.Debug("converted loaded", slog.Int("customers", len(report.Customers)))
	return report, nil
}

func (c *Converted) List(ctx context.Context, p ConvertedParams) (ConvertedPage, error) {
	r, err := c.Load(ctx)
	if err != nil {
		return ConvertedPage{}, err
	}
	rows := SearchConverted(r.Customers, p.Search)
	SortConverted(rows, p.Sort)
	return ConvertedPage{Page: paginate(rows, p.PageParams), KPIs: r.KPIs}, nil
}

// ConvertedKPIsOf derives the rate (converted over frontend buyers, one
// decimal) and the average backend spend per converted customer.
func ConvertedKPIsOf(m models.BackendMetrics) models.ConvertedKPIs {
	k := models.ConvertedKPIs{Converted: m.ConvertedCount, TotalRevenue: float64(m.TotalRevenue)}
	if m.FrontendCustomers > 0 {
		k.ConversionRate = math.Round(float64(m.ConvertedCount)/float64(m.FrontendCustomers)*1000) / 10
	}
	if m.ConvertedCount > 0 {
		k.AvgSpend = k.TotalRevenue / float64(m.ConvertedCount)
	}
	return k
}

// BuildConverted joins the summary rows with their entitlements. Product
// names from the summary win over backend course keys from entitlements.
func BuildConverted(summary []models.ConvertedSummary, ents []models.Entitlement) []models.ConvertedCustomer {
	type owned struct {
		frontend, backend []string
		latest            *models.Entitlement
	}
	byEmail := make(map[string]*owned)
	for i, e := range ents {
		o, ok := byEmail[e.Email]
		if !ok {
			o = &owned{}
			byEmail[e.Email] = o
		}
		if isFrontend(e.CourseKey) {
			if !slices.Contains(o.frontend, e.CourseKey) {
				o.frontend = append(o.frontend, e.CourseKey)
			}
		} else {
			o.backend = append(o.backend, e.CourseKey)
		}
		if o.latest == nil || e.GrantedAt.After(o.latest.GrantedAt) {
			o.latest = &ents[i]
		}
	}

	out := make([]models.ConvertedCustomer, 0, len(summary))
	for _, s := range summary {
		o := byEmail[s.Email]
		if o == nil {
			o = &owned{}
		}
		c := models.ConvertedCustomer{
			Email:               s.Email,
			TotalBackendSpend:   float64(s.TotalBackendSpend),
			BackendProductCount: s.ProductsPurchased,
			BackendProducts:     s.Products,
			FrontendProducts:    o.frontend,
		}
		if c.BackendProducts == nil {
			c.BackendProducts = o.backend
		}
		if c.BackendProducts == nil {
			c.BackendProducts = []string{}
		}
		if c.FrontendProducts == nil {
			c.FrontendProducts = []string{}
		}
		if o.latest != nil {
			t := o.latest.GrantedAt
			c.LatestPurchase = &t
		}
		out = append(out, c)
	}
	return out
}

func SearchConverted(rows []models.ConvertedCustomer, q string) []models.ConvertedCustomer {
	q = norm(q)
	out := make([]models.ConvertedCustomer, 0, len(rows))
	for _, c := range rows {
		if q == "" || strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out
}

// SortConverted orders by spend or product count, highest first, or by the
// latest purchase with customers lacking one last.
func SortConverted(rows []models.ConvertedCustomer, by string) {
	switch by {
	case SortProducts:
		slices.SortStableFunc(rows, func(a, b models.ConvertedCustomer) int {
			return cmp.Compare(b.BackendProductCount, a.BackendProductCount)
		})
	case SortRecent:
		slices.SortStableFunc(rows, func(a, b models.ConvertedCustomer) int {
			switch {
			case a.LatestPurchase == nil && b.LatestPurchase == nil:
				return 0
			case a.LatestPurchase == nil:
				return 1
			case b.LatestPurchase == nil:
				return -1
			}
			return b.LatestPurchase.Compare(*a.LatestPurchase)
		})
	default:
		slices.SortStableFunc(rows, func(a, b models.ConvertedCustomer) int {
			return cmp.Compare(b.TotalBackendSpend, a.TotalBackendSpend)
		})
	}
}
