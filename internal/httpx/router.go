package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AngelCh415/coursepulse/internal/export"
	"github.com/AngelCh415/coursepulse/internal/ingest"
	"github.com/AngelCh415/coursepulse/internal/leads"
	"github.com/AngelCh415/coursepulse/internal/telemetry"
	"github.com/AngelCh415/coursepulse/internal/utils"
)

// Services is everything the router serves.
type Services struct {
	ETL       *ingest.ETL
	Bookings  *leads.Bookings
	Learners  *leads.Learners
	WarmLeads *leads.WarmLeads
	Converted *leads.Converted
	Metrics   *telemetry.Metrics
	// Ready reports whether the data source is usable. Nil means always ready.
	Ready func() error
	Now   func() time.Time
}

func NewRouter(log *slog.Logger, s Services) http.Handler {
	if s.Now == nil {
		s.Now = time.Now
	}
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log, s.Metrics))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil {
			if err := s.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})

	mux.Post("/ingest/run", func(w http.ResponseWriter, r *http.Request) {
		var since *time.Time
		if q := r.URL.Query().Get("since"); q != "" {
			t, err := time.Parse("2006-01-02", q)
			if err != nil {
				http.Error(w, "bad since (YYYY-MM-DD)", 400)
				return
			}
			since = &t
		}
		if s.ETL == nil {
			loadError(w, ingest.ErrNotConfigured)
			return
		}
		res, err := s.ETL.Run(r.Context(), since)
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, res)
	})

	mux.Get("/bookings", func(w http.ResponseWriter, r *http.Request) {
		p, err := leads.ParseBookingParams(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		page, err := s.Bookings.List(r.Context(), p)
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, page)
	})

	mux.Get("/bookings/summary", func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.Bookings.Summary(r.Context())
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, sum)
	})

	mux.Get("/bookings/export", func(w http.ResponseWriter, r *http.Request) {
		all, err := s.Bookings.Load(r.Context())
		if err != nil {
			loadError(w, err)
			return
		}
		now := s.Now()
		writeCSV(w, export.BookingsFileName(now))
		if err := export.WriteBookings(w, all, leads.Summarize(all, now), now); err != nil {
			log.Error("write bookings export", slog.String("err", err.Error()))
		}
	})

	mux.Get("/learners", func(w http.ResponseWriter, r *http.Request) {
		p, err := leads.ParseLearnerParams(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		page, err := s.Learners.List(r.Context(), p)
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, page)
	})

	mux.Get("/warm-leads", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.WarmLeads.Load(r.Context())
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, report)
	})

	mux.Get("/warm-leads/export", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.WarmLeads.Load(r.Context())
		if err != nil {
			loadError(w, err)
			return
		}
		now := s.Now()
		writeCSV(w, export.WarmLeadsFileName(now))
		if err := export.WriteWarmLeads(w, report, now); err != nil {
			log.Error("write warm leads export", slog.String("err", err.Error()))
		}
	})

	mux.Get("/converted", func(w http.ResponseWriter, r *http.Request) {
		p, err := leads.ParseConvertedParams(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		page, err := s.Converted.List(r.Context(), p)
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, page)
	})

	mux.Get("/journey/{email}", func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if email == "" {
			http.Error(w, "email required", 400)
			return
		}
		v, err := s.Bookings.Journey(r.Context(), email)
		if err != nil {
			loadError(w, err)
			return
		}
		writeJSON(w, v)
	})

	mux.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	return mux
}

// loadError maps a failed data load to 503 when no source is configured and
// 502 otherwise.
func loadError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, ingest.ErrNotConfigured) {
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

func writeCSV(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
