package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/calendar"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
)

// CalendarHandler serves the read-only calendar views.
type CalendarHandler struct {
	svc *calendar.Service
	log *zap.Logger
}

func NewCalendarHandler(svc *calendar.Service, log *zap.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, log: log.Named("calendar")}
}

// filters reads condominiumId and hide (comma-separated kinds).
func filters(w http.ResponseWriter, r *http.Request) (calendar.Filters, bool) {
	q := r.URL.Query()
	f := calendar.Filters{CondominiumID: q.Get("condominiumId")}
	if raw := q.Get("hide"); raw != "" {
		f.Hidden = make(map[calendar.Kind]bool)
		for _, part := range strings.Split(raw, ",") {
			k := calendar.Kind(strings.TrimSpace(part))
			if !validKind(k) {
				domainErrorToHTTP(w, zap.NewNop(), domain.Invalid("hide", "unknown event type %q", k))
				return calendar.Filters{}, false
			}
			f.Hidden[k] = true
		}
	}
	return f, true
}

func validKind(k calendar.Kind) bool {
	for _, known := range calendar.Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// View handles GET /v1/calendar?from=&to=.
func (h *CalendarHandler) View(w http.ResponseWriter, r *http.Request) {
	f, ok := filters(w, r)
	if !ok {
		return
	}
	if f.From, ok = queryDate(w, r, "from"); !ok {
		return
	}
	if f.To, ok = queryDate(w, r, "to"); !ok {
		return
	}
	v, err := h.svc.Window(r.Context(), f)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Day handles GET /v1/calendar/day/{date}?page=.
func (h *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	f, ok := filters(w, r)
	if !ok {
		return
	}
	date, err := types.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		domainErrorToHTTP(w, h.log, domain.Invalid("date", "must be a valid date"))
		return
	}
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 0 {
			domainErrorToHTTP(w, h.log, domain.Invalid("page", "must be a non-negative integer"))
			return
		}
	}
	dp, err := h.svc.Day(r.Context(), date, page, f)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, dp)
}

// Agenda handles GET /v1/calendar/agenda?start=. Start defaults to today.
func (h *CalendarHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	f, ok := filters(w, r)
	if !ok {
		return
	}
	start, ok := queryDate(w, r, "start")
	if !ok {
		return
	}
	if start.IsZero() {
		start = types.Day(h.svc.Now())
	}
	days, err := h.svc.Agenda(r.Context(), start, f)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}
