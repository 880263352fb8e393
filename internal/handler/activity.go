package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/activity"
	"github.com/homesapp/rentals/internal/domain"
)

// ActivityHandler serves entity timelines.
type ActivityHandler struct {
	store activity.Store
	log   *zap.Logger
}

func NewActivityHandler(store activity.Store, log *zap.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, log: log.Named("activity")}
}

type activityPage struct {
	Entries    []activity.Entry `json:"entries"`
	NextCursor string           `json:"nextCursor,omitempty"`
	Total      int              `json:"total"`
}

// Entity handles GET /v1/activity/{entityType}/{entityId}.
func (h *ActivityHandler) Entity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := activity.QueryOptions{
		Categories: splitList(q.Get("category")),
		MinWeight:  q.Get("minWeight"),
		Cursor:     q.Get("cursor"),
	}
	if opts.MinWeight != "" && !validWeight(opts.MinWeight) {
		domainErrorToHTTP(w, h.log, domain.Invalid("minWeight", "must be one of %s", strings.Join(activity.Weights, ", ")))
		return
	}
	var ok bool
	if opts.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	since, ok := queryDate(w, r, "since")
	if !ok {
		return
	}
	if !since.IsZero() {
		opts.Since = &since
	}

	entries, next, total, err := h.store.QueryByEntity(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"), opts)
	if err != nil {
		if errors.Is(err, activity.ErrBadCursor) {
			domainErrorToHTTP(w, h.log, domain.Invalid("cursor", "is not a valid cursor"))
			return
		}
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, activityPage{Entries: entries, NextCursor: next, Total: total})
}

// Search handles GET /v1/activity/search?q=.
func (h *ActivityHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		domainErrorToHTTP(w, h.log, domain.Invalid("q", "is required"))
		return
	}
	opts := activity.SearchOptions{
		EntityType: q.Get("entityType"),
		Categories: splitList(q.Get("category")),
	}
	var ok bool
	if opts.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	entries, total, err := h.store.Search(r.Context(), text, opts)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, activityPage{Entries: entries, Total: total})
}

func validWeight(w string) bool {
	for _, known := range activity.Weights {
		if w == known {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be a non-negative integer", Code: "VALIDATION_ERROR", Field: name})
		return 0, false
	}
	return n, true
}
