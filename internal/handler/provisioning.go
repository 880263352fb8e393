package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/provisioning"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
)

// ProvisioningHandler exposes the whole provisioning workflow as one call.
type ProvisioningHandler struct {
	wf  *provisioning.Workflow
	log *zap.Logger
}

func NewProvisioningHandler(wf *provisioning.Workflow, log *zap.Logger) *ProvisioningHandler {
	return &ProvisioningHandler{wf: wf, log: log.Named("provisioning")}
}

// Provision handles POST /v1/provisioning. The Idempotency-Key header, when
// present, takes precedence over the body field.
func (h *ProvisioningHandler) Provision(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var req provisioning.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}
	res, err := h.wf.Provision(r.Context(), actor, req)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type previewResponse struct {
	StartDate string                 `json:"startDate"`
	EndDate   string                 `json:"endDate"`
	TotalDays int                    `json:"totalDays"`
	Entries   []domain.ScheduleEntry `json:"entries"`
}

// PreviewSchedule handles POST /v1/schedules/preview. Nothing is written.
func (h *ProvisioningHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var in schedule.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.wf.Preview(in)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	entries := res.Entries
	if entries == nil {
		entries = []domain.ScheduleEntry{}
	}
	writeJSON(w, http.StatusOK, previewResponse{
		StartDate: types.FormatDate(res.StartDate),
		EndDate:   types.FormatDate(res.EndDate),
		TotalDays: res.TotalDays(),
		Entries:   entries,
	})
}
