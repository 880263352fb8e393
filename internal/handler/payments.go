package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/payment"
)

// PaymentHandler serves the tenant/owner payment portal.
type PaymentHandler struct {
	svc *payment.Service
	log *zap.Logger
}

func NewPaymentHandler(svc *payment.Service, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log.Named("payments")}
}

// ListPayments handles GET /portal/payments.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := payment.ListQuery{
		ContractID: q.Get("contractId"),
		Status:     domain.DisplayStatus(q.Get("status")),
		PayerRole:  domain.PayerRole(q.Get("payerRole")),
	}
	var ok bool
	if query.DueFrom, ok = queryDate(w, r, "dueFrom"); !ok {
		return
	}
	if query.DueTo, ok = queryDate(w, r, "dueTo"); !ok {
		return
	}
	views, err := h.svc.List(r.Context(), query)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if views == nil {
		views = []payment.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

// Summary handles GET /portal/payments/summary.
func (h *PaymentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Summary(r.Context(), r.URL.Query().Get("contractId"))
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetPayment handles GET /portal/payments/{id}.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CreatePayment handles POST /portal/payments: a tenant reports a payment
// that had no pending record.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var in payment.StandaloneInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.svc.SubmitStandalone(r.Context(), actor, in)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// SubmitPayment handles POST /portal/payments/{id}/submit.
func (h *PaymentHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var in payment.SubmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.svc.Submit(r.Context(), actor, chi.URLParam(r, "id"), in)
	h.writeOutcome(w, out, err)
}

// VerifyPayment handles POST /portal/payments/{id}/verify.
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Verify)
}

// RejectPayment handles POST /portal/payments/{id}/reject.
func (h *PaymentHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.svc.Reject)
}

func (h *PaymentHandler) review(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, actor domain.Actor, id string, in payment.ReviewInput) (payment.Outcome, error)) {
	actor, in, ok := parseReview(w, r)
	if !ok {
		return
	}
	out, err := action(r.Context(), actor, chi.URLParam(r, "id"), in)
	h.writeOutcome(w, out, err)
}

func (h *PaymentHandler) writeOutcome(w http.ResponseWriter, out payment.Outcome, err error) {
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Legacy receipts ──────────────────────────────────────────────────────────

// ListReceipts handles GET /portal/receipts.
func (h *PaymentHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Receipts(r.Context(), r.URL.Query().Get("contractId"))
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if rs == nil {
		rs = []domain.Receipt{}
	}
	writeJSON(w, http.StatusOK, rs)
}

// CreateReceipt handles POST /portal/receipts.
func (h *PaymentHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var in payment.ReceiptInput
	if !decodeJSON(w, r, &in) {
		return
	}
	rc, err := h.svc.SubmitReceipt(r.Context(), actor, in)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}

// ApproveReceipt handles POST /portal/receipts/{id}/approve.
func (h *PaymentHandler) ApproveReceipt(w http.ResponseWriter, r *http.Request) {
	h.reviewReceipt(w, r, h.svc.ApproveReceipt)
}

// RejectReceipt handles POST /portal/receipts/{id}/reject.
func (h *PaymentHandler) RejectReceipt(w http.ResponseWriter, r *http.Request) {
	h.reviewReceipt(w, r, h.svc.RejectReceipt)
}

func (h *PaymentHandler) reviewReceipt(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, actor domain.Actor, id string, in payment.ReviewInput) (payment.ReceiptOutcome, error)) {
	actor, in, ok := parseReview(w, r)
	if !ok {
		return
	}
	out, err := action(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// parseReview reads the actor and the optional review body. An empty body
// is accepted.
func parseReview(w http.ResponseWriter, r *http.Request) (domain.Actor, payment.ReviewInput, bool) {
	actor, ok := parseActor(w, r)
	if !ok {
		return domain.Actor{}, payment.ReviewInput{}, false
	}
	var in payment.ReviewInput
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body: "+err.Error())
		return domain.Actor{}, payment.ReviewInput{}, false
	}
	return actor, in, true
}
