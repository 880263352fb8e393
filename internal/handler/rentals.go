package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
	"github.com/homesapp/rentals/internal/validate"
)

// RentalStore is the persistence behind the single-entity endpoints.
type RentalStore interface {
	GetUnit(ctx context.Context, id string) (domain.Unit, error)
	GetClient(ctx context.Context, id string) (domain.Client, error)
	CreateOwner(ctx context.Context, o domain.Owner) error
	ActiveOwner(ctx context.Context, unitID string) (domain.Owner, error)
	CreateContract(ctx context.Context, c domain.Contract) error
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	DeleteContract(ctx context.Context, id string) error
	ListContracts(ctx context.Context) ([]domain.Contract, error)
	CreateScheduleEntries(ctx context.Context, entries []domain.ScheduleEntry) error
	ListScheduleEntries(ctx context.Context, contractID string) ([]domain.ScheduleEntry, error)
	CreateAdditionalTenant(ctx context.Context, t domain.AdditionalTenant) error
	ListAdditionalTenants(ctx context.Context, contractID string) ([]domain.AdditionalTenant, error)
}

// RentalHandler serves the owner, contract and co-tenant endpoints the
// provisioning UI calls one entity at a time.
type RentalHandler struct {
	store     RentalStore
	cache     cache.Cache
	bus       event.Publisher
	validator *validate.Validator
	log       *zap.Logger
	now       func() time.Time
	cacheTTL  time.Duration
}

func NewRentalHandler(store RentalStore, c cache.Cache, bus event.Publisher, v *validate.Validator, log *zap.Logger) *RentalHandler {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if bus == nil {
		bus = event.Discard
	}
	return &RentalHandler{
		store:     store,
		cache:     c,
		bus:       bus,
		validator: v,
		log:       log.Named("rentals"),
		now:       time.Now,
		cacheTTL:  time.Minute,
	}
}

// ── Owners ───────────────────────────────────────────────────────────────────

type ownerBody struct {
	UnitID     string `json:"unitId"`
	OwnerName  string `json:"ownerName"`
	OwnerEmail string `json:"ownerEmail,omitempty"`
	OwnerPhone string `json:"ownerPhone,omitempty"`
	IsActive   *bool  `json:"isActive,omitempty"`
}

// CreateOwner handles POST /external-unit-owners.
func (h *RentalHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var body ownerBody
	if !decodeJSON(w, r, &body) {
		return
	}
	o, err := h.createOwner(r.Context(), body)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if o.IsActive {
		h.bus.Publish(r.Context(), event.NewOwnerAssigned(event.OwnerAssignedPayload{
			OwnerID: o.ID, UnitID: o.UnitID, OwnerName: o.OwnerName,
		}).By(actor))
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *RentalHandler) createOwner(ctx context.Context, body ownerBody) (domain.Owner, error) {
	unitID := strings.TrimSpace(body.UnitID)
	if unitID == "" {
		return domain.Owner{}, domain.Invalid("unitId", "is required")
	}
	name := strings.TrimSpace(body.OwnerName)
	if name == "" {
		return domain.Owner{}, domain.Invalid("ownerName", "is required")
	}
	if err := h.requireUnit(ctx, unitID); err != nil {
		return domain.Owner{}, err
	}
	o := domain.Owner{
		ID:         uuid.New().String(),
		UnitID:     unitID,
		OwnerName:  name,
		OwnerEmail: strings.TrimSpace(body.OwnerEmail),
		OwnerPhone: strings.TrimSpace(body.OwnerPhone),
		IsActive:   body.IsActive == nil || *body.IsActive,
		CreatedAt:  h.now(),
	}
	if err := h.store.CreateOwner(ctx, o); err != nil {
		return domain.Owner{}, fmt.Errorf("creating owner: %w", err)
	}
	h.invalidate(ctx, cache.PrefixOwnersByUnit+unitID, cache.PrefixUnits+unitID)
	return o, nil
}

// ActiveOwner handles GET /external-unit-owners/active/{unitId}.
func (h *RentalHandler) ActiveOwner(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	o, err := cache.Remember(r.Context(), h.cache, cache.PrefixOwnersByUnit+unitID, h.cacheTTL,
		func(ctx context.Context) (domain.Owner, error) { return h.store.ActiveOwner(ctx, unitID) })
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ── Contracts ────────────────────────────────────────────────────────────────

type contractBody struct {
	Contract           contractFields `json:"contract"`
	AdditionalServices []serviceBody  `json:"additionalServices"`
}

type contractFields struct {
	UnitID              string       `json:"unitId"`
	OwnerID             string       `json:"ownerId,omitempty"`
	ClientID            string       `json:"clientId,omitempty"`
	TenantName          string       `json:"tenantName"`
	TenantEmail         string       `json:"tenantEmail"`
	TenantPhone         string       `json:"tenantPhone"`
	StartDate           string       `json:"startDate"`
	EndDate             string       `json:"endDate,omitempty"`
	LeaseDurationMonths int          `json:"leaseDurationMonths,omitempty"`
	MonthlyRent         float64      `json:"monthlyRent"`
	Deposit             float64      `json:"deposit,omitempty"`
	Currency            string       `json:"currency,omitempty"`
	Purpose             string       `json:"purpose,omitempty"`
	Pets                *domain.Pets `json:"pets,omitempty"`
}

type serviceBody struct {
	ServiceType      domain.ServiceType `json:"serviceType"`
	ChargeKind       domain.ChargeKind  `json:"chargeKind,omitempty"`
	Amount           *float64           `json:"amount,omitempty"`
	DayOfMonth       int                `json:"dayOfMonth"`
	Currency         string             `json:"currency,omitempty"`
	PaymentFrequency domain.Frequency   `json:"paymentFrequency,omitempty"`
}

// charge converts the wire form. Without an explicit chargeKind a missing or
// zero amount is the placeholder for a variable charge.
func (s serviceBody) charge() schedule.Charge {
	c := schedule.Charge{
		ServiceType: s.ServiceType,
		ChargeKind:  s.ChargeKind,
		DayOfMonth:  s.DayOfMonth,
		Frequency:   s.PaymentFrequency,
		Currency:    s.Currency,
	}
	if s.Amount != nil {
		c.Amount = strconv.FormatFloat(*s.Amount, 'f', -1, 64)
	}
	if c.ChargeKind == "" {
		c.ChargeKind = domain.ChargeFixed
		if s.Amount == nil || *s.Amount == 0 {
			c.ChargeKind = domain.ChargeVariable
		}
	}
	return c
}

// contractResponse is the wire form of a contract; amounts are numeric.
type contractResponse struct {
	ID                  string                 `json:"id"`
	UnitID              string                 `json:"unitId"`
	OwnerID             *string                `json:"ownerId,omitempty"`
	ClientID            *string                `json:"clientId,omitempty"`
	TenantName          string                 `json:"tenantName"`
	TenantEmail         string                 `json:"tenantEmail"`
	TenantPhone         string                 `json:"tenantPhone"`
	StartDate           string                 `json:"startDate"`
	EndDate             string                 `json:"endDate,omitempty"`
	LeaseDurationMonths int                    `json:"leaseDurationMonths"`
	MonthlyRent         float64                `json:"monthlyRent"`
	Deposit             float64                `json:"deposit"`
	Currency            string                 `json:"currency"`
	Purpose             string                 `json:"purpose,omitempty"`
	Pets                *domain.Pets           `json:"pets,omitempty"`
	Schedule            []domain.ScheduleEntry `json:"schedule"`
	CreatedBy           string                 `json:"createdBy"`
	CreatedAt           time.Time              `json:"createdAt"`
}

func newContractResponse(c domain.Contract, entries []domain.ScheduleEntry) contractResponse {
	return contractResponse{
		ID:                  c.ID,
		UnitID:              c.UnitID,
		OwnerID:             c.OwnerID,
		ClientID:            c.ClientID,
		TenantName:          c.TenantName,
		TenantEmail:         c.TenantEmail,
		TenantPhone:         c.TenantPhone,
		StartDate:           types.FormatDate(c.StartDate),
		EndDate:             types.FormatDate(c.EndDate),
		LeaseDurationMonths: c.LeaseDurationMonths,
		MonthlyRent:         c.MonthlyRent.Major(),
		Deposit:             c.Deposit.Major(),
		Currency:            c.Currency(),
		Purpose:             c.Purpose,
		Pets:                c.Pets,
		Schedule:            entries,
		CreatedBy:           c.CreatedBy,
		CreatedAt:           c.CreatedAt,
	}
}

// CreateContract handles POST /external-rental-contracts. The rent entry and
// every additional service are written as schedule entries; if that fails
// the contract is removed again.
func (h *RentalHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var body contractBody
	if !decodeJSON(w, r, &body) {
		return
	}
	c, entries, err := h.createContract(r.Context(), actor, body)
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	h.bus.Publish(r.Context(), event.NewContractCreated(event.ContractCreatedPayload{
		ContractID:      c.ID,
		UnitID:          c.UnitID,
		TenantName:      c.TenantName,
		StartDate:       types.FormatDate(c.StartDate),
		EndDate:         types.FormatDate(c.EndDate),
		MonthlyRent:     c.MonthlyRent,
		ScheduleEntries: len(entries),
	}).By(actor))
	writeJSON(w, http.StatusCreated, newContractResponse(c, entries))
}

func (h *RentalHandler) createContract(ctx context.Context, actor domain.Actor, body contractBody) (domain.Contract, []domain.ScheduleEntry, error) {
	f := body.Contract
	in := schedule.Input{
		StartDate:      f.StartDate,
		DurationMonths: f.LeaseDurationMonths,
		EndDate:        f.EndDate,
		MonthlyRent:    strconv.FormatFloat(f.MonthlyRent, 'f', -1, 64),
		Currency:       f.Currency,
	}
	for _, s := range body.AdditionalServices {
		in.ExtraCharges = append(in.ExtraCharges, s.charge())
	}
	if err := h.validateContract(ctx, f, in); err != nil {
		return domain.Contract{}, nil, err
	}

	gen := schedule.Generate(in)
	currency := types.CurrencyOrDefault(f.Currency)
	rent, err := types.MoneyFromMajor(f.MonthlyRent, currency)
	if err != nil {
		return domain.Contract{}, nil, domain.Invalid("contract.monthlyRent", "must be a valid amount")
	}
	deposit, err := types.MoneyFromMajor(f.Deposit, currency)
	if err != nil {
		return domain.Contract{}, nil, domain.Invalid("contract.deposit", "must be a valid amount")
	}
	c := domain.Contract{
		ID:                  uuid.New().String(),
		UnitID:              strings.TrimSpace(f.UnitID),
		TenantName:          strings.TrimSpace(f.TenantName),
		TenantEmail:         strings.TrimSpace(f.TenantEmail),
		TenantPhone:         strings.TrimSpace(f.TenantPhone),
		StartDate:           gen.StartDate,
		EndDate:             gen.EndDate,
		MonthlyRent:         rent,
		LeaseDurationMonths: f.LeaseDurationMonths,
		Deposit:             deposit,
		Purpose:             f.Purpose,
		Pets:                f.Pets,
		CreatedBy:           actor.ID,
		CreatedAt:           h.now(),
	}
	if id := strings.TrimSpace(f.OwnerID); id != "" {
		c.OwnerID = &id
	}
	if id := strings.TrimSpace(f.ClientID); id != "" {
		client, err := h.store.GetClient(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Contract{}, nil, domain.Invalid("contract.clientId", "unknown client %s", id)
			}
			return domain.Contract{}, nil, err
		}
		c.ClientID = &client.ID
		c.TenantName, c.TenantEmail, c.TenantPhone = client.Name, client.Email, client.Phone
	}

	if err := h.store.CreateContract(ctx, c); err != nil {
		return domain.Contract{}, nil, fmt.Errorf("creating contract: %w", err)
	}
	entries := make([]domain.ScheduleEntry, len(gen.Entries))
	for i, e := range gen.Entries {
		e.ID = uuid.New().String()
		e.ContractID = c.ID
		e.UnitID = c.UnitID
		entries[i] = e
	}
	if err := h.store.CreateScheduleEntries(ctx, entries); err != nil {
		if derr := h.store.DeleteContract(context.WithoutCancel(ctx), c.ID); derr != nil {
			h.log.Error("removing contract after schedule failure", zap.String("contract_id", c.ID), zap.Error(derr))
		}
		return domain.Contract{}, nil, fmt.Errorf("creating schedule: %w", err)
	}

	h.invalidate(ctx, cache.PrefixContracts, cache.PrefixUnits)
	h.log.Info("contract created",
		zap.String("contract_id", c.ID),
		zap.String("unit_id", c.UnitID),
		zap.Int("schedule_entries", len(entries)),
		zap.String("actor", actor.ID),
	)
	return c, entries, nil
}

// contractDetail is the cached read model of one contract.
type contractDetail struct {
	contractResponse
	AdditionalTenants []domain.AdditionalTenant `json:"additionalTenants"`
}

// GetContract handles GET /external-rental-contracts/{id}.
func (h *RentalHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := cache.Remember(r.Context(), h.cache, cache.PrefixContracts+id, h.cacheTTL, func(ctx context.Context) (contractDetail, error) {
		c, err := h.store.GetContract(ctx, id)
		if err != nil {
			return contractDetail{}, err
		}
		entries, err := h.store.ListScheduleEntries(ctx, id)
		if err != nil {
			return contractDetail{}, fmt.Errorf("listing schedule: %w", err)
		}
		tenants, err := h.store.ListAdditionalTenants(ctx, id)
		if err != nil {
			return contractDetail{}, fmt.Errorf("listing tenants: %w", err)
		}
		if entries == nil {
			entries = []domain.ScheduleEntry{}
		}
		if tenants == nil {
			tenants = []domain.AdditionalTenant{}
		}
		return contractDetail{contractResponse: newContractResponse(c, entries), AdditionalTenants: tenants}, nil
	})
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ── Units ────────────────────────────────────────────────────────────────────

type unitContract struct {
	ID          string          `json:"id"`
	TenantName  string          `json:"tenantName"`
	Term        types.DateRange `json:"term"`
	MonthlyRent float64         `json:"monthlyRent"`
	Deposit     *float64        `json:"deposit,omitempty"`
	Currency    string          `json:"currency"`
}

// unitView is the cached read model of one unit. Contracts are newest first.
type unitView struct {
	domain.Unit
	ActiveOwner *domain.Owner  `json:"activeOwner,omitempty"`
	Contracts   []unitContract `json:"contracts"`
}

// GetUnit handles GET /external-units/{unitId}.
func (h *RentalHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	v, err := cache.Remember(r.Context(), h.cache, cache.PrefixUnits+unitID, h.cacheTTL,
		func(ctx context.Context) (unitView, error) { return h.loadUnit(ctx, unitID) })
	if err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *RentalHandler) loadUnit(ctx context.Context, unitID string) (unitView, error) {
	u, err := h.store.GetUnit(ctx, unitID)
	if err != nil {
		return unitView{}, err
	}
	v := unitView{Unit: u, Contracts: []unitContract{}}
	switch o, err := h.store.ActiveOwner(ctx, unitID); {
	case err == nil:
		v.ActiveOwner = &o
	case !errors.Is(err, domain.ErrNotFound):
		return unitView{}, fmt.Errorf("loading owner: %w", err)
	}

	contracts, err := h.store.ListContracts(ctx)
	if err != nil {
		return unitView{}, fmt.Errorf("listing contracts: %w", err)
	}
	for _, c := range contracts {
		if c.UnitID != unitID {
			continue
		}
		uc := unitContract{
			ID:          c.ID,
			TenantName:  c.TenantName,
			Term:        c.Term(),
			MonthlyRent: c.MonthlyRent.Major(),
			Currency:    c.Currency(),
		}
		if !c.Deposit.IsZero() {
			d := c.Deposit.Major()
			uc.Deposit = &d
		}
		v.Contracts = append(v.Contracts, uc)
	}
	sort.SliceStable(v.Contracts, func(i, j int) bool {
		a, b := v.Contracts[i].Term.Start, v.Contracts[j].Term.Start
		if a.Equal(b) {
			return v.Contracts[i].ID > v.Contracts[j].ID
		}
		return a.After(b)
	})
	return v, nil
}

func (h *RentalHandler) validateContract(ctx context.Context, f contractFields, in schedule.Input) error {
	unitID := strings.TrimSpace(f.UnitID)
	if unitID == "" {
		return domain.Invalid("contract.unitId", "is required")
	}
	if _, err := types.ParseDate(f.StartDate); err != nil {
		return domain.Invalid("contract.startDate", "must be a valid date")
	}
	switch {
	case f.LeaseDurationMonths < 0:
		return domain.Invalid("contract.leaseDurationMonths", "must be positive")
	case f.LeaseDurationMonths == 0 && strings.TrimSpace(f.EndDate) == "":
		return domain.Invalid("contract.leaseDurationMonths", "leaseDurationMonths or endDate is required")
	case f.LeaseDurationMonths == 0:
		if _, err := types.ParseDate(f.EndDate); err != nil {
			return domain.Invalid("contract.endDate", "must be a valid date")
		}
	}
	if f.MonthlyRent <= 0 {
		return domain.Invalid("contract.monthlyRent", "must be a positive amount")
	}
	if f.Deposit < 0 {
		return domain.Invalid("contract.deposit", "must not be negative")
	}
	if strings.TrimSpace(f.ClientID) == "" && strings.TrimSpace(f.TenantName) == "" {
		return domain.Invalid("contract.tenantName", "is required")
	}
	if h.validator != nil {
		if err := h.validator.Charges(in.ExtraCharges); err != nil {
			return err
		}
	}
	return h.requireUnit(ctx, unitID)
}

// ── Co-tenants ───────────────────────────────────────────────────────────────

type tenantBody struct {
	ContractID string `json:"contractId"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IDPhotoURL string `json:"idPhotoUrl,omitempty"`
}

// CreateTenant handles POST /external-rental-tenants.
func (h *RentalHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := parseActor(w, r)
	if !ok {
		return
	}
	var body tenantBody
	if !decodeJSON(w, r, &body) {
		return
	}
	t := domain.AdditionalTenant{
		ID:         uuid.New().String(),
		ContractID: strings.TrimSpace(body.ContractID),
		FullName:   strings.TrimSpace(body.FullName),
		Email:      strings.TrimSpace(body.Email),
		Phone:      strings.TrimSpace(body.Phone),
		IDPhotoURL: body.IDPhotoURL,
		CreatedAt:  h.now(),
	}
	if t.ContractID == "" {
		domainErrorToHTTP(w, h.log, domain.Invalid("contractId", "is required"))
		return
	}
	if t.FullName == "" {
		domainErrorToHTTP(w, h.log, domain.Invalid("fullName", "is required"))
		return
	}
	if _, err := h.store.GetContract(r.Context(), t.ContractID); err != nil {
		domainErrorToHTTP(w, h.log, err)
		return
	}
	if err := h.store.CreateAdditionalTenant(r.Context(), t); err != nil {
		domainErrorToHTTP(w, h.log, fmt.Errorf("creating tenant: %w", err))
		return
	}
	h.invalidate(r.Context(), cache.PrefixContracts+t.ContractID)
	h.bus.Publish(r.Context(), event.NewTenantAdded(event.TenantAddedPayload{
		TenantID: t.ID, ContractID: t.ContractID, FullName: t.FullName,
	}).By(actor))
	writeJSON(w, http.StatusCreated, t)
}

func (h *RentalHandler) requireUnit(ctx context.Context, unitID string) error {
	if _, err := h.store.GetUnit(ctx, unitID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("unitId", "unknown unit %s", unitID)
		}
		return err
	}
	return nil
}

func (h *RentalHandler) invalidate(ctx context.Context, prefixes ...string) {
	if err := cache.InvalidateAll(ctx, h.cache, prefixes...); err != nil {
		h.log.Warn("cache invalidation failed", zap.Error(err))
	}
}
