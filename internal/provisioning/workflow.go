// Package provisioning turns a unit and lease terms into an owner, a
// contract, its billing schedule and its co-tenants. The sequence runs as a
// saga: each step that writes has a compensation, and a failed run leaves no
// partial contract behind.
package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/cache"
	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/event"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
	"github.com/homesapp/rentals/internal/validate"
)

// Store is the persistence the workflow needs.
type Store interface {
	GetUnit(ctx context.Context, id string) (domain.Unit, error)
	GetClient(ctx context.Context, id string) (domain.Client, error)
	ActiveOwner(ctx context.Context, unitID string) (domain.Owner, error)
	CreateOwner(ctx context.Context, o domain.Owner) error
	SetOwnerActive(ctx context.Context, id string, active bool) error
	DeleteOwner(ctx context.Context, id string) error
	CreateContract(ctx context.Context, c domain.Contract) error
	DeleteContract(ctx context.Context, id string) error
	CreateScheduleEntries(ctx context.Context, entries []domain.ScheduleEntry) error
	DeleteScheduleEntries(ctx context.Context, contractID string) error
	CreateAdditionalTenant(ctx context.Context, t domain.AdditionalTenant) error
	GetAttempt(ctx context.Context, key string) (domain.ProvisioningAttempt, error)
	SaveAttempt(ctx context.Context, a domain.ProvisioningAttempt) error
}

// TenantStatus is the outcome of attaching one co-tenant.
type TenantStatus string

const (
	TenantCreated TenantStatus = "created"
	TenantFailed  TenantStatus = "failed"
	TenantSkipped TenantStatus = "skipped"
)

// TenantResult reports the outcome for one entry of Request.AdditionalTenants.
type TenantResult struct {
	Index    int          `json:"index"`
	FullName string       `json:"fullName"`
	Status   TenantStatus `json:"status"`
	TenantID string       `json:"tenantId,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Result is returned by Provision and stored for idempotent replay.
type Result struct {
	Contract          domain.Contract        `json:"contract"`
	Owner             domain.Owner           `json:"owner"`
	OwnerCreated      bool                   `json:"ownerCreated"`
	ReplacedOwnerID   string                 `json:"replacedOwnerId,omitempty"`
	Schedule          []domain.ScheduleEntry `json:"schedule"`
	TotalDays         int                    `json:"totalDays"`
	AdditionalTenants []TenantResult         `json:"additionalTenants"`
	Replayed          bool                   `json:"replayed"`
}

// Workflow runs provisioning requests.
type Workflow struct {
	store     Store
	cache     cache.Cache
	bus       event.Publisher
	validator *validate.Validator
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	locks     keyLocks
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// NewWorkflow creates a provisioning workflow.
func NewWorkflow(store Store, c cache.Cache, bus event.Publisher, v *validate.Validator, log *zap.Logger, opts ...Option) *Workflow {
	if bus == nil {
		bus = event.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Workflow{
		store:     store,
		cache:     c,
		bus:       bus,
		validator: v,
		log:       log.Named("provisioning"),
		tracer:    otel.Tracer("github.com/homesapp/rentals/internal/provisioning"),
		now:       time.Now,
		locks:     keyLocks{m: make(map[string]*keyLock)},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// state is threaded through the saga steps.
type state struct {
	req   Request
	actor domain.Actor
	now   time.Time
	unit  domain.Unit
	gen   schedule.Result

	previous     *domain.Owner // active owner before this run
	reuse        bool
	owner        domain.Owner
	ownerCreated bool
	replaced     bool

	tenantName, tenantEmail, tenantPhone string
	clientID                             *string

	contract domain.Contract
	entries  []domain.ScheduleEntry
	tenants  []TenantResult
}

// Provision validates req and runs the saga. A request whose idempotency key
// already completed returns the stored result with Replayed set.
func (w *Workflow) Provision(ctx context.Context, actor domain.Actor, req Request) (res Result, err error) {
	ctx, span := w.tracer.Start(ctx, "provisioning.provision", trace.WithAttributes(
		attribute.String("unit.id", req.UnitID),
		attribute.String("idempotency.key", req.IdempotencyKey),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.IdempotencyKey != "" {
		unlock := w.locks.lock(req.IdempotencyKey)
		defer unlock()
		if prior, ok, err := w.replay(ctx, req.IdempotencyKey); err != nil || ok {
			return prior, err
		}
	}

	st, err := w.prepare(ctx, actor, req)
	if err != nil {
		return Result{}, err
	}

	s := saga{steps: w.steps(), tracer: w.tracer, log: w.log}
	if err := s.run(ctx, st); err != nil {
		return Result{}, err
	}

	res = Result{
		Contract:          st.contract,
		Owner:             st.owner,
		OwnerCreated:      st.ownerCreated,
		Schedule:          st.entries,
		TotalDays:         st.gen.TotalDays(),
		AdditionalTenants: st.tenants,
	}
	if st.replaced {
		res.ReplacedOwnerID = st.previous.ID
	}
	if req.IdempotencyKey != "" {
		w.remember(ctx, req.IdempotencyKey, res)
	}
	w.invalidate(ctx, st.unit.ID)
	w.publish(ctx, actor, st, res)

	w.log.Info("contract provisioned",
		zap.String("contract_id", res.Contract.ID),
		zap.String("unit_id", st.unit.ID),
		zap.String("owner_id", res.Owner.ID),
		zap.Bool("owner_created", res.OwnerCreated),
		zap.Int("schedule_entries", len(res.Schedule)),
		zap.String("actor", actor.ID),
	)
	return res, nil
}

// Preview derives the schedule for terms and charges without writing.
func (w *Workflow) Preview(in schedule.Input) (schedule.Result, error) {
	if w.validator != nil {
		if err := w.validator.Charges(in.ExtraCharges); err != nil {
			return schedule.Result{}, err
		}
	}
	return schedule.Generate(in), nil
}

func (w *Workflow) replay(ctx context.Context, key string) (Result, bool, error) {
	attempt, err := w.store.GetAttempt(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("loading provisioning attempt: %w", err)
	}
	var res Result
	if err := json.Unmarshal(attempt.Result, &res); err != nil {
		return Result{}, false, fmt.Errorf("decoding provisioning attempt %s: %w", key, err)
	}
	res.Replayed = true
	w.log.Info("provisioning replayed", zap.String("key", key), zap.String("contract_id", attempt.ContractID))
	return res, true, nil
}

func (w *Workflow) remember(ctx context.Context, key string, res Result) {
	raw, err := json.Marshal(res)
	if err == nil {
		err = w.store.SaveAttempt(ctx, domain.ProvisioningAttempt{
			Key:        key,
			ContractID: res.Contract.ID,
			Result:     raw,
			CreatedAt:  w.now().UTC(),
		})
	}
	if err != nil {
		w.log.Warn("saving provisioning attempt failed", zap.String("key", key), zap.Error(err))
	}
}

// prepare runs every check that needs no write.
func (w *Workflow) prepare(ctx context.Context, actor domain.Actor, req Request) (*state, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if w.validator != nil {
		if err := w.validator.Charges(req.ExtraCharges); err != nil {
			return nil, err
		}
	}
	unit, err := w.store.GetUnit(ctx, req.UnitID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Invalid("unitId", "unit %s does not exist", req.UnitID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading unit: %w", err)
	}

	st := &state{req: req, actor: actor, now: w.now().UTC(), unit: unit}

	active, err := w.store.ActiveOwner(ctx, unit.ID)
	switch {
	case err == nil:
		st.previous = &active
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("looking up active owner: %w", err)
	}
	st.reuse = st.previous != nil && !req.Owner.CreateNew
	if !st.reuse && strings.TrimSpace(req.Owner.Name) == "" {
		return nil, domain.Invalid("owner.ownerName", "is required when the unit has no active owner")
	}

	st.gen = schedule.Generate(req.scheduleInput())
	if req.Terms.DurationMonths == 0 && st.gen.EndDate.Before(st.gen.StartDate) {
		w.log.Warn("contract end date precedes start date",
			zap.String("unit_id", unit.ID),
			zap.String("start", req.Terms.StartDate),
			zap.String("end", req.Terms.EndDate),
		)
	}
	return st, nil
}

func (w *Workflow) steps() []Step {
	return []Step{
		{Name: StepOwner, Description: "Reuse, create or replace the unit owner", Run: w.resolveOwner, Compensate: w.undoOwner},
		{Name: StepTenant, Description: "Resolve the tenant identity", Run: w.resolveTenant},
		{Name: StepContract, Description: "Create the contract", Run: w.createContract, Compensate: w.deleteContract},
		{Name: StepSchedule, Description: "Create rent and service schedule entries", Run: w.createSchedule, Compensate: w.deleteSchedule},
		{Name: StepTenants, Description: "Attach co-tenants", Run: w.attachTenants},
	}
}

func (w *Workflow) resolveOwner(ctx context.Context, st *state) error {
	if st.reuse {
		st.owner = *st.previous
		return nil
	}
	o := domain.Owner{
		ID:         uuid.New().String(),
		UnitID:     st.unit.ID,
		OwnerName:  strings.TrimSpace(st.req.Owner.Name),
		OwnerEmail: strings.TrimSpace(st.req.Owner.Email),
		OwnerPhone: strings.TrimSpace(st.req.Owner.Phone),
		IsActive:   true,
		CreatedAt:  st.now,
	}
	if err := w.store.CreateOwner(ctx, o); err != nil {
		return fmt.Errorf("creating owner: %w", err)
	}
	st.owner = o
	st.ownerCreated = true

	if st.previous != nil {
		if err := w.store.SetOwnerActive(ctx, st.previous.ID, false); err != nil {
			if derr := w.store.DeleteOwner(context.WithoutCancel(ctx), o.ID); derr != nil {
				w.log.Error("removing new owner after failed replacement", zap.String("owner_id", o.ID), zap.Error(derr))
			}
			return fmt.Errorf("deactivating owner %s: %w", st.previous.ID, err)
		}
		st.replaced = true
	}
	return nil
}

func (w *Workflow) undoOwner(ctx context.Context, st *state) error {
	if !st.ownerCreated {
		return nil
	}
	if err := w.store.DeleteOwner(ctx, st.owner.ID); err != nil {
		return err
	}
	if st.replaced {
		return w.store.SetOwnerActive(ctx, st.previous.ID, true)
	}
	return nil
}

func (w *Workflow) resolveTenant(ctx context.Context, st *state) error {
	sel := st.req.Tenant
	if sel.ClientID == "" {
		st.tenantName = strings.TrimSpace(sel.Name)
		st.tenantEmail = strings.TrimSpace(sel.Email)
		st.tenantPhone = strings.TrimSpace(sel.Phone)
		return nil
	}
	c, err := w.store.GetClient(ctx, sel.ClientID)
	if err != nil {
		return fmt.Errorf("loading client: %w", err)
	}
	st.clientID = &c.ID
	st.tenantName, st.tenantEmail, st.tenantPhone = c.Name, c.Email, c.Phone
	return nil
}

func (w *Workflow) createContract(ctx context.Context, st *state) error {
	terms := st.req.Terms
	currency := types.CurrencyOrDefault(terms.Currency)
	rent, _ := types.ParseMoney(terms.MonthlyRent, currency)
	deposit := types.NewMoney(0, currency)
	if strings.TrimSpace(terms.Deposit) != "" {
		deposit, _ = types.ParseMoney(terms.Deposit, currency)
	}
	ownerID := st.owner.ID
	c := domain.Contract{
		ID:                  uuid.New().String(),
		UnitID:              st.unit.ID,
		OwnerID:             &ownerID,
		ClientID:            st.clientID,
		TenantName:          st.tenantName,
		TenantEmail:         st.tenantEmail,
		TenantPhone:         st.tenantPhone,
		StartDate:           st.gen.StartDate,
		EndDate:             st.gen.EndDate,
		MonthlyRent:         rent,
		LeaseDurationMonths: terms.DurationMonths,
		Deposit:             deposit,
		Purpose:             terms.Purpose,
		Pets:                st.req.Pets,
		CreatedBy:           st.actor.ID,
		CreatedAt:           st.now,
	}
	if err := w.store.CreateContract(ctx, c); err != nil {
		return fmt.Errorf("creating contract: %w", err)
	}
	st.contract = c
	return nil
}

func (w *Workflow) deleteContract(ctx context.Context, st *state) error {
	return w.store.DeleteContract(ctx, st.contract.ID)
}

func (w *Workflow) createSchedule(ctx context.Context, st *state) error {
	entries := make([]domain.ScheduleEntry, len(st.gen.Entries))
	for i, e := range st.gen.Entries {
		e.ID = uuid.New().String()
		e.ContractID = st.contract.ID
		e.UnitID = st.unit.ID
		entries[i] = e
	}
	if err := w.store.CreateScheduleEntries(ctx, entries); err != nil {
		return fmt.Errorf("creating schedule: %w", err)
	}
	st.entries = entries
	return nil
}

func (w *Workflow) deleteSchedule(ctx context.Context, st *state) error {
	return w.store.DeleteScheduleEntries(ctx, st.contract.ID)
}

// attachTenants never fails the saga; each co-tenant gets its own result.
func (w *Workflow) attachTenants(ctx context.Context, st *state) error {
	st.tenants = make([]TenantResult, 0, len(st.req.AdditionalTenants))
	for i, in := range st.req.AdditionalTenants {
		r := TenantResult{Index: i, FullName: strings.TrimSpace(in.FullName)}
		if r.FullName == "" {
			r.Status = TenantSkipped
			st.tenants = append(st.tenants, r)
			continue
		}
		t := domain.AdditionalTenant{
			ID:         uuid.New().String(),
			ContractID: st.contract.ID,
			FullName:   r.FullName,
			Email:      strings.TrimSpace(in.Email),
			Phone:      strings.TrimSpace(in.Phone),
			IDPhotoURL: in.IDPhotoURL,
			CreatedAt:  st.now,
		}
		if err := w.store.CreateAdditionalTenant(ctx, t); err != nil {
			w.log.Warn("additional tenant not created",
				zap.String("contract_id", st.contract.ID),
				zap.Int("index", i),
				zap.Error(err),
			)
			r.Status = TenantFailed
			r.Error = err.Error()
		} else {
			r.Status = TenantCreated
			r.TenantID = t.ID
		}
		st.tenants = append(st.tenants, r)
	}
	return nil
}

func (w *Workflow) invalidate(ctx context.Context, unitID string) {
	if w.cache == nil {
		return
	}
	err := cache.InvalidateAll(ctx, w.cache,
		cache.PrefixContracts, cache.PrefixUnits, cache.PrefixOwnersByUnit+unitID)
	if err != nil {
		w.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

func (w *Workflow) publish(ctx context.Context, actor domain.Actor, st *state, res Result) {
	if res.OwnerCreated {
		w.bus.Publish(ctx, event.NewOwnerAssigned(event.OwnerAssignedPayload{
			OwnerID:   res.Owner.ID,
			UnitID:    st.unit.ID,
			OwnerName: res.Owner.OwnerName,
		}).By(actor))
	}
	added, failed := 0, 0
	for _, t := range res.AdditionalTenants {
		switch t.Status {
		case TenantCreated:
			added++
			w.bus.Publish(ctx, event.NewTenantAdded(event.TenantAddedPayload{
				TenantID:   t.TenantID,
				ContractID: res.Contract.ID,
				FullName:   t.FullName,
			}).By(actor))
		case TenantFailed:
			failed++
		}
	}
	w.bus.Publish(ctx, event.NewContractProvisioned(event.ContractProvisionedPayload{
		ContractID:      res.Contract.ID,
		UnitID:          st.unit.ID,
		OwnerID:         res.Owner.ID,
		OwnerCreated:    res.OwnerCreated,
		ReplacedOwnerID: res.ReplacedOwnerID,
		TenantName:      res.Contract.TenantName,
		StartDate:       types.FormatDate(res.Contract.StartDate),
		EndDate:         types.FormatDate(res.Contract.EndDate),
		MonthlyRent:     res.Contract.MonthlyRent,
		ScheduleEntries: len(res.Schedule),
		TenantsAdded:    added,
		TenantsFailed:   failed,
	}).By(actor))
}

// keyLocks serializes runs that share an idempotency key.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
