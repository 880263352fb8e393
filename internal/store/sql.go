package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/types"
	"github.com/homesapp/rentals/migrations"

	_ "modernc.org/sqlite"
)

// SQLStore implements Store on SQLite. Statements are built with the ent
// dialect builder and executed through the ent driver.
type SQLStore struct {
	drv *entsql.Driver
}

// Open opens (or creates) a SQLite database and applies the embedded schema.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. The schema is not applied.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{drv: entsql.OpenDB(dialect.SQLite, db)}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, migrations.Schema, []any{}, nil); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// DB returns the underlying database.
func (s *SQLStore) DB() *sql.DB { return s.drv.DB() }

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.drv.Close() }

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

type querier interface {
	Query() (string, []any)
}

func (s *SQLStore) exec(ctx context.Context, q querier) (int64, error) {
	query, args := q.Query()
	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%s: %w", err, domain.ErrConflict)
		}
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) query(ctx context.Context, q querier, each func(*entsql.Rows) error) error {
	query, args := q.Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// one runs q and fails with ErrNotFound when no row comes back.
func (s *SQLStore) one(ctx context.Context, q querier, kind, id string, scan func(*entsql.Rows) error) error {
	found := false
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		found = true
		return scan(r)
	})
	if err != nil {
		return fmt.Errorf("loading %s %s: %w", kind, id, err)
	}
	if !found {
		return notFound(kind, id)
	}
	return nil
}

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func optTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTS(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTS(ns.String)
	return &t
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func parseDay(s string) time.Time {
	t, _ := types.ParseDate(s)
	return t
}

// ── Units, clients ───────────────────────────────────────────────────────────

var unitColumns = []string{"id", "condominium_id", "name", "is_active", "current_contract_id"}

func scanUnit(r *entsql.Rows, u *domain.Unit) error {
	var cur sql.NullString
	if err := r.Scan(&u.ID, &u.CondominiumID, &u.Name, &u.IsActive, &cur); err != nil {
		return err
	}
	u.CurrentContractID = nullString(cur)
	return nil
}

func (s *SQLStore) PutUnit(ctx context.Context, u domain.Unit) error {
	_, err := s.exec(ctx, builder().Delete("units").Where(entsql.EQ("id", u.ID)))
	if err != nil {
		return fmt.Errorf("replacing unit %s: %w", u.ID, err)
	}
	_, err = s.exec(ctx, builder().Insert("units").Columns(unitColumns...).
		Values(u.ID, u.CondominiumID, u.Name, u.IsActive, optString(u.CurrentContractID)))
	if err != nil {
		return fmt.Errorf("saving unit %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLStore) GetUnit(ctx context.Context, id string) (domain.Unit, error) {
	var u domain.Unit
	q := builder().Select(unitColumns...).From(entsql.Table("units")).Where(entsql.EQ("id", id))
	err := s.one(ctx, q, "unit", id, func(r *entsql.Rows) error { return scanUnit(r, &u) })
	return u, err
}

func (s *SQLStore) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	var out []domain.Unit
	q := builder().Select(unitColumns...).From(entsql.Table("units")).OrderBy("id")
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var u domain.Unit
		if err := scanUnit(r, &u); err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	return out, nil
}

func (s *SQLStore) PutClient(ctx context.Context, c domain.Client) error {
	if _, err := s.exec(ctx, builder().Delete("clients").Where(entsql.EQ("id", c.ID))); err != nil {
		return fmt.Errorf("replacing client %s: %w", c.ID, err)
	}
	_, err := s.exec(ctx, builder().Insert("clients").Columns("id", "name", "email", "phone").
		Values(c.ID, c.Name, c.Email, c.Phone))
	if err != nil {
		return fmt.Errorf("saving client %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLStore) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	q := builder().Select("id", "name", "email", "phone").From(entsql.Table("clients")).Where(entsql.EQ("id", id))
	err := s.one(ctx, q, "client", id, func(r *entsql.Rows) error {
		return r.Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	})
	return c, err
}

// ── Owners ───────────────────────────────────────────────────────────────────

var ownerColumns = []string{"id", "unit_id", "owner_name", "owner_email", "owner_phone", "is_active", "created_at"}

func (s *SQLStore) CreateOwner(ctx context.Context, o domain.Owner) error {
	_, err := s.exec(ctx, builder().Insert("owners").Columns(ownerColumns...).
		Values(o.ID, o.UnitID, o.OwnerName, o.OwnerEmail, o.OwnerPhone, o.IsActive, ts(o.CreatedAt)))
	if err != nil {
		return fmt.Errorf("creating owner: %w", err)
	}
	return nil
}

func (s *SQLStore) ActiveOwner(ctx context.Context, unitID string) (domain.Owner, error) {
	var o domain.Owner
	q := builder().Select(ownerColumns...).From(entsql.Table("owners")).
		Where(entsql.And(entsql.EQ("unit_id", unitID), entsql.EQ("is_active", true))).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(1)
	err := s.one(ctx, q, "active owner for unit", unitID, func(r *entsql.Rows) error {
		var created string
		if err := r.Scan(&o.ID, &o.UnitID, &o.OwnerName, &o.OwnerEmail, &o.OwnerPhone, &o.IsActive, &created); err != nil {
			return err
		}
		o.CreatedAt = parseTS(created)
		return nil
	})
	return o, err
}

func (s *SQLStore) SetOwnerActive(ctx context.Context, id string, active bool) error {
	n, err := s.exec(ctx, builder().Update("owners").Set("is_active", active).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("updating owner %s: %w", id, err)
	}
	if n == 0 {
		return notFound("owner", id)
	}
	return nil
}

func (s *SQLStore) DeleteOwner(ctx context.Context, id string) error {
	n, err := s.exec(ctx, builder().Delete("owners").Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("deleting owner %s: %w", id, err)
	}
	if n == 0 {
		return notFound("owner", id)
	}
	return nil
}

// ── Contracts ────────────────────────────────────────────────────────────────

var contractColumns = []string{
	"id", "unit_id", "owner_id", "client_id", "tenant_name", "tenant_email", "tenant_phone",
	"start_date", "end_date", "rent_cents", "currency", "lease_duration_months",
	"deposit_cents", "purpose", "pets", "created_by", "created_at",
}

func scanContract(r *entsql.Rows, c *domain.Contract) error {
	var (
		ownerID, clientID, pets sql.NullString
		start, end, created     string
		rent, deposit           int64
		currency                string
	)
	err := r.Scan(&c.ID, &c.UnitID, &ownerID, &clientID, &c.TenantName, &c.TenantEmail, &c.TenantPhone,
		&start, &end, &rent, &currency, &c.LeaseDurationMonths, &deposit, &c.Purpose, &pets, &c.CreatedBy, &created)
	if err != nil {
		return err
	}
	c.OwnerID = nullString(ownerID)
	c.ClientID = nullString(clientID)
	c.StartDate = parseDay(start)
	c.EndDate = parseDay(end)
	c.MonthlyRent = types.NewMoney(rent, currency)
	c.Deposit = types.NewMoney(deposit, currency)
	c.CreatedAt = parseTS(created)
	if pets.Valid && pets.String != "" {
		c.Pets = &domain.Pets{}
		if err := json.Unmarshal([]byte(pets.String), c.Pets); err != nil {
			return fmt.Errorf("decoding pets: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) CreateContract(ctx context.Context, c domain.Contract) error {
	var pets any
	if c.Pets != nil {
		b, err := json.Marshal(c.Pets)
		if err != nil {
			return fmt.Errorf("encoding pets: %w", err)
		}
		pets = string(b)
	}
	_, err := s.exec(ctx, builder().Insert("contracts").Columns(contractColumns...).Values(
		c.ID, c.UnitID, optString(c.OwnerID), optString(c.ClientID), c.TenantName, c.TenantEmail, c.TenantPhone,
		types.FormatDate(c.StartDate), types.FormatDate(c.EndDate), c.MonthlyRent.AmountCents, c.Currency(),
		c.LeaseDurationMonths, c.Deposit.AmountCents, c.Purpose, pets, c.CreatedBy, ts(c.CreatedAt),
	))
	if err != nil {
		return fmt.Errorf("creating contract: %w", err)
	}
	return nil
}

func (s *SQLStore) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	q := builder().Select(contractColumns...).From(entsql.Table("contracts")).Where(entsql.EQ("id", id))
	err := s.one(ctx, q, "contract", id, func(r *entsql.Rows) error { return scanContract(r, &c) })
	return c, err
}

func (s *SQLStore) DeleteContract(ctx context.Context, id string) error {
	n, err := s.exec(ctx, builder().Delete("contracts").Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("deleting contract %s: %w", id, err)
	}
	if n == 0 {
		return notFound("contract", id)
	}
	return nil
}

func (s *SQLStore) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	var out []domain.Contract
	q := builder().Select(contractColumns...).From(entsql.Table("contracts")).OrderBy("created_at", "id")
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var c domain.Contract
		if err := scanContract(r, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %w", err)
	}
	return out, nil
}

// ── Schedule entries, additional tenants ─────────────────────────────────────

var scheduleColumns = []string{
	"id", "contract_id", "unit_id", "service_type", "charge_kind",
	"amount_cents", "currency", "day_of_month", "frequency",
}

func (s *SQLStore) CreateScheduleEntries(ctx context.Context, entries []domain.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := builder().Insert("schedule_entries").Columns(append(scheduleColumns, "position")...)
	for i, e := range entries {
		ins.Values(e.ID, e.ContractID, e.UnitID, string(e.ServiceType), string(e.ChargeKind),
			e.Amount.AmountCents, e.Amount.Currency, e.DayOfMonth, string(e.Frequency), i)
	}
	if _, err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("creating schedule entries: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteScheduleEntries(ctx context.Context, contractID string) error {
	if _, err := s.exec(ctx, builder().Delete("schedule_entries").Where(entsql.EQ("contract_id", contractID))); err != nil {
		return fmt.Errorf("deleting schedule of contract %s: %w", contractID, err)
	}
	return nil
}

func (s *SQLStore) ListScheduleEntries(ctx context.Context, contractID string) ([]domain.ScheduleEntry, error) {
	q := builder().Select(scheduleColumns...).From(entsql.Table("schedule_entries")).OrderBy("contract_id", "position")
	if contractID != "" {
		q.Where(entsql.EQ("contract_id", contractID))
	}
	var out []domain.ScheduleEntry
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var (
			e        domain.ScheduleEntry
			st, ck   string
			freq     string
			cents    int64
			currency string
		)
		if err := r.Scan(&e.ID, &e.ContractID, &e.UnitID, &st, &ck, &cents, &currency, &e.DayOfMonth, &freq); err != nil {
			return err
		}
		e.ServiceType = domain.ServiceType(st)
		e.ChargeKind = domain.ChargeKind(ck)
		e.Frequency = domain.Frequency(freq)
		e.Amount = types.NewMoney(cents, currency)
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing schedule entries: %w", err)
	}
	return out, nil
}

var tenantColumns = []string{"id", "contract_id", "full_name", "email", "phone", "id_photo_url", "created_at"}

func (s *SQLStore) CreateAdditionalTenant(ctx context.Context, t domain.AdditionalTenant) error {
	if _, err := s.GetContract(ctx, t.ContractID); err != nil {
		return err
	}
	_, err := s.exec(ctx, builder().Insert("additional_tenants").Columns(tenantColumns...).
		Values(t.ID, t.ContractID, t.FullName, t.Email, t.Phone, t.IDPhotoURL, ts(t.CreatedAt)))
	if err != nil {
		return fmt.Errorf("creating additional tenant: %w", err)
	}
	return nil
}

func (s *SQLStore) ListAdditionalTenants(ctx context.Context, contractID string) ([]domain.AdditionalTenant, error) {
	q := builder().Select(tenantColumns...).From(entsql.Table("additional_tenants")).
		Where(entsql.EQ("contract_id", contractID)).OrderBy("created_at", "id")
	var out []domain.AdditionalTenant
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var (
			t       domain.AdditionalTenant
			created string
		)
		if err := r.Scan(&t.ID, &t.ContractID, &t.FullName, &t.Email, &t.Phone, &t.IDPhotoURL, &created); err != nil {
			return err
		}
		t.CreatedAt = parseTS(created)
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing additional tenants: %w", err)
	}
	return out, nil
}

// ── Payments ─────────────────────────────────────────────────────────────────

var paymentColumns = []string{
	"id", "contract_id", "schedule_entry_id", "category", "description", "amount_cents", "currency",
	"due_date", "paid_date", "status", "payer_role", "receipt_url", "tenant_notes", "owner_notes",
	"verified_at", "version", "created_at", "updated_at",
}

func scanPayment(r *entsql.Rows, p *domain.PaymentRecord) error {
	var (
		entryID, paid, verified     sql.NullString
		category, status, payer     string
		currency, due, created, upd string
		cents                       int64
	)
	err := r.Scan(&p.ID, &p.ContractID, &entryID, &category, &p.Description, &cents, &currency,
		&due, &paid, &status, &payer, &p.ReceiptURL, &p.TenantNotes, &p.OwnerNotes,
		&verified, &p.Version, &created, &upd)
	if err != nil {
		return err
	}
	p.ScheduleEntryID = nullString(entryID)
	p.Category = domain.ServiceType(category)
	p.Amount = types.NewMoney(cents, currency)
	p.DueDate = parseDay(due)
	p.PaidDate = nullTS(paid)
	p.Status = domain.PaymentStatus(status)
	p.PayerRole = domain.PayerRole(payer)
	p.VerifiedAt = nullTS(verified)
	p.CreatedAt = parseTS(created)
	p.UpdatedAt = parseTS(upd)
	return nil
}

func (s *SQLStore) CreatePayment(ctx context.Context, p domain.PaymentRecord) error {
	_, err := s.exec(ctx, builder().Insert("payment_records").Columns(paymentColumns...).Values(
		p.ID, p.ContractID, optString(p.ScheduleEntryID), string(p.Category), p.Description,
		p.Amount.AmountCents, p.Amount.Currency, types.FormatDate(p.DueDate), optTS(p.PaidDate),
		string(p.Status), string(p.PayerRole), p.ReceiptURL, p.TenantNotes, p.OwnerNotes,
		optTS(p.VerifiedAt), p.Version, ts(p.CreatedAt), ts(p.UpdatedAt),
	))
	if err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPayment(ctx context.Context, id string) (domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	q := builder().Select(paymentColumns...).From(entsql.Table("payment_records")).Where(entsql.EQ("id", id))
	err := s.one(ctx, q, "payment", id, func(r *entsql.Rows) error { return scanPayment(r, &p) })
	return p, err
}

func (s *SQLStore) UpdatePayment(ctx context.Context, p domain.PaymentRecord) (domain.PaymentRecord, error) {
	upd := builder().Update("payment_records").
		Set("status", string(p.Status)).
		Set("paid_date", optTS(p.PaidDate)).
		Set("receipt_url", p.ReceiptURL).
		Set("tenant_notes", p.TenantNotes).
		Set("owner_notes", p.OwnerNotes).
		Set("verified_at", optTS(p.VerifiedAt)).
		Set("amount_cents", p.Amount.AmountCents).
		Set("description", p.Description).
		Set("updated_at", ts(p.UpdatedAt)).
		Set("version", p.Version+1).
		Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("version", p.Version)))
	n, err := s.exec(ctx, upd)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("updating payment %s: %w", p.ID, err)
	}
	if n == 0 {
		if _, err := s.GetPayment(ctx, p.ID); err != nil {
			return domain.PaymentRecord{}, err
		}
		return domain.PaymentRecord{}, fmt.Errorf("payment %s at version %d: %w", p.ID, p.Version, domain.ErrVersionConflict)
	}
	p.Version++
	return p, nil
}

func (s *SQLStore) ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.PaymentRecord, error) {
	var preds []*entsql.Predicate
	if f.ContractID != "" {
		preds = append(preds, entsql.EQ("contract_id", f.ContractID))
	}
	if f.ScheduleEntryID != "" {
		preds = append(preds, entsql.EQ("schedule_entry_id", f.ScheduleEntryID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.PayerRole != "" {
		preds = append(preds, entsql.EQ("payer_role", string(f.PayerRole)))
	}
	if !f.DueFrom.IsZero() {
		preds = append(preds, entsql.GTE("due_date", types.FormatDate(f.DueFrom)))
	}
	if !f.DueTo.IsZero() {
		preds = append(preds, entsql.LTE("due_date", types.FormatDate(f.DueTo)))
	}
	q := builder().Select(paymentColumns...).From(entsql.Table("payment_records")).OrderBy("due_date", "id")
	if len(preds) > 0 {
		q.Where(entsql.And(preds...))
	}
	var out []domain.PaymentRecord
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var p domain.PaymentRecord
		if err := scanPayment(r, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return out, nil
}

// ── Receipts ─────────────────────────────────────────────────────────────────

var receiptColumns = []string{
	"id", "contract_id", "amount_cents", "currency", "file_url", "status", "notes", "reviewed_at", "version", "created_at",
}

func scanReceipt(r *entsql.Rows, rc *domain.Receipt) error {
	var (
		cents            int64
		currency, status string
		reviewed         sql.NullString
		created          string
	)
	if err := r.Scan(&rc.ID, &rc.ContractID, &cents, &currency, &rc.FileURL, &status, &rc.Notes, &reviewed, &rc.Version, &created); err != nil {
		return err
	}
	rc.Amount = types.NewMoney(cents, currency)
	rc.Status = domain.ReceiptStatus(status)
	rc.ReviewedAt = nullTS(reviewed)
	rc.CreatedAt = parseTS(created)
	return nil
}

func (s *SQLStore) CreateReceipt(ctx context.Context, r domain.Receipt) error {
	_, err := s.exec(ctx, builder().Insert("receipts").Columns(receiptColumns...).Values(
		r.ID, r.ContractID, r.Amount.AmountCents, r.Amount.Currency, r.FileURL, string(r.Status),
		r.Notes, optTS(r.ReviewedAt), r.Version, ts(r.CreatedAt),
	))
	if err != nil {
		return fmt.Errorf("creating receipt: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	var rc domain.Receipt
	q := builder().Select(receiptColumns...).From(entsql.Table("receipts")).Where(entsql.EQ("id", id))
	err := s.one(ctx, q, "receipt", id, func(r *entsql.Rows) error { return scanReceipt(r, &rc) })
	return rc, err
}

func (s *SQLStore) UpdateReceipt(ctx context.Context, r domain.Receipt) (domain.Receipt, error) {
	upd := builder().Update("receipts").
		Set("status", string(r.Status)).
		Set("notes", r.Notes).
		Set("reviewed_at", optTS(r.ReviewedAt)).
		Set("version", r.Version+1).
		Where(entsql.And(entsql.EQ("id", r.ID), entsql.EQ("version", r.Version)))
	n, err := s.exec(ctx, upd)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("updating receipt %s: %w", r.ID, err)
	}
	if n == 0 {
		if _, err := s.GetReceipt(ctx, r.ID); err != nil {
			return domain.Receipt{}, err
		}
		return domain.Receipt{}, fmt.Errorf("receipt %s at version %d: %w", r.ID, r.Version, domain.ErrVersionConflict)
	}
	r.Version++
	return r, nil
}

func (s *SQLStore) ListReceipts(ctx context.Context, contractID string) ([]domain.Receipt, error) {
	q := builder().Select(receiptColumns...).From(entsql.Table("receipts")).OrderBy("created_at", "id")
	if contractID != "" {
		q.Where(entsql.EQ("contract_id", contractID))
	}
	var out []domain.Receipt
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var rc domain.Receipt
		if err := scanReceipt(r, &rc); err != nil {
			return err
		}
		out = append(out, rc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return out, nil
}

// ── Tickets, provisioning attempts ───────────────────────────────────────────

var ticketColumns = []string{"id", "unit_id", "title", "status", "scheduled_date", "scheduled_time"}

func (s *SQLStore) PutTicket(ctx context.Context, t domain.MaintenanceTicket) error {
	if _, err := s.exec(ctx, builder().Delete("maintenance_tickets").Where(entsql.EQ("id", t.ID))); err != nil {
		return fmt.Errorf("replacing ticket %s: %w", t.ID, err)
	}
	var date any
	if t.ScheduledDate != nil {
		date = types.FormatDate(*t.ScheduledDate)
	}
	_, err := s.exec(ctx, builder().Insert("maintenance_tickets").Columns(ticketColumns...).
		Values(t.ID, t.UnitID, t.Title, t.Status, date, t.ScheduledTime))
	if err != nil {
		return fmt.Errorf("saving ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLStore) ListTickets(ctx context.Context) ([]domain.MaintenanceTicket, error) {
	q := builder().Select(ticketColumns...).From(entsql.Table("maintenance_tickets")).OrderBy("id")
	var out []domain.MaintenanceTicket
	err := s.query(ctx, q, func(r *entsql.Rows) error {
		var (
			t    domain.MaintenanceTicket
			date sql.NullString
		)
		if err := r.Scan(&t.ID, &t.UnitID, &t.Title, &t.Status, &date, &t.ScheduledTime); err != nil {
			return err
		}
		if date.Valid && date.String != "" {
			d := parseDay(date.String)
			t.ScheduledDate = &d
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	return out, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, key string) (domain.ProvisioningAttempt, error) {
	var a domain.ProvisioningAttempt
	q := builder().Select("idempotency_key", "contract_id", "result", "created_at").
		From(entsql.Table("provisioning_attempts")).Where(entsql.EQ("idempotency_key", key))
	err := s.one(ctx, q, "provisioning attempt", key, func(r *entsql.Rows) error {
		var created string
		if err := r.Scan(&a.Key, &a.ContractID, &a.Result, &created); err != nil {
			return err
		}
		a.CreatedAt = parseTS(created)
		return nil
	})
	return a, err
}

func (s *SQLStore) SaveAttempt(ctx context.Context, a domain.ProvisioningAttempt) error {
	_, err := s.exec(ctx, builder().Insert("provisioning_attempts").
		Columns("idempotency_key", "contract_id", "result", "created_at").
		Values(a.Key, a.ContractID, a.Result, ts(a.CreatedAt)))
	if errors.Is(err, domain.ErrConflict) {
		_, err = s.exec(ctx, builder().Update("provisioning_attempts").
			Set("contract_id", a.ContractID).Set("result", a.Result).
			Where(entsql.EQ("idempotency_key", a.Key)))
	}
	if err != nil {
		return fmt.Errorf("saving provisioning attempt %s: %w", a.Key, err)
	}
	return nil
}
