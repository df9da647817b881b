package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/store"
	"cicilanpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreatePlan(ctx context.Context, plan domain.InstallmentPlan, entries []domain.ScheduleEntry, payments []domain.Payment) (*domain.InstallmentPlan, error) {
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO installment_plans (
			id, sale_id, customer_id, register_id, currency,
			principal_cents, interest_rate_pct, term_months, down_payment_cents,
			total_due_cents, amount_paid_cents, return_adjustment_cents, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, plan.ID, plan.SaleID, nullIfEmpty(plan.CustomerID), plan.RegisterID, plan.Currency,
		plan.PrincipalCents, plan.InterestRatePct, plan.TermMonths, plan.DownPaymentCents,
		plan.TotalDueCents, plan.AmountPaidCents, plan.ReturnAdjustmentCents, plan.Status, plan.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = xid.New("sched")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_entries (id, plan_id, due_date, amount_due_cents, amount_paid_cents, paid, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, entry.ID, plan.ID, dateUTC(entry.DueDate), entry.AmountDueCents, entry.AmountPaidCents, entry.Paid, nullTime(entry.PaidAt))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrDuplicate
			}
			return nil, err
		}
	}

	for _, payment := range payments {
		if payment.ID == "" {
			payment.ID = xid.New("pay")
		}
		if payment.CreatedAt.IsZero() {
			payment.CreatedAt = plan.CreatedAt
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, plan_id, idempotency_key, amount_cents, method, register_id, received_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, payment.ID, plan.ID, nullIfEmpty(payment.IdempotencyKey), payment.AmountCents, payment.Method, payment.RegisterID, payment.ReceivedBy, payment.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrDuplicate
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	created := plan
	return &created, nil
}

const planColumns = `
	id, sale_id, COALESCE(customer_id, ''), register_id, currency,
	principal_cents, interest_rate_pct, term_months, down_payment_cents,
	total_due_cents, amount_paid_cents, return_adjustment_cents, status, created_at
`

func scanPlan(row interface{ Scan(...any) error }) (*domain.InstallmentPlan, error) {
	var plan domain.InstallmentPlan
	err := row.Scan(&plan.ID, &plan.SaleID, &plan.CustomerID, &plan.RegisterID, &plan.Currency,
		&plan.PrincipalCents, &plan.InterestRatePct, &plan.TermMonths, &plan.DownPaymentCents,
		&plan.TotalDueCents, &plan.AmountPaidCents, &plan.ReturnAdjustmentCents, &plan.Status, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	plan.CreatedAt = plan.CreatedAt.UTC()
	return &plan, nil
}

func (s *Store) GetPlan(ctx context.Context, planID string) (*domain.InstallmentPlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM installment_plans WHERE id = $1`, planID)
	return scanPlan(row)
}

func (s *Store) GetPlanBySaleID(ctx context.Context, saleID string) (*domain.InstallmentPlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM installment_plans WHERE sale_id = $1`, saleID)
	return scanPlan(row)
}

func (s *Store) ListPlans(ctx context.Context, status domain.PlanStatus, limit int) ([]domain.InstallmentPlan, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM installment_plans
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.InstallmentPlan, 0, limit)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Store) ListSchedule(ctx context.Context, planID string) ([]domain.ScheduleEntry, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return queryEntries(ctx, s.db, planID, false)
}

func (s *Store) ListPayments(ctx context.Context, planID string) ([]domain.Payment, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, COALESCE(idempotency_key, ''), amount_cents, method, register_id, received_by, created_at
		FROM payments
		WHERE plan_id = $1
		ORDER BY created_at ASC, id ASC
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.PlanID, &p.IdempotencyKey, &p.AmountCents, &p.Method, &p.RegisterID, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// WithPlanLock reads the plan row FOR UPDATE inside a serializable
// transaction, so concurrent payments against the same plan serialize
// instead of interleaving. Serialization and deadlock failures map to
// store.ErrConflict for caller retry.
func (s *Store) WithPlanLock(ctx context.Context, planID string, fn func(tx store.PlanTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+planColumns+` FROM installment_plans WHERE id = $1 FOR UPDATE`, planID)
	plan, err := scanPlan(row)
	if err != nil {
		return mapTxError(err)
	}

	entries, err := queryEntries(ctx, tx, planID, true)
	if err != nil {
		return mapTxError(err)
	}

	ptx := &planTx{ctx: ctx, tx: tx, plan: *plan, entries: entries}
	if err := fn(ptx); err != nil {
		return mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapTxError(err)
	}
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 200
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, register_id, kind, amount_cents, COALESCE(reference, ''), created_at
		FROM register_ledger
		WHERE ($1 = '' OR register_id = $1)
			AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, registerID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.RegisterID, &e.Kind, &e.AmountCents, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetRegisterStock(ctx context.Context, registerID string) ([]domain.RegisterStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT register_id, sku, qty
		FROM register_stocks
		WHERE register_id = $1
		ORDER BY sku
	`, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks := make([]domain.RegisterStock, 0, 64)
	for rows.Next() {
		var st domain.RegisterStock
		if err := rows.Scan(&st.RegisterID, &st.SKU, &st.Qty); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stocks, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pos_users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM pos_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pos_users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// planTx applies writes immediately within the enclosing transaction;
// WithPlanLock commits or rolls back the whole unit.
type planTx struct {
	ctx     context.Context
	tx      *sql.Tx
	plan    domain.InstallmentPlan
	entries []domain.ScheduleEntry
}

func (p *planTx) Plan() domain.InstallmentPlan {
	return p.plan
}

func (p *planTx) Entries() []domain.ScheduleEntry {
	entries := make([]domain.ScheduleEntry, len(p.entries))
	copy(entries, p.entries)
	return entries
}

func (p *planTx) UpdatePlan(plan domain.InstallmentPlan) error {
	_, err := p.tx.ExecContext(p.ctx, `
		UPDATE installment_plans
		SET amount_paid_cents = $2, return_adjustment_cents = $3, status = $4
		WHERE id = $1
	`, p.plan.ID, plan.AmountPaidCents, plan.ReturnAdjustmentCents, plan.Status)
	return err
}

func (p *planTx) UpdateEntries(entries []domain.ScheduleEntry) error {
	for _, entry := range entries {
		_, err := p.tx.ExecContext(p.ctx, `
			UPDATE schedule_entries
			SET amount_paid_cents = $2, paid = $3, paid_at = $4
			WHERE id = $1
		`, entry.ID, entry.AmountPaidCents, entry.Paid, nullTime(entry.PaidAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *planTx) InsertPayment(payment domain.Payment) error {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := p.tx.ExecContext(p.ctx, `
		INSERT INTO payments (id, plan_id, idempotency_key, amount_cents, method, register_id, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, p.plan.ID, nullIfEmpty(payment.IdempotencyKey), payment.AmountCents, payment.Method, payment.RegisterID, payment.ReceivedBy, payment.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (p *planTx) InsertLedgerEntry(entry domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("ledger")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := p.tx.ExecContext(p.ctx, `
		INSERT INTO register_ledger (id, register_id, kind, amount_cents, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.RegisterID, entry.Kind, entry.AmountCents, nullIfEmpty(entry.Reference), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrLedgerWrite, err)
	}
	return nil
}

func (p *planTx) FindPaymentByIdempotency(key string) (*domain.Payment, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	var payment domain.Payment
	err := p.tx.QueryRowContext(p.ctx, `
		SELECT id, plan_id, COALESCE(idempotency_key, ''), amount_cents, method, register_id, received_by, created_at
		FROM payments
		WHERE plan_id = $1 AND idempotency_key = $2
	`, p.plan.ID, key).Scan(&payment.ID, &payment.PlanID, &payment.IdempotencyKey, &payment.AmountCents,
		&payment.Method, &payment.RegisterID, &payment.ReceivedBy, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

func (p *planTx) SumPayments() (int64, error) {
	var total int64
	err := p.tx.QueryRowContext(p.ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE plan_id = $1
	`, p.plan.ID).Scan(&total)
	return total, err
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntries(ctx context.Context, q querier, planID string, forUpdate bool) ([]domain.ScheduleEntry, error) {
	query := `
		SELECT id, plan_id, due_date, amount_due_cents, amount_paid_cents, paid, paid_at
		FROM schedule_entries
		WHERE plan_id = $1
		ORDER BY due_date ASC
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ScheduleEntry, 0, 16)
	for rows.Next() {
		var entry domain.ScheduleEntry
		var paidAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.PlanID, &entry.DueDate, &entry.AmountDueCents, &entry.AmountPaidCents, &entry.Paid, &paidAt); err != nil {
			return nil, err
		}
		entry.DueDate = dateUTC(entry.DueDate)
		if paidAt.Valid {
			at := paidAt.Time.UTC()
			entry.PaidAt = &at
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// mapTxError translates serialization and lock failures into
// store.ErrConflict so callers can retry instead of seeing raw SQLSTATEs.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return store.ErrConflict
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
