package store

import (
	"context"
	"errors"
	"time"

	"cicilanpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a lock or serialization conflict between
	// concurrent plan mutations. Safe for the caller to retry.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrDuplicate signals a unique-constraint violation, e.g. a second
	// plan for the same sale.
	ErrDuplicate = errors.New("duplicate record")
	// ErrLedgerWrite signals a failed register-ledger write inside a
	// payment transaction; the whole unit rolls back.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// PlanTx is the exclusive view of one plan and its schedule for the
// duration of a storage transaction. Two payments racing against the
// same plan serialize on it: the snapshot returned by Plan and Entries
// cannot be superseded by another in-flight transaction. All writes
// join the same atomic unit and roll back together.
type PlanTx interface {
	Plan() domain.InstallmentPlan
	Entries() []domain.ScheduleEntry

	UpdatePlan(plan domain.InstallmentPlan) error
	UpdateEntries(entries []domain.ScheduleEntry) error
	InsertPayment(payment domain.Payment) error
	InsertLedgerEntry(entry domain.LedgerEntry) error

	// FindPaymentByIdempotency looks up a prior payment with the given
	// key under the lock, so replayed requests cannot double-allocate.
	FindPaymentByIdempotency(key string) (*domain.Payment, error)
	// SumPayments totals all payment records for the plan, in cents.
	// The plan's amount_paid is reconciled against it, never trusted
	// incrementally.
	SumPayments() (int64, error)
}

type Repository interface {
	// CreatePlan persists a plan, its schedule entries, and any initial
	// payment records (the down payment) as one atomic unit. Nothing is
	// committed on error.
	CreatePlan(ctx context.Context, plan domain.InstallmentPlan, entries []domain.ScheduleEntry, payments []domain.Payment) (*domain.InstallmentPlan, error)

	GetPlan(ctx context.Context, planID string) (*domain.InstallmentPlan, error)
	GetPlanBySaleID(ctx context.Context, saleID string) (*domain.InstallmentPlan, error)
	ListPlans(ctx context.Context, status domain.PlanStatus, limit int) ([]domain.InstallmentPlan, error)
	ListSchedule(ctx context.Context, planID string) ([]domain.ScheduleEntry, error)
	ListPayments(ctx context.Context, planID string) ([]domain.Payment, error)

	// WithPlanLock runs fn against the plan under an exclusive-intent
	// transaction. fn returning an error aborts the whole unit. A lock
	// or serialization failure surfaces as ErrConflict.
	WithPlanLock(ctx context.Context, planID string, fn func(tx PlanTx) error) error

	ListLedgerEntries(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error)
	GetRegisterStock(ctx context.Context, registerID string) ([]domain.RegisterStock, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
