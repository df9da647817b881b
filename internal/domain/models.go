package domain

import "time"

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPaid      PlanStatus = "paid"
	PlanStatusOverdue   PlanStatus = "overdue"
	PlanStatusCancelled PlanStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

// IsCashEquivalent reports whether a payment with this method moves
// money through the register drawer and therefore must be reflected in
// the register ledger. Card and transfer settle outside the drawer.
func (m PaymentMethod) IsCashEquivalent() bool {
	return m == PaymentMethodCash
}

type LedgerKind string

const (
	LedgerKindInstallmentPayment LedgerKind = "installment_payment"
)

// InstallmentPlan is a financed-sale agreement being paid off over time.
// Exactly one plan exists per sale. Cent amounts are scale-2 fixed point
// stored as integers.
type InstallmentPlan struct {
	ID                    string     `json:"id"`
	SaleID                string     `json:"sale_id"`
	CustomerID            string     `json:"customer_id,omitempty"`
	RegisterID            string     `json:"register_id"`
	Currency              string     `json:"currency"`
	PrincipalCents        int64      `json:"principal_cents"`
	InterestRatePct       float64    `json:"interest_rate_pct"`
	TermMonths            int        `json:"term_months"`
	DownPaymentCents      int64      `json:"down_payment_cents"`
	TotalDueCents         int64      `json:"total_due_cents"`
	AmountPaidCents       int64      `json:"amount_paid_cents"`
	ReturnAdjustmentCents int64      `json:"return_adjustment_cents"`
	Status                PlanStatus `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
}

// ScheduleEntry is one due installment within a plan's amortization
// schedule. Due dates within a plan are unique and strictly increasing.
type ScheduleEntry struct {
	ID              string     `json:"id"`
	PlanID          string     `json:"plan_id"`
	DueDate         time.Time  `json:"due_date"`
	AmountDueCents  int64      `json:"amount_due_cents"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

// Payment is one accepted payment event. Immutable once created;
// corrections happen via new payments, never by editing history.
type Payment struct {
	ID             string        `json:"id"`
	PlanID         string        `json:"plan_id"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	AmountCents    int64         `json:"amount_cents"`
	Method         PaymentMethod `json:"method"`
	RegisterID     string        `json:"register_id"`
	ReceivedBy     string        `json:"received_by"`
	CreatedAt      time.Time     `json:"created_at"`
}

// LedgerEntry is one cash-register ledger record. Append-only.
type LedgerEntry struct {
	ID          string     `json:"id"`
	RegisterID  string     `json:"register_id"`
	Kind        LedgerKind `json:"kind"`
	AmountCents int64      `json:"amount_cents"`
	Reference   string     `json:"reference"`
	CreatedAt   time.Time  `json:"created_at"`
}

type RegisterStock struct {
	RegisterID string `json:"register_id"`
	SKU        string `json:"sku"`
	Qty        int    `json:"qty"`
}

type PlanCreateRequest struct {
	SaleID           string  `json:"sale_id"`
	CustomerID       string  `json:"customer_id,omitempty"`
	RegisterID       string  `json:"register_id,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	PrincipalCents   int64   `json:"principal_cents"`
	InterestRatePct  float64 `json:"interest_rate_pct"`
	TermMonths       int     `json:"term_months"`
	DownPaymentCents int64   `json:"down_payment_cents"`
	StartDate        string  `json:"start_date,omitempty"`
}

type PlanResponse struct {
	Plan     InstallmentPlan `json:"plan"`
	Schedule []ScheduleEntry `json:"schedule"`
}

type PlanListResponse struct {
	Plans []InstallmentPlan `json:"plans"`
}

type PaymentRequest struct {
	AmountCents    int64         `json:"amount_cents"`
	Method         PaymentMethod `json:"method"`
	RegisterID     string        `json:"register_id,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type PaymentResponse struct {
	Payment   Payment         `json:"payment"`
	Plan      InstallmentPlan `json:"plan"`
	Duplicate bool            `json:"duplicate"`
}

type PaymentListResponse struct {
	Payments []Payment `json:"payments"`
}

type ReturnAdjustmentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type CancelPlanRequest struct {
	Reason string `json:"reason"`
}

type RemainingResponse struct {
	PlanID         string     `json:"plan_id"`
	RemainingCents int64      `json:"remaining_cents"`
	Status         PlanStatus `json:"status"`
}

type ScheduleResponse struct {
	PlanID  string          `json:"plan_id"`
	Entries []ScheduleEntry `json:"entries"`
}

type OverdueResponse struct {
	PlanID  string     `json:"plan_id"`
	Overdue bool       `json:"overdue"`
	Status  PlanStatus `json:"status"`
}

type LedgerListResponse struct {
	RegisterID string        `json:"register_id"`
	Entries    []LedgerEntry `json:"entries"`
}

type RegisterStockResponse struct {
	RegisterID string          `json:"register_id"`
	Stocks     []RegisterStock `json:"stocks"`
}

// PlanProjection is the cached read model served to reporting and UI
// layers. It is derived, never authoritative.
type PlanProjection struct {
	PlanID         string     `json:"plan_id"`
	Status         PlanStatus `json:"status"`
	RemainingCents int64      `json:"remaining_cents"`
	EntriesTotal   int        `json:"entries_total"`
	EntriesPaid    int        `json:"entries_paid"`
	ComputedAt     time.Time  `json:"computed_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
