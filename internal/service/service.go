package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cicilanpos/backend/internal/cache"
	"cicilanpos/backend/internal/clock"
	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/installment"
	"cicilanpos/backend/internal/money"
	"cicilanpos/backend/internal/store"
	"cicilanpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the plan lifecycle orchestrator. It is the only component
// that mutates plans and their schedules; every mutation runs as one
// atomic storage unit and derives the resulting status through the
// state machine, never by hand.
type Service struct {
	repo              store.Repository
	projections       cache.PlanProjectionCache
	clk               clock.Clock
	projectionTTL     time.Duration
	defaultRegisterID string
	defaultCurrency   string
}

func New(repo store.Repository, projections cache.PlanProjectionCache, clk clock.Clock, projectionTTL time.Duration, defaultRegisterID string, defaultCurrency string) *Service {
	if projections == nil {
		projections = cache.NoopPlanProjectionCache{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if projectionTTL <= 0 {
		projectionTTL = 30 * time.Second
	}
	if defaultRegisterID == "" {
		defaultRegisterID = "register-1"
	}
	if defaultCurrency == "" {
		defaultCurrency = "IDR"
	}

	return &Service{
		repo:              repo,
		projections:       projections,
		clk:               clk,
		projectionTTL:     projectionTTL,
		defaultRegisterID: defaultRegisterID,
		defaultCurrency:   defaultCurrency,
	}
}

// CreatePlan builds the amortization schedule for a financed sale and
// persists plan, schedule, and the down-payment record as one atomic
// unit. The down payment is stored as a regular payment event so the
// plan's amount_paid always reconciles against the payment trail.
func (s *Service) CreatePlan(ctx context.Context, req domain.PlanCreateRequest) (domain.PlanResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.PlanResponse{}, fmt.Errorf("%w: sale id is required", installment.ErrInvalidTerms)
	}
	if req.DownPaymentCents < 0 || req.DownPaymentCents > req.PrincipalCents {
		return domain.PlanResponse{}, fmt.Errorf("%w: down payment must be between zero and the principal", installment.ErrInvalidTerms)
	}
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	if req.Currency == "" {
		req.Currency = s.defaultCurrency
	}

	start := s.clk.Now()
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return domain.PlanResponse{}, fmt.Errorf("%w: bad start date %q", installment.ErrInvalidTerms, req.StartDate)
		}
		start = parsed
	}

	sched, err := installment.Generate(installment.Terms{
		Principal:   money.FromCents(req.PrincipalCents),
		RatePct:     req.InterestRatePct,
		TermMonths:  req.TermMonths,
		DownPayment: money.FromCents(req.DownPaymentCents),
	}, start)
	if err != nil {
		return domain.PlanResponse{}, err
	}

	now := s.clk.Now()
	plan := domain.InstallmentPlan{
		ID:               xid.New("plan"),
		SaleID:           req.SaleID,
		CustomerID:       strings.TrimSpace(req.CustomerID),
		RegisterID:       req.RegisterID,
		Currency:         req.Currency,
		PrincipalCents:   req.PrincipalCents,
		InterestRatePct:  req.InterestRatePct,
		TermMonths:       req.TermMonths,
		DownPaymentCents: req.DownPaymentCents,
		TotalDueCents:    sched.TotalDue.Cents(),
		AmountPaidCents:  req.DownPaymentCents,
		CreatedAt:        now,
	}
	plan.Status = installment.DeriveStatus(plan, sched.Entries, now)

	var payments []domain.Payment
	if req.DownPaymentCents > 0 {
		payments = append(payments, domain.Payment{
			ID:          xid.New("pay"),
			PlanID:      plan.ID,
			AmountCents: req.DownPaymentCents,
			Method:      domain.PaymentMethodCash,
			RegisterID:  plan.RegisterID,
			ReceivedBy:  s.actorUsername(ctx),
			CreatedAt:   now,
		})
	}

	created, err := s.repo.CreatePlan(ctx, plan, sched.Entries, payments)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.PlanResponse{}, fmt.Errorf("%w: sale %s already has an installment plan", store.ErrDuplicate, req.SaleID)
		}
		return domain.PlanResponse{}, err
	}

	entries, err := s.repo.ListSchedule(ctx, created.ID)
	if err != nil {
		return domain.PlanResponse{}, err
	}

	s.logAudit(ctx, "plan_create", "plan", created.ID,
		fmt.Sprintf("sale=%s,principal=%d,rate=%.2f,term=%d,down=%d,total_due=%d",
			created.SaleID, created.PrincipalCents, created.InterestRatePct, created.TermMonths, created.DownPaymentCents, created.TotalDueCents))

	return domain.PlanResponse{Plan: *created, Schedule: entries}, nil
}

// AcceptPayment allocates a payment across the plan's schedule inside
// one exclusive transaction: allocator, reconciliation, state machine,
// payment record, and register-ledger entry commit or roll back
// together. A replayed idempotency key returns the original payment.
func (s *Service) AcceptPayment(ctx context.Context, planID string, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	if req.AmountCents <= 0 {
		return domain.PaymentResponse{}, installment.ErrInvalidPayment
	}
	if !req.Method.Valid() {
		return domain.PaymentResponse{}, fmt.Errorf("%w: unsupported payment method %q", installment.ErrInvalidPayment, req.Method)
	}
	if req.RegisterID == "" {
		req.RegisterID = s.defaultRegisterID
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	var resp domain.PaymentResponse
	err := s.repo.WithPlanLock(ctx, planID, func(tx store.PlanTx) error {
		plan := tx.Plan()

		if existing, err := tx.FindPaymentByIdempotency(req.IdempotencyKey); err == nil {
			resp = domain.PaymentResponse{Payment: *existing, Plan: plan, Duplicate: true}
			return nil
		}

		if plan.Status == domain.PlanStatusPaid || plan.Status == domain.PlanStatusCancelled {
			return installment.ErrPlanClosed
		}

		now := s.clk.Now()
		alloc, err := installment.Allocate(plan, tx.Entries(), money.FromCents(req.AmountCents), now)
		if err != nil {
			return err
		}

		payment := domain.Payment{
			ID:             xid.New("pay"),
			PlanID:         plan.ID,
			IdempotencyKey: req.IdempotencyKey,
			AmountCents:    req.AmountCents,
			Method:         req.Method,
			RegisterID:     req.RegisterID,
			ReceivedBy:     s.actorUsername(ctx),
			CreatedAt:      now,
		}
		if err := tx.InsertPayment(payment); err != nil {
			return err
		}

		// Reconcile against the payment trail instead of trusting the
		// running total incrementally.
		total, err := tx.SumPayments()
		if err != nil {
			return err
		}
		plan.AmountPaidCents = total
		plan.Status = installment.DeriveStatus(plan, alloc.Entries, now)

		if err := tx.UpdateEntries(alloc.Entries); err != nil {
			return err
		}
		if err := tx.UpdatePlan(plan); err != nil {
			return err
		}

		if req.Method.IsCashEquivalent() {
			err := tx.InsertLedgerEntry(domain.LedgerEntry{
				ID:          xid.New("ledger"),
				RegisterID:  req.RegisterID,
				Kind:        domain.LedgerKindInstallmentPayment,
				AmountCents: req.AmountCents,
				Reference:   payment.ID,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}

		resp = domain.PaymentResponse{Payment: payment, Plan: plan}
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.invalidateProjection(ctx, planID)
	if !resp.Duplicate {
		s.logAudit(ctx, "plan_payment", "plan", planID,
			fmt.Sprintf("payment=%s,amount=%d,method=%s,status=%s", resp.Payment.ID, resp.Payment.AmountCents, resp.Payment.Method, resp.Plan.Status))
	}
	return resp, nil
}

// AdjustForReturn applies a return adjustment against the plan's total
// due. Payment history is never touched; the adjustment is a separate
// ledger dimension, and a large enough one moves the plan to paid.
func (s *Service) AdjustForReturn(ctx context.Context, planID string, req domain.ReturnAdjustmentRequest) (domain.PlanResponse, error) {
	if req.AmountCents <= 0 {
		return domain.PlanResponse{}, fmt.Errorf("%w: adjustment must be positive", installment.ErrInvalidPayment)
	}

	var updated domain.InstallmentPlan
	err := s.repo.WithPlanLock(ctx, planID, func(tx store.PlanTx) error {
		plan := tx.Plan()
		if plan.Status == domain.PlanStatusPaid || plan.Status == domain.PlanStatusCancelled {
			return installment.ErrPlanClosed
		}

		plan.ReturnAdjustmentCents += req.AmountCents
		plan.Status = installment.DeriveStatus(plan, tx.Entries(), s.clk.Now())
		if err := tx.UpdatePlan(plan); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return domain.PlanResponse{}, err
	}

	s.invalidateProjection(ctx, planID)
	s.logAudit(ctx, "plan_return_adjust", "plan", planID,
		fmt.Sprintf("amount=%d,reason=%s,status=%s", req.AmountCents, strings.TrimSpace(req.Reason), updated.Status))

	entries, err := s.repo.ListSchedule(ctx, planID)
	if err != nil {
		return domain.PlanResponse{}, err
	}
	return domain.PlanResponse{Plan: updated, Schedule: entries}, nil
}

// CancelPlan marks a plan cancelled, e.g. when the originating sale is
// voided. Cancellation is an input to the state machine, not a derived
// state; once set it is terminal and absorbing. Cancelling an already
// cancelled plan is a no-op.
func (s *Service) CancelPlan(ctx context.Context, planID string, req domain.CancelPlanRequest) (domain.InstallmentPlan, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.InstallmentPlan{}, fmt.Errorf("admin role required")
	}

	var updated domain.InstallmentPlan
	err := s.repo.WithPlanLock(ctx, planID, func(tx store.PlanTx) error {
		plan := tx.Plan()
		if plan.Status == domain.PlanStatusCancelled {
			updated = plan
			return nil
		}

		plan.Status = domain.PlanStatusCancelled
		if err := tx.UpdatePlan(plan); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return domain.InstallmentPlan{}, err
	}

	s.invalidateProjection(ctx, planID)
	s.logAudit(ctx, "plan_cancel", "plan", planID, fmt.Sprintf("reason=%s", strings.TrimSpace(req.Reason)))
	return updated, nil
}

// GetPlanBySale resolves the single plan attached to a sale. Exactly
// one plan can exist per sale.
func (s *Service) GetPlanBySale(ctx context.Context, saleID string) (domain.PlanResponse, error) {
	plan, err := s.repo.GetPlanBySaleID(ctx, saleID)
	if err != nil {
		return domain.PlanResponse{}, err
	}
	entries, err := s.repo.ListSchedule(ctx, plan.ID)
	if err != nil {
		return domain.PlanResponse{}, err
	}
	return domain.PlanResponse{Plan: *plan, Schedule: entries}, nil
}

func (s *Service) GetPlan(ctx context.Context, planID string) (domain.PlanResponse, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return domain.PlanResponse{}, err
	}
	entries, err := s.repo.ListSchedule(ctx, planID)
	if err != nil {
		return domain.PlanResponse{}, err
	}
	return domain.PlanResponse{Plan: *plan, Schedule: entries}, nil
}

func (s *Service) GetRemaining(ctx context.Context, planID string) (domain.RemainingResponse, error) {
	projection, err := s.projection(ctx, planID)
	if err != nil {
		return domain.RemainingResponse{}, err
	}
	return domain.RemainingResponse{
		PlanID:         planID,
		RemainingCents: projection.RemainingCents,
		Status:         projection.Status,
	}, nil
}

func (s *Service) ListSchedule(ctx context.Context, planID string) (domain.ScheduleResponse, error) {
	entries, err := s.repo.ListSchedule(ctx, planID)
	if err != nil {
		return domain.ScheduleResponse{}, err
	}
	return domain.ScheduleResponse{PlanID: planID, Entries: entries}, nil
}

// IsOverdue evaluates the state machine against the current clock, so
// a plan whose stored status predates a missed due date still reports
// overdue correctly. There is no background sweep; this is the single
// source of truth.
func (s *Service) IsOverdue(ctx context.Context, planID string) (domain.OverdueResponse, error) {
	projection, err := s.projection(ctx, planID)
	if err != nil {
		return domain.OverdueResponse{}, err
	}
	return domain.OverdueResponse{
		PlanID:  planID,
		Overdue: projection.Status == domain.PlanStatusOverdue,
		Status:  projection.Status,
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, planID string) (domain.PaymentListResponse, error) {
	payments, err := s.repo.ListPayments(ctx, planID)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}
	return domain.PaymentListResponse{Payments: payments}, nil
}

func (s *Service) ListPlans(ctx context.Context, status domain.PlanStatus, limit int) (domain.PlanListResponse, error) {
	if status != "" {
		switch status {
		case domain.PlanStatusActive, domain.PlanStatusPaid, domain.PlanStatusOverdue, domain.PlanStatusCancelled:
		default:
			return domain.PlanListResponse{}, fmt.Errorf("unknown plan status %q", status)
		}
	}
	plans, err := s.repo.ListPlans(ctx, status, limit)
	if err != nil {
		return domain.PlanListResponse{}, err
	}
	return domain.PlanListResponse{Plans: plans}, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) (domain.LedgerListResponse, error) {
	if registerID == "" {
		registerID = s.defaultRegisterID
	}
	entries, err := s.repo.ListLedgerEntries(ctx, registerID, from, to, limit)
	if err != nil {
		return domain.LedgerListResponse{}, err
	}
	return domain.LedgerListResponse{RegisterID: registerID, Entries: entries}, nil
}

func (s *Service) GetRegisterStock(ctx context.Context, registerID string) (domain.RegisterStockResponse, error) {
	if registerID == "" {
		registerID = s.defaultRegisterID
	}
	stocks, err := s.repo.GetRegisterStock(ctx, registerID)
	if err != nil {
		return domain.RegisterStockResponse{}, err
	}
	return domain.RegisterStockResponse{RegisterID: registerID, Stocks: stocks}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// projection returns the cached plan read model, computing and caching
// it on a miss. Status and remaining are always derived fresh from the
// schedule, never read back from the stored status column.
func (s *Service) projection(ctx context.Context, planID string) (domain.PlanProjection, error) {
	if cached, ok, err := s.projections.Get(ctx, planID); err == nil && ok {
		return *cached, nil
	}

	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return domain.PlanProjection{}, err
	}
	entries, err := s.repo.ListSchedule(ctx, planID)
	if err != nil {
		return domain.PlanProjection{}, err
	}

	now := s.clk.Now()
	paidCount := 0
	for _, entry := range entries {
		if entry.Paid {
			paidCount++
		}
	}
	projection := domain.PlanProjection{
		PlanID:         planID,
		Status:         installment.DeriveStatus(*plan, entries, now),
		RemainingCents: installment.Remaining(*plan).Cents(),
		EntriesTotal:   len(entries),
		EntriesPaid:    paidCount,
		ComputedAt:     now,
	}

	if err := s.projections.Set(ctx, planID, &projection, s.projectionTTL); err != nil {
		log.Printf("[service] WARN: failed to cache projection plan=%s: %v", planID, err)
	}
	return projection, nil
}

func (s *Service) invalidateProjection(ctx context.Context, planID string) {
	if err := s.projections.Invalidate(ctx, planID); err != nil {
		log.Printf("[service] WARN: failed to invalidate projection plan=%s: %v", planID, err)
	}
}

func (s *Service) actorUsername(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clk.Now(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}
