package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/store"
	"cicilanpos/backend/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. A
// single mutex guards all state, which trivially satisfies the
// exclusive-plan-lock contract: WithPlanLock callbacks run one at a
// time and their writes are staged, committing only when the callback
// succeeds.
type Store struct {
	mu              sync.RWMutex
	plansByID       map[string]domain.InstallmentPlan
	planIDBySaleID  map[string]string
	entriesByPlan   map[string][]domain.ScheduleEntry
	paymentsByPlan  map[string][]domain.Payment
	ledger          []domain.LedgerEntry
	stocks          map[string]map[string]int
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		plansByID:       make(map[string]domain.InstallmentPlan),
		planIDBySaleID:  make(map[string]string),
		entriesByPlan:   make(map[string][]domain.ScheduleEntry),
		paymentsByPlan:  make(map[string][]domain.Payment),
		stocks:          make(map[string]map[string]int),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with dev users and a sample
// register stock table so the admin console has something to show.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	s.stocks["register-1"] = map[string]int{
		"SKU-HP-01":     4,
		"SKU-TV-01":     2,
		"SKU-KULKAS-01": 3,
		"SKU-MESIN-01":  1,
	}
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo
// mode. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; hardcoded dev defaults are used with a warning
// when unset. Production deployments use PostgreSQL.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreatePlan(ctx context.Context, plan domain.InstallmentPlan, entries []domain.ScheduleEntry, payments []domain.Payment) (*domain.InstallmentPlan, error) {
	if plan.SaleID == "" {
		return nil, store.ErrDuplicate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.planIDBySaleID[plan.SaleID]; exists {
		return nil, store.ErrDuplicate
	}
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	stored := make([]domain.ScheduleEntry, len(entries))
	copy(stored, entries)
	for i := range stored {
		if stored[i].ID == "" {
			stored[i].ID = xid.New("sched")
		}
		stored[i].PlanID = plan.ID
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].DueDate.Before(stored[j].DueDate) })

	s.plansByID[plan.ID] = plan
	s.planIDBySaleID[plan.SaleID] = plan.ID
	s.entriesByPlan[plan.ID] = stored

	for _, p := range payments {
		if p.ID == "" {
			p.ID = xid.New("pay")
		}
		p.PlanID = plan.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = plan.CreatedAt
		}
		s.paymentsByPlan[plan.ID] = append(s.paymentsByPlan[plan.ID], p)
	}

	created := plan
	return &created, nil
}

func (s *Store) GetPlan(ctx context.Context, planID string) (*domain.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plansByID[planID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := plan
	return &found, nil
}

func (s *Store) GetPlanBySaleID(ctx context.Context, saleID string) (*domain.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	planID, ok := s.planIDBySaleID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	plan := s.plansByID[planID]
	return &plan, nil
}

func (s *Store) ListPlans(ctx context.Context, status domain.PlanStatus, limit int) ([]domain.InstallmentPlan, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]domain.InstallmentPlan, 0, len(s.plansByID))
	for _, plan := range s.plansByID {
		if status != "" && plan.Status != status {
			continue
		}
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.After(plans[j].CreatedAt) })
	if len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

func (s *Store) ListSchedule(ctx context.Context, planID string) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.plansByID[planID]; !ok {
		return nil, store.ErrNotFound
	}
	return cloneEntries(s.entriesByPlan[planID]), nil
}

func (s *Store) ListPayments(ctx context.Context, planID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.plansByID[planID]; !ok {
		return nil, store.ErrNotFound
	}
	payments := make([]domain.Payment, len(s.paymentsByPlan[planID]))
	copy(payments, s.paymentsByPlan[planID])
	return payments, nil
}

func (s *Store) WithPlanLock(ctx context.Context, planID string, fn func(tx store.PlanTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plansByID[planID]
	if !ok {
		return store.ErrNotFound
	}

	tx := &planTx{
		store:   s,
		planID:  planID,
		plan:    plan,
		entries: cloneEntries(s.entriesByPlan[planID]),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, registerID string, from time.Time, to time.Time, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, limit)
	for _, entry := range s.ledger {
		if registerID != "" && entry.RegisterID != registerID {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) GetRegisterStock(ctx context.Context, registerID string) ([]domain.RegisterStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stocks := make([]domain.RegisterStock, 0, len(s.stocks[registerID]))
	for sku, qty := range s.stocks[registerID] {
		stocks = append(stocks, domain.RegisterStock{RegisterID: registerID, SKU: sku, Qty: qty})
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].SKU < stocks[j].SKU })
	return stocks, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrDuplicate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// planTx stages mutations against one plan; commit applies them under
// the store mutex already held by WithPlanLock.
type planTx struct {
	store   *Store
	planID  string
	plan    domain.InstallmentPlan
	entries []domain.ScheduleEntry

	stagedPlan     *domain.InstallmentPlan
	stagedEntries  []domain.ScheduleEntry
	stagedPayments []domain.Payment
	stagedLedger   []domain.LedgerEntry
}

func (tx *planTx) Plan() domain.InstallmentPlan {
	return tx.plan
}

func (tx *planTx) Entries() []domain.ScheduleEntry {
	return cloneEntries(tx.entries)
}

func (tx *planTx) UpdatePlan(plan domain.InstallmentPlan) error {
	plan.ID = tx.planID
	tx.stagedPlan = &plan
	return nil
}

func (tx *planTx) UpdateEntries(entries []domain.ScheduleEntry) error {
	tx.stagedEntries = cloneEntries(entries)
	return nil
}

func (tx *planTx) InsertPayment(payment domain.Payment) error {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.PlanID = tx.planID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	tx.stagedPayments = append(tx.stagedPayments, payment)
	return nil
}

func (tx *planTx) InsertLedgerEntry(entry domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("ledger")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	tx.stagedLedger = append(tx.stagedLedger, entry)
	return nil
}

func (tx *planTx) FindPaymentByIdempotency(key string) (*domain.Payment, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	for _, payment := range tx.store.paymentsByPlan[tx.planID] {
		if payment.IdempotencyKey == key {
			found := payment
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (tx *planTx) SumPayments() (int64, error) {
	var total int64
	for _, payment := range tx.store.paymentsByPlan[tx.planID] {
		total += payment.AmountCents
	}
	for _, payment := range tx.stagedPayments {
		total += payment.AmountCents
	}
	return total, nil
}

func (tx *planTx) commit() {
	if tx.stagedPlan != nil {
		tx.store.plansByID[tx.planID] = *tx.stagedPlan
	}
	if tx.stagedEntries != nil {
		merged := cloneEntries(tx.store.entriesByPlan[tx.planID])
		byID := make(map[string]int, len(merged))
		for i := range merged {
			byID[merged[i].ID] = i
		}
		for _, entry := range tx.stagedEntries {
			if i, ok := byID[entry.ID]; ok {
				merged[i] = entry
			}
		}
		tx.store.entriesByPlan[tx.planID] = merged
	}
	if len(tx.stagedPayments) > 0 {
		tx.store.paymentsByPlan[tx.planID] = append(tx.store.paymentsByPlan[tx.planID], tx.stagedPayments...)
	}
	if len(tx.stagedLedger) > 0 {
		tx.store.ledger = append(tx.store.ledger, tx.stagedLedger...)
	}
}

func cloneEntries(entries []domain.ScheduleEntry) []domain.ScheduleEntry {
	cloned := make([]domain.ScheduleEntry, len(entries))
	copy(cloned, entries)
	for i := range cloned {
		if cloned[i].PaidAt != nil {
			at := *cloned[i].PaidAt
			cloned[i].PaidAt = &at
		}
	}
	return cloned
}
