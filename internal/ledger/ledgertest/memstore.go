// Package ledgertest содержит хранилище в памяти для тестов ledger и его потребителей.
package ledgertest

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/model"
)

type state struct {
	profiles     map[uuid.UUID]model.Profile
	plans        map[uuid.UUID]model.Plan
	positions    map[uuid.UUID]model.Position
	transactions []model.Transaction
	roi          []model.ROIRecord
	deposits     map[uuid.UUID]model.Deposit
	withdrawals  map[uuid.UUID]model.Withdrawal
}

func (s *state) clone() *state {
	return &state{
		profiles:     maps.Clone(s.profiles),
		plans:        maps.Clone(s.plans),
		positions:    maps.Clone(s.positions),
		transactions: slices.Clone(s.transactions),
		roi:          slices.Clone(s.roi),
		deposits:     maps.Clone(s.deposits),
		withdrawals:  maps.Clone(s.withdrawals),
	}
}

// MemStore реализует ledger.Store в памяти.
// Транзакции выполняются последовательно над копией состояния и применяются только при успехе.
type MemStore struct {
	mu     sync.Mutex
	state  *state
	failOn map[string]error
	txs    int
}

var _ ledger.Store = (*MemStore)(nil)

// NewMemStore создаёт пустое хранилище.
func NewMemStore() *MemStore {
	return &MemStore{
		state: &state{
			profiles:    make(map[uuid.UUID]model.Profile),
			plans:       make(map[uuid.UUID]model.Plan),
			positions:   make(map[uuid.UUID]model.Position),
			deposits:    make(map[uuid.UUID]model.Deposit),
			withdrawals: make(map[uuid.UUID]model.Withdrawal),
		},
		failOn: make(map[string]error),
	}
}

// FailOn заставляет метод транзакции с именем method возвращать err. nil снимает сбой.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, method)
		return
	}
	m.failOn[method] = err
}

// Commits возвращает число успешно применённых транзакций.
func (m *MemStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs
}

func (m *MemStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{st: work, failOn: m.failOn}); err != nil {
		return err
	}
	m.state = work
	m.txs++
	return nil
}

// DuePositions возвращает активные позиции с наступившим сроком начисления в порядке (next_roi, id).
func (m *MemStore) DuePositions(ctx context.Context, now time.Time, after *model.DueCursor, limit int) ([]model.DuePosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failOn["DuePositions"]; err != nil {
		return nil, err
	}

	var due []model.Position
	for _, p := range m.state.positions {
		if p.Status != model.PositionActive || p.NextROIAt == nil || p.NextROIAt.After(now) {
			continue
		}
		if after != nil && !cursorLess(*after, model.DueCursor{NextROIAt: *p.NextROIAt, ID: p.ID}) {
			continue
		}
		due = append(due, p)
	}
	slices.SortFunc(due, func(a, b model.Position) int {
		if c := a.NextROIAt.Compare(*b.NextROIAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]model.DuePosition, 0, len(due))
	for _, p := range due {
		item := model.DuePosition{Position: p, OwnerEmail: m.state.profiles[p.UserID].Email}
		if p.PlanID != nil {
			if plan, ok := m.state.plans[*p.PlanID]; ok {
				item.Plan = &model.PlanTerms{ROIMin: plan.ROIMin, ROIMax: plan.ROIMax, Frequency: plan.Frequency}
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func cursorLess(a, b model.DueCursor) bool {
	if c := a.NextROIAt.Compare(b.NextROIAt); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// AddProfile сохраняет или заменяет счёт.
func (m *MemStore) AddProfile(p model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.profiles[p.ID] = p
}

// AddPlan сохраняет или заменяет план.
func (m *MemStore) AddPlan(p model.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.plans[p.ID] = p
}

// DeletePlan удаляет план из каталога.
func (m *MemStore) DeletePlan(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.plans, id)
}

// AddPosition сохраняет или заменяет позицию.
func (m *MemStore) AddPosition(p model.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.positions[p.ID] = p
}

func (m *MemStore) Profile(id uuid.UUID) (model.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.profiles[id]
	return p, ok
}

func (m *MemStore) Position(id uuid.UUID) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.positions[id]
	return p, ok
}

// Positions возвращает все позиции пользователя.
func (m *MemStore) Positions(userID uuid.UUID) []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.state.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// Transactions возвращает записи журнала пользователя в порядке вставки.
func (m *MemStore) Transactions(userID uuid.UUID) []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.state.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// ROIRecords возвращает историю начислений по позиции.
func (m *MemStore) ROIRecords(positionID uuid.UUID) []model.ROIRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ROIRecord
	for _, r := range m.state.roi {
		if r.PositionID == positionID {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemStore) Deposit(id uuid.UUID) (model.Deposit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.state.deposits[id]
	return d, ok
}

func (m *MemStore) Withdrawal(id uuid.UUID) (model.Withdrawal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.withdrawals[id]
	return w, ok
}

type memTx struct {
	st     *state
	failOn map[string]error
}

func (t *memTx) fail(method string) error {
	return t.failOn[method]
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}

func (t *memTx) GetProfileForUpdate(_ context.Context, userID uuid.UUID) (*model.Profile, error) {
	if err := t.fail("GetProfileForUpdate"); err != nil {
		return nil, err
	}
	p, ok := t.st.profiles[userID]
	if !ok {
		return nil, notFound("profile", userID)
	}
	return &p, nil
}

func (t *memTx) AdjustProfileFunds(_ context.Context, userID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal) (*model.Profile, error) {
	if err := t.fail("AdjustProfileFunds"); err != nil {
		return nil, err
	}
	p, ok := t.st.profiles[userID]
	if !ok {
		return nil, notFound("profile", userID)
	}
	balance := p.Balance.Add(balanceDelta)
	reserved := p.Reserved.Add(reservedDelta)
	if reserved.IsNegative() || balance.LessThan(reserved) {
		return nil, &model.InsufficientFundsError{Available: p.Available(), Requested: balanceDelta.Neg()}
	}
	p.Balance = balance
	p.Reserved = reserved
	t.st.profiles[userID] = p
	return &p, nil
}

func (t *memTx) GetPlan(_ context.Context, planID uuid.UUID) (*model.Plan, error) {
	if err := t.fail("GetPlan"); err != nil {
		return nil, err
	}
	p, ok := t.st.plans[planID]
	if !ok {
		return nil, notFound("plan", planID)
	}
	return &p, nil
}

func (t *memTx) CountActivePositions(_ context.Context, userID uuid.UUID) (int, error) {
	if err := t.fail("CountActivePositions"); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range t.st.positions {
		if p.UserID == userID && p.Status == model.PositionActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertPosition(_ context.Context, p *model.Position) error {
	if err := t.fail("InsertPosition"); err != nil {
		return err
	}
	t.st.positions[p.ID] = *p
	return nil
}

func (t *memTx) GetPositionForUpdate(_ context.Context, positionID uuid.UUID) (*model.Position, error) {
	if err := t.fail("GetPositionForUpdate"); err != nil {
		return nil, err
	}
	p, ok := t.st.positions[positionID]
	if !ok {
		return nil, notFound("position", positionID)
	}
	return &p, nil
}

func (t *memTx) AccruePosition(_ context.Context, positionID uuid.UUID, upd ledger.AccrualUpdate) (bool, error) {
	if err := t.fail("AccruePosition"); err != nil {
		return false, err
	}
	p, ok := t.st.positions[positionID]
	if !ok || p.Status != model.PositionActive || !p.CurrentBalance.Equal(upd.ExpectBalance) {
		return false, nil
	}
	if (p.NextROIAt == nil) != (upd.ExpectNext == nil) {
		return false, nil
	}
	if p.NextROIAt != nil && !p.NextROIAt.Equal(*upd.ExpectNext) {
		return false, nil
	}
	last, next := upd.LastROIAt, upd.NextROIAt
	p.CurrentBalance = upd.Balance
	p.TotalEarned = upd.TotalEarned
	p.LastROIAt = &last
	p.NextROIAt = &next
	p.UpdatedAt = last
	t.st.positions[positionID] = p
	return true, nil
}

func (t *memTx) AdjustPosition(_ context.Context, positionID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal, status model.PositionStatus) (*model.Position, error) {
	if err := t.fail("AdjustPosition"); err != nil {
		return nil, err
	}
	p, ok := t.st.positions[positionID]
	if !ok {
		return nil, notFound("position", positionID)
	}
	balance := p.CurrentBalance.Add(balanceDelta)
	reserved := p.Reserved.Add(reservedDelta)
	if reserved.IsNegative() || balance.LessThan(reserved) {
		return nil, &model.InsufficientFundsError{Available: p.Available(), Requested: balanceDelta.Neg()}
	}
	p.CurrentBalance = balance
	p.Reserved = reserved
	p.Status = status
	t.st.positions[positionID] = p
	return &p, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if err := t.fail("InsertTransaction"); err != nil {
		return err
	}
	t.st.transactions = append(t.st.transactions, *tr)
	return nil
}

func (t *memTx) ResolveTransaction(_ context.Context, txID uuid.UUID, status model.TransactionStatus, at time.Time) error {
	if err := t.fail("ResolveTransaction"); err != nil {
		return err
	}
	for i, tr := range t.st.transactions {
		if tr.ID != txID {
			continue
		}
		if tr.Status != model.TxPending {
			return fmt.Errorf("transaction %s is %s: %w", txID, tr.Status, model.ErrAlreadyResolved)
		}
		tr.Status = status
		tr.UpdatedAt = at
		t.st.transactions[i] = tr
		return nil
	}
	return notFound("transaction", txID)
}

func (t *memTx) InsertROIRecord(_ context.Context, r *model.ROIRecord) error {
	if err := t.fail("InsertROIRecord"); err != nil {
		return err
	}
	t.st.roi = append(t.st.roi, *r)
	return nil
}

func (t *memTx) InsertDeposit(_ context.Context, d *model.Deposit) error {
	if err := t.fail("InsertDeposit"); err != nil {
		return err
	}
	t.st.deposits[d.ID] = *d
	return nil
}

func (t *memTx) GetDeposit(_ context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	if err := t.fail("GetDeposit"); err != nil {
		return nil, err
	}
	d, ok := t.st.deposits[depositID]
	if !ok {
		return nil, notFound("deposit", depositID)
	}
	return &d, nil
}

func (t *memTx) GetDepositForUpdate(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	return t.GetDeposit(ctx, depositID)
}

func (t *memTx) UpdateDepositReview(_ context.Context, d *model.Deposit) error {
	if err := t.fail("UpdateDepositReview"); err != nil {
		return err
	}
	if _, ok := t.st.deposits[d.ID]; !ok {
		return notFound("deposit", d.ID)
	}
	t.st.deposits[d.ID] = *d
	return nil
}

func (t *memTx) InsertWithdrawal(_ context.Context, w *model.Withdrawal) error {
	if err := t.fail("InsertWithdrawal"); err != nil {
		return err
	}
	t.st.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) GetWithdrawal(_ context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	if err := t.fail("GetWithdrawal"); err != nil {
		return nil, err
	}
	w, ok := t.st.withdrawals[withdrawalID]
	if !ok {
		return nil, notFound("withdrawal", withdrawalID)
	}
	return &w, nil
}

func (t *memTx) GetWithdrawalForUpdate(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	return t.GetWithdrawal(ctx, withdrawalID)
}

func (t *memTx) UpdateWithdrawalReview(_ context.Context, w *model.Withdrawal) error {
	if err := t.fail("UpdateWithdrawalReview"); err != nil {
		return err
	}
	if _, ok := t.st.withdrawals[w.ID]; !ok {
		return notFound("withdrawal", w.ID)
	}
	t.st.withdrawals[w.ID] = *w
	return nil
}
