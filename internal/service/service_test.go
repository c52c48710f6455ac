package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/ledger/ledgertest"
	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/repository"
)

type stubRepo struct {
	profile    *model.Profile
	profileErr error

	invested    decimal.Decimal
	investedErr error

	plan        *model.Plan
	createdPlan *model.Plan
	updatedPlan *model.Plan

	deposits    []model.Deposit
	depositsErr error
	lastFilter  repository.ListFilter

	wallet *model.DepositWallet

	flagsRole   *model.Role
	flagsFrozen *bool

	position *model.Position
	deposit  *model.Deposit
	pingErr  error
}

func (s *stubRepo) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) UpsertProfile(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error) {
	return &model.Profile{ID: userID, Email: email, Role: model.RoleUser}, nil
}

func (s *stubRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return s.profile, s.profileErr
}

func (s *stubRepo) UpdateProfileFlags(ctx context.Context, userID uuid.UUID, role *model.Role, frozen *bool) (*model.Profile, error) {
	s.flagsRole, s.flagsFrozen = role, frozen
	return &model.Profile{ID: userID}, nil
}

func (s *stubRepo) InvestedTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.invested, s.investedErr
}

func (s *stubRepo) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	return nil, nil
}

func (s *stubRepo) GetPlan(ctx context.Context, planID uuid.UUID) (*model.Plan, error) {
	if s.plan == nil || s.plan.ID != planID {
		return nil, model.ErrNotFound
	}
	return s.plan, nil
}

func (s *stubRepo) CreatePlan(ctx context.Context, p *model.Plan) error {
	s.createdPlan = p
	return nil
}

func (s *stubRepo) UpdatePlan(ctx context.Context, p *model.Plan) error {
	s.updatedPlan = p
	return nil
}

func (s *stubRepo) ListPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, error) {
	return nil, nil
}

func (s *stubRepo) GetPosition(ctx context.Context, positionID uuid.UUID) (*model.Position, error) {
	if s.position == nil || s.position.ID != positionID {
		return nil, model.ErrNotFound
	}
	return s.position, nil
}

func (s *stubRepo) ListROIHistory(ctx context.Context, userID uuid.UUID, positionID *uuid.UUID, limit int) ([]model.ROIRecord, error) {
	return nil, nil
}

func (s *stubRepo) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Transaction, error) {
	return nil, nil
}

func (s *stubRepo) ListDeposits(ctx context.Context, f repository.ListFilter) ([]model.Deposit, error) {
	s.lastFilter = f
	return s.deposits, s.depositsErr
}

func (s *stubRepo) GetDeposit(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	if s.deposit == nil || s.deposit.ID != depositID {
		return nil, model.ErrNotFound
	}
	return s.deposit, nil
}

func (s *stubRepo) ListWithdrawals(ctx context.Context, f repository.ListFilter) ([]model.Withdrawal, error) {
	s.lastFilter = f
	return nil, nil
}

func (s *stubRepo) ListDepositWallets(ctx context.Context, activeOnly bool) ([]model.DepositWallet, error) {
	return nil, nil
}

func (s *stubRepo) UpsertDepositWallet(ctx context.Context, w *model.DepositWallet) error {
	s.wallet = w
	return nil
}

type stubUploader struct {
	key  string
	body string
	err  error
}

func (s *stubUploader) Upload(ctx context.Context, userID uuid.UUID, filename string, body io.Reader, size int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, _ := io.ReadAll(body)
	s.key = userID.String() + "/" + filename
	s.body = string(b)
	return "https://proofs.example.com/" + s.key, nil
}

type stubNotifier struct {
	to  string
	err error
}

func (s *stubNotifier) SubscriptionConfirmed(ctx context.Context, to, planName string, amount decimal.Decimal) error {
	s.to = to
	return s.err
}

const validAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

func newLedger(t *testing.T, store *ledgertest.MemStore) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(store, ledger.Config{
		FeeRate:            decimal.RequireFromString("0.1"),
		MinWithdrawal:      decimal.NewFromInt(10),
		MaxActivePositions: 5,
	})
	if err != nil {
		t.Fatalf("ledger.New error: %v", err)
	}
	return l.WithClock(func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) })
}

func TestGetBalance_ReportsAvailable(t *testing.T) {
	repo := &stubRepo{
		profile: &model.Profile{
			Balance:  decimal.NewFromInt(1000),
			Reserved: decimal.NewFromInt(200),
		},
		invested: decimal.NewFromInt(500),
	}
	svc := NewService(Deps{Repo: repo})

	balance, err := svc.GetBalance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if !balance.Available.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("Available = %s, want 800", balance.Available)
	}
	if !balance.Invested.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("Invested = %s, want 500", balance.Invested)
	}
}

func TestGetBalance_StoreFailure(t *testing.T) {
	repo := &stubRepo{profileErr: errors.New("connection reset")}
	svc := NewService(Deps{Repo: repo})

	_, err := svc.GetBalance(context.Background(), uuid.New())
	if !errors.Is(err, model.ErrDependencyFailure) {
		t.Fatalf("expected ErrDependencyFailure, got %v", err)
	}
}

func TestIsAdmin(t *testing.T) {
	repo := &stubRepo{profile: &model.Profile{Role: model.RoleAdmin}}
	svc := NewService(Deps{Repo: repo})

	ok, err := svc.IsAdmin(context.Background(), uuid.New())
	if err != nil || !ok {
		t.Fatalf("IsAdmin = %v, %v, want true", ok, err)
	}

	repo.profile = &model.Profile{Role: model.RoleUser}
	ok, err = svc.IsAdmin(context.Background(), uuid.New())
	if err != nil || ok {
		t.Fatalf("IsAdmin = %v, %v, want false", ok, err)
	}
}

func TestSubscribe_NotifiesOwner(t *testing.T) {
	store := ledgertest.NewMemStore()
	userID, planID := uuid.New(), uuid.New()
	store.AddProfile(model.Profile{ID: userID, Email: "investor@example.com", Balance: decimal.NewFromInt(1000), Role: model.RoleUser})
	store.AddPlan(model.Plan{
		ID: planID, Key: "starter", Name: "Starter", MinAmount: decimal.NewFromInt(100),
		ROIMin: decimal.NewFromInt(1), ROIMax: decimal.NewFromInt(1), Frequency: model.FrequencyDaily,
		WithdrawalType: model.WithdrawalFlexible, Active: true,
	})

	repo := &stubRepo{profile: &model.Profile{ID: userID, Email: "investor@example.com"}}
	notifier := &stubNotifier{err: errors.New("broker down")}
	svc := NewService(Deps{Repo: repo, Ledger: newLedger(t, store), Notifier: notifier})

	pos, err := svc.Subscribe(context.Background(), userID, planID, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if pos.PlanName != "Starter" {
		t.Fatalf("PlanName = %q, want Starter", pos.PlanName)
	}
	if notifier.to != "investor@example.com" {
		t.Fatalf("notification sent to %q", notifier.to)
	}

	p, _ := store.Profile(userID)
	if !p.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance = %s, want 500", p.Balance)
	}
}

func TestRequestWithdrawalValidation(t *testing.T) {
	store := ledgertest.NewMemStore()
	userID := uuid.New()
	store.AddProfile(model.Profile{ID: userID, Balance: decimal.NewFromInt(1000), Role: model.RoleUser})
	svc := NewService(Deps{Repo: &stubRepo{}, Ledger: newLedger(t, store)})

	tests := []struct {
		name string
		in   WithdrawalInput
	}{
		{name: "bad currency", in: WithdrawalInput{Currency: "usd$", Network: "ERC20", WalletAddress: validAddress}},
		{name: "bad network", in: WithdrawalInput{Currency: "USDT", Network: "?", WalletAddress: validAddress}},
		{name: "bad address", in: WithdrawalInput{Currency: "USDT", Network: "ERC20", WalletAddress: "0x123"}},
		{name: "address of another network", in: WithdrawalInput{Currency: "USDT", Network: "TRC20", WalletAddress: validAddress}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.UserID = userID
			tt.in.Amount = decimal.NewFromInt(100)
			_, err := svc.RequestWithdrawal(context.Background(), tt.in)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	w, err := svc.RequestWithdrawal(context.Background(), WithdrawalInput{
		UserID: userID, Amount: decimal.NewFromInt(200), Currency: " usdt ", Network: "ERC20", WalletAddress: validAddress,
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal error: %v", err)
	}
	if w.Currency != "USDT" || !w.NetAmount.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
}

func TestQuote(t *testing.T) {
	svc := NewService(Deps{Ledger: newLedger(t, ledgertest.NewMemStore())})

	fee, net, err := svc.Quote(decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !fee.Equal(decimal.NewFromInt(20)) || !net.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("Quote = %s, %s, want 20, 180", fee, net)
	}
}

func TestSubmitDeposit_UploadsProof(t *testing.T) {
	store := ledgertest.NewMemStore()
	userID := uuid.New()
	store.AddProfile(model.Profile{ID: userID, Role: model.RoleUser})
	uploader := &stubUploader{}
	svc := NewService(Deps{Repo: &stubRepo{}, Ledger: newLedger(t, store), Proofs: uploader})

	d, err := svc.SubmitDeposit(context.Background(), DepositInput{
		UserID:   userID,
		Amount:   decimal.NewFromInt(50),
		Currency: "usdt",
		Proof:    &ProofFile{Name: "receipt.png", Body: strings.NewReader("png"), Size: 3},
	})
	if err != nil {
		t.Fatalf("SubmitDeposit error: %v", err)
	}
	if d.ProofURL != "https://proofs.example.com/"+userID.String()+"/receipt.png" {
		t.Fatalf("ProofURL = %q", d.ProofURL)
	}
	if uploader.body != "png" {
		t.Fatalf("uploaded body = %q", uploader.body)
	}
	if d.Status != model.DepositPending {
		t.Fatalf("Status = %s, want pending", d.Status)
	}
}

func TestSubmitDeposit_ProofWithoutStorage(t *testing.T) {
	store := ledgertest.NewMemStore()
	userID := uuid.New()
	store.AddProfile(model.Profile{ID: userID, Role: model.RoleUser})
	svc := NewService(Deps{Repo: &stubRepo{}, Ledger: newLedger(t, store)})

	_, err := svc.SubmitDeposit(context.Background(), DepositInput{
		UserID:   userID,
		Amount:   decimal.NewFromInt(50),
		Currency: "USDT",
		Proof:    &ProofFile{Name: "receipt.png", Body: strings.NewReader("png"), Size: 3},
	})
	if !errors.Is(err, model.ErrDependencyFailure) {
		t.Fatalf("expected ErrDependencyFailure, got %v", err)
	}
	if len(store.Transactions(userID)) != 0 {
		t.Fatalf("no transaction must be written when upload fails")
	}
}

func TestSubmitDeposit_Validation(t *testing.T) {
	svc := NewService(Deps{Repo: &stubRepo{}, Ledger: newLedger(t, ledgertest.NewMemStore())})

	_, err := svc.SubmitDeposit(context.Background(), DepositInput{UserID: uuid.New(), Amount: decimal.NewFromInt(50), Currency: "USDT", TxHash: "nope"})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for malformed hash, got %v", err)
	}

	_, err = svc.SubmitDeposit(context.Background(), DepositInput{UserID: uuid.New(), Amount: decimal.Zero, Currency: "USDT"})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero amount, got %v", err)
	}
}

func TestCreatePlanValidation(t *testing.T) {
	valid := PlanInput{
		Key: "gold", Name: "Gold", MinAmount: decimal.NewFromInt(100),
		MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		ROIMin:    decimal.NewFromInt(1), ROIMax: decimal.NewFromInt(2),
		Frequency: model.FrequencyDaily, WithdrawalType: model.WithdrawalFull, LockPeriodHours: 24, Active: true,
	}

	tests := []struct {
		name   string
		mutate func(in *PlanInput)
	}{
		{name: "missing key", mutate: func(in *PlanInput) { in.Key = " " }},
		{name: "roi bounds inverted", mutate: func(in *PlanInput) { in.ROIMin, in.ROIMax = decimal.NewFromInt(3), decimal.NewFromInt(2) }},
		{name: "amount bounds inverted", mutate: func(in *PlanInput) { in.MaxAmount = decimal.NewNullDecimal(decimal.NewFromInt(50)) }},
		{name: "unknown frequency", mutate: func(in *PlanInput) { in.Frequency = "monthly" }},
		{name: "unknown withdrawal type", mutate: func(in *PlanInput) { in.WithdrawalType = "partial" }},
		{name: "negative lock", mutate: func(in *PlanInput) { in.LockPeriodHours = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(Deps{Repo: repo})
			in := valid
			tt.mutate(&in)

			_, err := svc.CreatePlan(context.Background(), in)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if repo.createdPlan != nil {
				t.Fatalf("invalid plan must not be stored")
			}
		})
	}

	repo := &stubRepo{}
	svc := NewService(Deps{Repo: repo})
	p, err := svc.CreatePlan(context.Background(), valid)
	if err != nil {
		t.Fatalf("CreatePlan error: %v", err)
	}
	if repo.createdPlan != p || p.ID == uuid.Nil {
		t.Fatalf("plan was not stored: %+v", p)
	}
}

func TestUpdatePlan_FixedROI(t *testing.T) {
	planID := uuid.New()
	repo := &stubRepo{plan: &model.Plan{ID: planID, Key: "gold"}}
	svc := NewService(Deps{Repo: repo})

	p, err := svc.UpdatePlan(context.Background(), planID, PlanInput{
		Key: "gold", Name: "Gold", MinAmount: decimal.NewFromInt(100),
		ROIFixed:  decimal.NewNullDecimal(decimal.RequireFromString("1.5")),
		Frequency: model.FrequencyWeekly, WithdrawalType: model.WithdrawalFlexible,
	})
	if err != nil {
		t.Fatalf("UpdatePlan error: %v", err)
	}
	if !p.ROIMin.Equal(decimal.RequireFromString("1.5")) || !p.ROIMax.Equal(p.ROIMin) {
		t.Fatalf("fixed roi not applied: %s..%s", p.ROIMin, p.ROIMax)
	}
	if repo.updatedPlan == nil || repo.updatedPlan.ID != planID {
		t.Fatalf("plan was not updated")
	}

	_, err = svc.UpdatePlan(context.Background(), uuid.New(), PlanInput{})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTopUp(t *testing.T) {
	store := ledgertest.NewMemStore()
	userID := uuid.New()
	store.AddProfile(model.Profile{ID: userID, Balance: decimal.NewFromInt(10), Role: model.RoleUser})
	svc := NewService(Deps{Ledger: newLedger(t, store)})

	tr, err := svc.TopUp(context.Background(), uuid.New(), userID, decimal.NewFromInt(90), "bank wire")
	if err != nil {
		t.Fatalf("TopUp error: %v", err)
	}
	if tr.Description != "Admin top-up: bank wire" || tr.Status != model.TxCompleted {
		t.Fatalf("unexpected transaction: %+v", tr)
	}

	p, _ := store.Profile(userID)
	if !p.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s, want 100", p.Balance)
	}
}

func TestUpdateUser(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(Deps{Repo: repo})

	if _, err := svc.UpdateUser(context.Background(), uuid.New(), UserFlags{}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty update, got %v", err)
	}

	bad := model.Role("root")
	if _, err := svc.UpdateUser(context.Background(), uuid.New(), UserFlags{Role: &bad}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown role, got %v", err)
	}

	frozen := true
	if _, err := svc.UpdateUser(context.Background(), uuid.New(), UserFlags{Frozen: &frozen}); err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if repo.flagsFrozen == nil || !*repo.flagsFrozen || repo.flagsRole != nil {
		t.Fatalf("flags not passed through: role=%v frozen=%v", repo.flagsRole, repo.flagsFrozen)
	}
}

func TestUpsertDepositWallet(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(Deps{Repo: repo})

	_, err := svc.UpsertDepositWallet(context.Background(), model.DepositWallet{Currency: "USDT", Network: "ERC20", Address: "short"})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	w, err := svc.UpsertDepositWallet(context.Background(), model.DepositWallet{Currency: "eth", Network: "ERC20", Address: validAddress, Active: true})
	if err != nil {
		t.Fatalf("UpsertDepositWallet error: %v", err)
	}
	if w.Currency != "ETH" || repo.wallet == nil || repo.wallet.UpdatedAt.IsZero() {
		t.Fatalf("wallet not stored: %+v", repo.wallet)
	}
}

func TestListDeposits_PassThrough(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{deposits: []model.Deposit{{ID: uuid.New(), UserID: userID}}}
	svc := NewService(Deps{Repo: repo})

	res, err := svc.ListDeposits(context.Background(), repository.ListFilter{UserID: &userID, Status: "pending"})
	if err != nil {
		t.Fatalf("ListDeposits error: %v", err)
	}
	if len(res) != 1 || repo.lastFilter.Status != "pending" || *repo.lastFilter.UserID != userID {
		t.Fatalf("unexpected result %+v with filter %+v", res, repo.lastFilter)
	}
}

func TestGetProfile_Missing(t *testing.T) {
	repo := &stubRepo{profileErr: fmt.Errorf("get profile: %w", model.ErrNotFound)}
	svc := NewService(Deps{Repo: repo})

	_, err := svc.GetProfile(context.Background(), uuid.New())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, model.ErrDependencyFailure) {
		t.Fatalf("missing profile reported as dependency failure: %v", err)
	}
}

func TestPosition_OwnerOnly(t *testing.T) {
	owner := uuid.New()
	pos := &model.Position{ID: uuid.New(), UserID: owner}
	svc := NewService(Deps{Repo: &stubRepo{position: pos}})

	got, err := svc.Position(context.Background(), owner, pos.ID)
	if err != nil || got.ID != pos.ID {
		t.Fatalf("Position() = %v, %v", got, err)
	}

	_, err = svc.Position(context.Background(), uuid.New(), pos.ID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("foreign position: expected ErrNotFound, got %v", err)
	}
}

func TestDeposit_OwnerOnly(t *testing.T) {
	owner := uuid.New()
	dep := &model.Deposit{ID: uuid.New(), UserID: owner, Status: model.DepositPending}
	svc := NewService(Deps{Repo: &stubRepo{deposit: dep}})

	got, err := svc.Deposit(context.Background(), owner, dep.ID)
	if err != nil || got.ID != dep.ID {
		t.Fatalf("Deposit() = %v, %v", got, err)
	}

	_, err = svc.Deposit(context.Background(), uuid.New(), dep.ID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("foreign deposit: expected ErrNotFound, got %v", err)
	}
	_, err = svc.Deposit(context.Background(), owner, uuid.New())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown deposit: expected ErrNotFound, got %v", err)
	}
}

func TestPing(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(Deps{Repo: repo})
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	repo.pingErr = errors.New("connection refused")
	if err := svc.Ping(context.Background()); !errors.Is(err, model.ErrDependencyFailure) {
		t.Fatalf("expected ErrDependencyFailure, got %v", err)
	}
}
