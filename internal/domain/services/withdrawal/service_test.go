package withdrawal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/database"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
	"github.com/optionpay/payout-service/pkg/logger"
)

// --- in-memory fakes ---

// fakeTxRunner mimics transaction semantics over the in-memory stores:
// an error from fn restores the state captured on entry.
type fakeTxRunner struct {
	snapshot func() func()
}

func (r fakeTxRunner) WithinTx(ctx context.Context, fn database.TxFunc) error {
	var restore func()
	if r.snapshot != nil {
		restore = r.snapshot()
	}
	if err := fn(ctx, nil); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	return nil
}

// serialTxRunner holds a mutex for the duration of each transaction,
// matching the serialization the wallet row lock provides in Postgres.
type serialTxRunner struct {
	mu    *sync.Mutex
	inner TxRunner
}

func (r serialTxRunner) WithinTx(ctx context.Context, fn database.TxFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.WithinTx(ctx, fn)
}

type fakeWalletStore struct {
	mu     sync.Mutex
	wallet *entities.Wallet
}

func (f *fakeWalletStore) GetByUserAndMode(ctx context.Context, userID uuid.UUID, mode entities.WalletMode) (*entities.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wallet.UserID != userID || f.wallet.Mode != mode {
		return nil, apperrors.NewNotFound("wallet")
	}
	w := *f.wallet
	return &w, nil
}

func (f *fakeWalletStore) LockTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID) (*entities.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wallet.ID != walletID {
		return nil, apperrors.NewNotFound("wallet")
	}
	w := *f.wallet
	return &w, nil
}

func (f *fakeWalletStore) DebitTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wallet.BalanceMinor < amountMinor {
		return 0, apperrors.NewInsufficientFunds("balance below requested amount")
	}
	f.wallet.BalanceMinor -= amountMinor
	return f.wallet.BalanceMinor, nil
}

func (f *fakeWalletStore) CreditTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallet.BalanceMinor += amountMinor
	return f.wallet.BalanceMinor, nil
}

func (f *fakeWalletStore) balance() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallet.BalanceMinor
}

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*entities.WithdrawalRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[uuid.UUID]*entities.WithdrawalRequest)}
}

func (f *fakeRequestStore) Create(ctx context.Context, w *entities.WithdrawalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.requests[w.ID] = &cp
	return nil
}

func (f *fakeRequestStore) CreateTx(ctx context.Context, tx *sqlx.Tx, w *entities.WithdrawalRequest) error {
	return f.Create(ctx, w)
}

func (f *fakeRequestStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("withdrawal request")
	}
	cp := *w
	return &cp, nil
}

func (f *fakeRequestStore) LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRequestStore) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.WithdrawalRequest
	for _, w := range f.requests {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) ListPendingReview(ctx context.Context, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entities.WithdrawalRequest
	for _, w := range f.requests {
		if w.Status == entities.WithdrawalStatusPending && w.ReviewRequired {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) MarkApprovedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.requests[id]
	w.Status = entities.WithdrawalStatusApproved
	w.GatewayTransactionID = &gatewayTxID
	return nil
}

func (f *fakeRequestStore) MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string, needsReconciliation bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.requests[id]
	w.Status = entities.WithdrawalStatusFailed
	w.FailureReason = &reason
	w.NeedsReconciliation = needsReconciliation
	return nil
}

func (f *fakeRequestStore) SetGatewayTransactionIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[id].GatewayTransactionID = &gatewayTxID
	return nil
}

func (f *fakeRequestStore) MarkRejected(ctx context.Context, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.requests[id]
	w.Status = entities.WithdrawalStatusRejected
	w.AdminNotes = &notes
	return nil
}

func (f *fakeRequestStore) SetAdminNotesTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[id].AdminNotes = &notes
	return nil
}

func (f *fakeRequestStore) get(id uuid.UUID) *entities.WithdrawalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

func (f *fakeRequestStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeMethodStore struct {
	method *entities.PayoutMethod
}

func (f *fakeMethodStore) GetForUser(ctx context.Context, methodID, userID uuid.UUID) (*entities.PayoutMethod, error) {
	if f.method == nil || f.method.ID != methodID || f.method.UserID != userID {
		return nil, apperrors.NewNotFound("payout method")
	}
	return f.method, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*entities.TransactionLedgerEntry
}

func (f *fakeLedger) AppendTx(ctx context.Context, tx *sqlx.Tx, e *entities.TransactionLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeLedger) all() []*entities.TransactionLedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*entities.TransactionLedgerEntry(nil), f.entries...)
}

type stubProvider struct {
	mu      sync.Mutex
	err     error
	txID    string
	calls   int
	validID bool
}

func (p *stubProvider) Initiate(ctx context.Context, req payout.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.txID, nil
}

func (p *stubProvider) ValidateIdentifier(identifier string) bool { return p.validID }
func (p *stubProvider) DisplayName() string                      { return "stub" }

// --- fixture ---

type fixture struct {
	service  *Service
	wallets  *fakeWalletStore
	requests *fakeRequestStore
	ledger   *fakeLedger
	provider *stubProvider
	userID   uuid.UUID
	methodID uuid.UUID
	walletID uuid.UUID
}

func newFixture(t *testing.T, balanceMinor int64, method payout.Method) *fixture {
	t.Helper()

	userID := uuid.New()
	walletID := uuid.New()
	methodID := uuid.New()

	wallets := &fakeWalletStore{wallet: &entities.Wallet{
		ID:           walletID,
		UserID:       userID,
		Mode:         entities.WalletModeReal,
		Currency:     "USD",
		BalanceMinor: balanceMinor,
	}}
	requests := newFakeRequestStore()
	ledger := &fakeLedger{}
	provider := &stubProvider{txID: "gw_1", validID: true}

	registry := payout.NewRegistry()
	registry.Register(method, provider, true)

	methods := &fakeMethodStore{method: &entities.PayoutMethod{
		ID:        methodID,
		UserID:    userID,
		Method:    method,
		Recipient: "user@example.com",
	}}

	txRunner := fakeTxRunner{snapshot: func() func() {
		wallets.mu.Lock()
		requests.mu.Lock()
		ledger.mu.Lock()
		walletCopy := *wallets.wallet
		requestsCopy := make(map[uuid.UUID]*entities.WithdrawalRequest, len(requests.requests))
		for id, w := range requests.requests {
			cp := *w
			requestsCopy[id] = &cp
		}
		entriesCopy := append([]*entities.TransactionLedgerEntry(nil), ledger.entries...)
		ledger.mu.Unlock()
		requests.mu.Unlock()
		wallets.mu.Unlock()

		return func() {
			wallets.mu.Lock()
			requests.mu.Lock()
			ledger.mu.Lock()
			*wallets.wallet = walletCopy
			requests.requests = requestsCopy
			ledger.entries = entriesCopy
			ledger.mu.Unlock()
			requests.mu.Unlock()
			wallets.mu.Unlock()
		}
	}}

	svc := NewService(
		Config{
			MinimumAmountMinor:  1000,
			AutoApproveMaxMinor: 50000,
			Retry:               payout.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
			ProviderTimeout:     time.Second,
		},
		wallets, requests, methods, ledger, registry, txRunner,
		logger.NewNop(),
	)

	return &fixture{
		service:  svc,
		wallets:  wallets,
		requests: requests,
		ledger:   ledger,
		provider: provider,
		userID:   userID,
		methodID: methodID,
		walletID: walletID,
	}
}

func (f *fixture) submit(t *testing.T, amountMinor int64) (*entities.WithdrawalOutcome, error) {
	t.Helper()
	return f.service.SubmitWithdrawal(context.Background(), &entities.SubmitWithdrawalRequest{
		UserID:         f.userID,
		PayoutMethodID: f.methodID,
		AmountMinor:    amountMinor,
	})
}

// --- submission path ---

func TestSubmitWithdrawalBelowMinimum(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)

	_, err := f.submit(t, 999)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, f.requests.count(), "no request row for rejected submissions")
	assert.Equal(t, int64(100000), f.wallets.balance())
}

func TestSubmitWithdrawalUnknownMethod(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)

	_, err := f.service.SubmitWithdrawal(context.Background(), &entities.SubmitWithdrawalRequest{
		UserID:         f.userID,
		PayoutMethodID: uuid.New(),
		AmountMinor:    5000,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSubmitWithdrawalMethodOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)

	_, err := f.service.SubmitWithdrawal(context.Background(), &entities.SubmitWithdrawalRequest{
		UserID:         uuid.New(),
		PayoutMethodID: f.methodID,
		AmountMinor:    5000,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSubmitWithdrawalInvalidRecipient(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)
	f.provider.validID = false

	_, err := f.submit(t, 5000)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, f.provider.calls)
}

func TestSubmitWithdrawalInsufficientFunds(t *testing.T) {
	f := newFixture(t, 4000, payout.MethodPayPal)

	_, err := f.submit(t, 5000)

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInsufficientFunds))
	assert.Equal(t, 0, f.requests.count())
	assert.Equal(t, int64(4000), f.wallets.balance())
}

func TestSubmitWithdrawalConcurrentDrainsBalanceOnce(t *testing.T) {
	f := newFixture(t, 8000, payout.MethodPayPal)
	f.service.txRunner = serialTxRunner{mu: &sync.Mutex{}, inner: f.service.txRunner}

	var wg sync.WaitGroup
	outcomes := make([]*entities.WithdrawalOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.submit(t, 5000)
		}(i)
	}
	wg.Wait()

	var approved, insufficient int
	for i := range errs {
		switch {
		case errs[i] == nil:
			require.Equal(t, entities.OutcomeApproved, outcomes[i].Status)
			approved++
		case apperrors.IsKind(errs[i], apperrors.KindInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected submit error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, approved, "exactly one concurrent submit wins")
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(3000), f.wallets.balance(), "balance debited exactly once")
	assert.Len(t, f.ledger.all(), 1)
	assert.Equal(t, 1, f.requests.count(), "losing submit leaves no request row")
}

func TestSubmitWithdrawalAutoApproveSuccess(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)

	outcome, err := f.submit(t, 5000)

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeApproved, outcome.Status)
	assert.Equal(t, "gw_1", outcome.GatewayTransactionID)
	assert.Equal(t, int64(95000), f.wallets.balance())

	stored := f.requests.get(outcome.RequestID)
	require.NotNil(t, stored)
	assert.Equal(t, entities.WithdrawalStatusApproved, stored.Status)
	assert.False(t, stored.ReviewRequired)
	assert.Equal(t, int64(100000), stored.BalanceSnapshotMinor)

	entries := f.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-5000), entries[0].AmountMinor)
	assert.Equal(t, int64(95000), entries[0].BalanceAfterMinor)
	assert.Equal(t, entities.LedgerStatusCompleted, entries[0].Status)
}

func TestSubmitWithdrawalProviderFailureCompensates(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)
	f.provider.err = payout.NewPermanent("paypal", "RECEIVER_UNREGISTERED", "receiver not registered", nil)

	outcome, err := f.submit(t, 5000)

	require.NoError(t, err, "a payout failure is an outcome, not an error")
	assert.Equal(t, entities.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "RECEIVER_UNREGISTERED")
	assert.Equal(t, int64(100000), f.wallets.balance(), "debit must be compensated")
	assert.Equal(t, 1, f.provider.calls, "permanent failures are not retried")

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusFailed, stored.Status)
	assert.False(t, stored.NeedsReconciliation)

	entries := f.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].AmountMinor, "net movement is zero after compensation")
	assert.Equal(t, int64(100000), entries[0].BalanceAfterMinor)
	assert.Equal(t, entities.LedgerStatusFailed, entries[0].Status)
}

func TestSubmitWithdrawalTransientFailureRetries(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)
	f.provider.err = payout.NewTransient("paypal", "timeout", "gateway timeout", nil)

	outcome, err := f.submit(t, 5000)

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeFailed, outcome.Status)
	assert.Equal(t, 3, f.provider.calls, "transient failures retry to exhaustion")
	assert.Equal(t, int64(100000), f.wallets.balance())
}

func TestSubmitWithdrawalPartialFailureKeepsDebit(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodCard)
	perr := payout.NewPartial("card", "payout_failed", "card payout leg failed", nil)
	perr.Reference = "tr_42"
	f.provider.err = perr

	outcome, err := f.submit(t, 5000)

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeFailed, outcome.Status)
	assert.Equal(t, int64(95000), f.wallets.balance(), "partial failures must not be compensated")
	assert.Equal(t, 1, f.provider.calls)

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusFailed, stored.Status)
	assert.True(t, stored.NeedsReconciliation)
	require.NotNil(t, stored.GatewayTransactionID)
	assert.Equal(t, "tr_42", *stored.GatewayTransactionID)

	entries := f.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-5000), entries[0].AmountMinor)
	assert.Equal(t, entities.LedgerStatusFailed, entries[0].Status)
}

func TestSubmitWithdrawalUnconfiguredRailFailsWithoutDebitLoss(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)
	// Re-register the rail without credentials. Pre-flight validation is
	// skipped and the configuration error surfaces from the payout path.
	registry := payout.NewRegistry()
	registry.Register(payout.MethodPayPal, f.provider, false)
	f.service.selector = registry

	_, err := f.submit(t, 5000)

	require.Error(t, err)
	assert.True(t, payout.IsConfigError(err))
	assert.Equal(t, int64(100000), f.wallets.balance())
}

// --- ceiling routing ---

func TestSubmitWithdrawalAboveCeilingParksForReview(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)

	outcome, err := f.submit(t, 50001)

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomePendingReview, outcome.Status)
	assert.Equal(t, int64(100000), f.wallets.balance(), "review path must not touch the wallet")
	assert.Equal(t, 0, f.provider.calls)

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusPending, stored.Status)
	assert.True(t, stored.ReviewRequired)
	assert.Empty(t, f.ledger.all())
}

func TestSubmitWithdrawalExactlyAtCeilingAutoApproves(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)

	outcome, err := f.submit(t, 50000)

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeApproved, outcome.Status)
	assert.Equal(t, int64(50000), f.wallets.balance())
}

// --- admin review ---

func TestDecideApproveRunsPayout(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)
	outcome, err := f.submit(t, 60000)
	require.NoError(t, err)
	require.Equal(t, entities.OutcomePendingReview, outcome.Status)

	decided, err := f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: true, Notes: "verified with support"})

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeApproved, decided.Status)
	assert.Equal(t, int64(40000), f.wallets.balance())

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusApproved, stored.Status)
	require.NotNil(t, stored.AdminNotes)
	assert.Equal(t, "verified with support", *stored.AdminNotes)
}

func TestDecideRejectLeavesWalletUntouched(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)
	outcome, err := f.submit(t, 60000)
	require.NoError(t, err)

	decided, err := f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: false, Notes: "source of funds unclear"})

	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeRejected, decided.Status)
	assert.Equal(t, int64(100000), f.wallets.balance())
	assert.Empty(t, f.ledger.all())
	assert.Equal(t, 0, f.provider.calls)

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusRejected, stored.Status)
}

func TestDecideTwiceConflicts(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)
	outcome, err := f.submit(t, 60000)
	require.NoError(t, err)

	_, err = f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: false, Notes: "no"})
	require.NoError(t, err)

	_, err = f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: true, Notes: "yes"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestDecideApproveWithInsufficientFundsKeepsRequestPending(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)
	outcome, err := f.submit(t, 60000)
	require.NoError(t, err)

	// Balance drains between submission and approval.
	f.wallets.wallet.BalanceMinor = 1000

	_, err = f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: true, Notes: "ok"})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInsufficientFunds))
	assert.Equal(t, int64(1000), f.wallets.balance())
	assert.Equal(t, 0, f.provider.calls, "payout must not run without a debit")

	stored := f.requests.get(outcome.RequestID)
	assert.Equal(t, entities.WithdrawalStatusPending, stored.Status,
		"request stays parked for re-review after a top-up")
	assert.Empty(t, f.ledger.all(), "no ledger movement when the debit never happened")

	// Once the balance recovers, the same request can be approved.
	f.wallets.wallet.BalanceMinor = 100000
	decided, err := f.service.Decide(context.Background(), outcome.RequestID,
		&entities.AdminDecision{Approve: true, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, entities.OutcomeApproved, decided.Status)
	assert.Equal(t, int64(40000), f.wallets.balance())
}

func TestDecideUnknownRequest(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodSkrill)

	_, err := f.service.Decide(context.Background(), uuid.New(),
		&entities.AdminDecision{Approve: true})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

// --- reads ---

func TestGetWithdrawalScopedToOwner(t *testing.T) {
	f := newFixture(t, 100000, payout.MethodPayPal)
	outcome, err := f.submit(t, 5000)
	require.NoError(t, err)

	got, err := f.service.GetWithdrawal(context.Background(), outcome.RequestID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, outcome.RequestID, got.ID)

	_, err = f.service.GetWithdrawal(context.Background(), outcome.RequestID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "foreign withdrawals read as not found")
}
