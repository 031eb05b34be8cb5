package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/repository"
)

// memStore — хранилище в памяти для тестов: запоминает сквозные записи и снимки.
type memStore struct {
	mu        sync.Mutex
	accounts  map[int64]model.UserAccount
	saves     int
	snapshots int
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]model.UserAccount)}
}

func (s *memStore) LoadAll(ctx context.Context) ([]model.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []model.UserAccount
	for _, a := range s.accounts {
		res = append(res, a)
	}
	return res, nil
}

func (s *memStore) Save(ctx context.Context, account model.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.accounts[account.ID] = account
	s.saves++
	return nil
}

func (s *memStore) SaveAll(ctx context.Context, accounts []model.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	s.snapshots++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) stored(id int64) (model.UserAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	return a, ok
}

func newTestLedger(t *testing.T, store repository.AccountStore) *Ledger {
	t.Helper()

	l, err := NewLedger(context.Background(), store, zap.NewNop(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLedger error: %v", err)
	}
	return l
}

func TestCreate_Idempotent(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	created, err := l.Create(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !created {
		t.Fatalf("first Create: created = false, want true")
	}

	if _, err := l.Credit(ctx, 1, 50); err != nil {
		t.Fatalf("Credit error: %v", err)
	}

	created, err = l.Create(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("repeated Create error: %v", err)
	}
	if created {
		t.Fatalf("repeated Create: created = true, want false")
	}

	balance, err := l.BalanceOf(1)
	if err != nil {
		t.Fatalf("BalanceOf error: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance after repeated Create = %d, want 50 (no-op)", balance)
	}
}

func TestCreditDebit_Arithmetic(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	if _, err := l.Create(ctx, 1, ""); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// Сценарий: 0 → +50 → -10 (резерв) → +10 (возврат по таймауту) → 50.
	if b, err := l.Credit(ctx, 1, 50); err != nil || b != 50 {
		t.Fatalf("Credit(50) = %d, %v; want 50, nil", b, err)
	}
	if b, err := l.Debit(ctx, 1, 10); err != nil || b != 40 {
		t.Fatalf("Debit(10) = %d, %v; want 40, nil", b, err)
	}
	if b, err := l.Credit(ctx, 1, 10); err != nil || b != 50 {
		t.Fatalf("Credit(10) = %d, %v; want 50, nil", b, err)
	}
}

func TestDebit_Insufficient(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	l.Create(ctx, 1, "")
	l.Credit(ctx, 1, 5)

	_, err := l.Debit(ctx, 1, 10)
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("Debit error = %v, want ErrInsufficientCredit", err)
	}

	balance, _ := l.BalanceOf(1)
	if balance != 5 {
		t.Fatalf("balance after failed debit = %d, want 5 (unchanged)", balance)
	}
}

func TestOperations_UnknownAccount(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	if _, err := l.Credit(ctx, 99, 10); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("Credit error = %v, want ErrUnknownAccount", err)
	}
	if _, err := l.Debit(ctx, 99, 10); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("Debit error = %v, want ErrUnknownAccount", err)
	}
	if _, err := l.BalanceOf(99); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("BalanceOf error = %v, want ErrUnknownAccount", err)
	}
}

func TestOperations_InvalidAmount(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	l.Create(ctx, 1, "")

	if _, err := l.Credit(ctx, 1, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Credit(0) error = %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Debit(ctx, 1, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Debit(-5) error = %v, want ErrInvalidAmount", err)
	}
}

func TestConcurrentMutations_SumExact(t *testing.T) {
	l := newTestLedger(t, newMemStore())
	ctx := context.Background()

	l.Create(ctx, 1, "")
	l.Credit(ctx, 1, 1000)

	// 50 параллельных пополнений по 3 и 50 списаний по 2:
	// итог должен сойтись точно, ни одно списание не уходит в минус.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Credit(ctx, 1, 3)
		}()
		go func() {
			defer wg.Done()
			l.Debit(ctx, 1, 2)
		}()
	}
	wg.Wait()

	balance, err := l.BalanceOf(1)
	if err != nil {
		t.Fatalf("BalanceOf error: %v", err)
	}
	if balance != 1000+50*3-50*2 {
		t.Fatalf("balance = %d, want %d", balance, 1000+50*3-50*2)
	}
}

func TestWriteThrough_PersistsBeforeReturn(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(t, store)
	ctx := context.Background()

	l.Create(ctx, 7, "bob")
	l.Credit(ctx, 7, 25)

	stored, ok := store.stored(7)
	if !ok {
		t.Fatalf("account not written through")
	}
	if stored.Balance != 25 || stored.Name != "bob" {
		t.Fatalf("stored account = %+v, want balance 25, name bob", stored)
	}
}

func TestWriteThrough_FailureDoesNotRollBack(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(t, store)
	ctx := context.Background()

	l.Create(ctx, 1, "")
	store.saveErr = errors.New("disk full")

	if _, err := l.Credit(ctx, 1, 10); err != nil {
		t.Fatalf("Credit error: %v; write-through failure must not fail the mutation", err)
	}

	balance, _ := l.BalanceOf(1)
	if balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}

func TestNewLedger_LoadsExistingAccounts(t *testing.T) {
	store := newMemStore()
	store.accounts[3] = model.UserAccount{ID: 3, Name: "carol", Balance: 77}

	l := newTestLedger(t, store)

	balance, err := l.BalanceOf(3)
	if err != nil {
		t.Fatalf("BalanceOf error: %v", err)
	}
	if balance != 77 {
		t.Fatalf("loaded balance = %d, want 77", balance)
	}
}

func TestRunSnapshots_WritesConsistentCopy(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Create(ctx, 1, "")
	l.Credit(ctx, 1, 42)

	done := make(chan struct{})
	go func() {
		l.RunSnapshots(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := store.snapshots
		store.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no snapshot written")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	stored, ok := store.stored(1)
	if !ok || stored.Balance != 42 {
		t.Fatalf("snapshot content = %+v, %v; want balance 42", stored, ok)
	}
}

// gatedStore задерживает запись снимка, чтобы тест мог вклинить мутацию,
// пока снимок ещё в полёте.
type gatedStore struct {
	*memStore
	entered  chan struct{}
	released chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}, 16),
		released: make(chan struct{}),
	}
}

func (s *gatedStore) SaveAll(ctx context.Context, accounts []model.UserAccount) error {
	s.entered <- struct{}{}
	<-s.released
	return s.memStore.SaveAll(ctx, accounts)
}

func TestSnapshot_DoesNotClobberConcurrentWriteThrough(t *testing.T) {
	store := newGatedStore()
	l := newTestLedger(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Create(ctx, 1, "")
	l.Credit(ctx, 1, 100)

	done := make(chan struct{})
	go func() {
		l.RunSnapshots(ctx)
		close(done)
	}()

	// Снимок скопировал баланс 100 и завис в записи.
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("snapshot did not start")
	}

	// Списание во время висящего снимка. Его сквозная запись обязана лечь
	// в хранилище после снимка, а не быть затёртой им.
	debitDone := make(chan struct{})
	go func() {
		if _, err := l.Debit(ctx, 1, 10); err != nil {
			t.Errorf("Debit error: %v", err)
		}
		close(debitDone)
	}()

	close(store.released)

	select {
	case <-debitDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("debit did not complete")
	}

	cancel()
	<-done

	stored, ok := store.stored(1)
	if !ok || stored.Balance != 90 {
		t.Fatalf("durable balance = %d, want 90", stored.Balance)
	}
}
