// Package ledger реализует кредитный баланс пользователей.
//
// Авторитетное состояние держится в памяти; каждая успешная мутация сквозным
// образом записывается в долговременное хранилище до возврата из операции,
// а периодический снимок всех учётных записей подстраховывает от пропущенных
// сквозных записей. Все записи в хранилище идут через один писательский
// замок, поэтому снимок не может затереть более свежую сквозную запись.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/repository"
)

var (
	// ErrUnknownAccount возвращается при операции над несуществующей учётной записью.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrInsufficientCredit возвращается, если на балансе недостаточно кредитов для списания.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrInvalidAmount возвращается при неположительной сумме операции.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Ledger ведёт кредитные балансы пользователей.
// Все операции атомарны относительно баланса: проверка достаточности средств
// и само списание выполняются под одной блокировкой.
type Ledger struct {
	mu       sync.Mutex
	accounts map[int64]*model.UserAccount

	// storeMu сериализует все записи в хранилище: сквозные записи мутаций
	// и периодический снимок. Пока снимок пишется, ни одна мутация не может
	// зафиксировать более свежую сквозную запись, которую снимок затёр бы.
	// Порядок взятия строго storeMu -> mu.
	storeMu sync.Mutex

	store            repository.AccountStore
	logger           *zap.Logger
	snapshotInterval time.Duration
}

// NewLedger создаёт реестр балансов и загружает учётные записи из хранилища.
func NewLedger(ctx context.Context, store repository.AccountStore, logger *zap.Logger, snapshotInterval time.Duration) (*Ledger, error) {
	accounts, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	m := make(map[int64]*model.UserAccount, len(accounts))
	for _, a := range accounts {
		acc := a
		m[a.ID] = &acc
	}

	return &Ledger{
		accounts:         m,
		store:            store,
		logger:           logger,
		snapshotInterval: snapshotInterval,
	}, nil
}

// Create заводит учётную запись с нулевым балансом, если её ещё нет.
// Повторный вызов для существующей записи — no-op. Возвращает признак того,
// что запись была создана.
func (l *Ledger) Create(ctx context.Context, id int64, name string) (bool, error) {
	l.storeMu.Lock()
	defer l.storeMu.Unlock()

	l.mu.Lock()
	if _, ok := l.accounts[id]; ok {
		l.mu.Unlock()
		return false, nil
	}
	acc := &model.UserAccount{ID: id, Name: name}
	l.accounts[id] = acc
	saved := *acc
	l.mu.Unlock()

	l.persist(ctx, saved)

	return true, nil
}

// Credit увеличивает баланс учётной записи и возвращает новый баланс.
func (l *Ledger) Credit(ctx context.Context, id int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	l.storeMu.Lock()
	defer l.storeMu.Unlock()

	l.mu.Lock()
	acc, ok := l.accounts[id]
	if !ok {
		l.mu.Unlock()
		return 0, ErrUnknownAccount
	}
	acc.Balance += amount
	saved := *acc
	l.mu.Unlock()

	l.persist(ctx, saved)

	return saved.Balance, nil
}

// Debit списывает кредиты с баланса и возвращает новый баланс.
// Списание выполняется только если средств достаточно; иначе баланс не
// меняется и возвращается ErrInsufficientCredit.
func (l *Ledger) Debit(ctx context.Context, id int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	l.storeMu.Lock()
	defer l.storeMu.Unlock()

	l.mu.Lock()
	acc, ok := l.accounts[id]
	if !ok {
		l.mu.Unlock()
		return 0, ErrUnknownAccount
	}
	if acc.Balance < amount {
		l.mu.Unlock()
		return 0, ErrInsufficientCredit
	}
	acc.Balance -= amount
	saved := *acc
	l.mu.Unlock()

	l.persist(ctx, saved)

	return saved.Balance, nil
}

// BalanceOf возвращает текущий баланс учётной записи.
func (l *Ledger) BalanceOf(id int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return 0, ErrUnknownAccount
	}

	return acc.Balance, nil
}

// Account возвращает копию учётной записи.
func (l *Ledger) Account(id int64) (model.UserAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return model.UserAccount{}, ErrUnknownAccount
	}

	return *acc, nil
}

// Accounts возвращает копию всех учётных записей на текущий момент.
func (l *Ledger) Accounts() []model.UserAccount {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshotLocked()
}

// persist выполняет сквозную запись под storeMu, чтобы записи в хранилище
// шли в порядке мутаций. Ошибка записи не откатывает мутацию: её закроет
// ближайший периодический снимок.
func (l *Ledger) persist(ctx context.Context, acc model.UserAccount) {
	if err := l.store.Save(ctx, acc); err != nil {
		l.logger.Error("account write-through failed",
			zap.Int64("account", acc.ID),
			zap.Error(err),
		)
	}
}

func (l *Ledger) snapshotLocked() []model.UserAccount {
	accounts := make([]model.UserAccount, 0, len(l.accounts))
	for _, acc := range l.accounts {
		accounts = append(accounts, *acc)
	}
	return accounts
}

// RunSnapshots периодически сбрасывает в хранилище согласованный снимок всех
// учётных записей. storeMu удерживается от копирования снимка до завершения
// записи: мутация, пришедшая во время записи, дождётся её и зафиксирует свою
// сквозную запись строго после снимка. Блокируется до отмены контекста.
func (l *Ledger) RunSnapshots(ctx context.Context) error {
	ticker := time.NewTicker(l.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.storeMu.Lock()
			l.mu.Lock()
			accounts := l.snapshotLocked()
			l.mu.Unlock()

			err := l.store.SaveAll(ctx, accounts)
			l.storeMu.Unlock()

			if err != nil && ctx.Err() == nil {
				l.logger.Error("account snapshot failed", zap.Error(err))
			}
		}
	}
}
