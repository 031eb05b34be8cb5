// Package redeem реализует одноразовые коды пополнения баланса.
//
// Реестр невыданных кодов живёт только в памяти процесса: долговременное
// хранение кодов при перезапуске не требуется.
package redeem

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInvalidCode возвращается при попытке активировать отсутствующий
	// или уже использованный код.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrInvalidCredits возвращается при неположительном номинале кода.
	ErrInvalidCredits = errors.New("credits must be positive")
)

const codeDigits = 8

var codeSpace = big.NewInt(100_000_000)

// CreditLedger описывает операцию начисления кредитов, используемую при
// активации кода.
type CreditLedger interface {
	Credit(ctx context.Context, id int64, amount int64) (int64, error)
}

// Service выпускает и активирует одноразовые коды пополнения.
type Service struct {
	mu    sync.Mutex
	codes map[string]int64

	ledger CreditLedger
}

// NewService создаёт сервис кодов пополнения поверх указанного реестра балансов.
func NewService(ledger CreditLedger) *Service {
	return &Service{
		codes:  make(map[string]int64),
		ledger: ledger,
	}
}

// Generate выпускает новый 8-значный цифровой код указанного номинала.
// Код уникален среди ещё не активированных кодов: при коллизии генерация
// повторяется до получения свободного кода.
func (s *Service) Generate(credits int64) (string, error) {
	if credits <= 0 {
		return "", ErrInvalidCredits
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; taken {
			continue
		}
		s.codes[code] = credits
		return code, nil
	}
}

// Redeem активирует код: атомарно убирает его из реестра и начисляет
// кредиты владельцу. Повторная активация того же кода, в том числе из
// параллельных запросов, вернёт ErrInvalidCode.
func (s *Service) Redeem(ctx context.Context, owner int64, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credits, ok := s.codes[code]
	if !ok {
		return 0, ErrInvalidCode
	}
	delete(s.codes, code)

	balance, err := s.ledger.Credit(ctx, owner, credits)
	if err != nil {
		// Начисление не прошло — код остаётся действительным.
		s.codes[code] = credits
		return 0, err
	}

	return balance, nil
}

// Outstanding возвращает число ещё не активированных кодов.
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.codes)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
