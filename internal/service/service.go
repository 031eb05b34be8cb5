// Package service реализует бизнес-логику сервиса аренды номеров.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/ledger"
	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/notify"
	"github.com/mkoshel/numrent-system/internal/provider"
	"github.com/mkoshel/numrent-system/internal/redeem"
	"github.com/mkoshel/numrent-system/internal/tracker"
)

// ErrProviderUnavailable возвращается при любом сбое провайдера, кроме
// отсутствия свободных номеров. Детали сбоя остаются в логе, пользователю
// уходит общий ответ.
var ErrProviderUnavailable = errors.New("provider temporarily unavailable")

// Provider описывает контракт клиента внешнего сервиса аренды номеров.
type Provider interface {
	Purchase(ctx context.Context, country, operator, service string) (provider.PurchasedNumber, error)
	CheckStatus(ctx context.Context, orderID string) (string, error)
	FetchMessages(ctx context.Context, orderID string) ([]model.SMS, error)
	Cancel(ctx context.Context, orderID string) error
}

// Options содержит тарифы, тайминги и параметры покупки по умолчанию.
type Options struct {
	// OrderCost — цена резервирования номера. Та же сумма списывается как
	// плата за принятую SMS и возвращается при отмене или таймауте.
	OrderCost     int64
	PollInterval  time.Duration
	OrderDeadline time.Duration

	Country  string
	Operator string
	Service  string
}

// Service содержит бизнес-логику сервиса аренды номеров.
type Service struct {
	ledger   *ledger.Ledger
	tracker  *tracker.Tracker
	provider Provider
	redeemer *redeem.Service
	notifier notify.Notifier
	logger   *zap.Logger

	orderCost     int64
	pollInterval  time.Duration
	orderDeadline time.Duration

	purchaseMu sync.Mutex
	country    string
	operator   string
	service    string

	// monitorCtx живёт от создания сервиса до Close: мониторы заказов
	// не должны умирать вместе с контекстом породившего их HTTP-запроса.
	monitorCtx   context.Context
	stopMonitors context.CancelFunc
	monitors     sync.WaitGroup
}

// NewService создаёт сервис аренды номеров.
func NewService(l *ledger.Ledger, t *tracker.Tracker, p Provider, r *redeem.Service, n notify.Notifier, logger *zap.Logger, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		ledger:        l,
		tracker:       t,
		provider:      p,
		redeemer:      r,
		notifier:      n,
		logger:        logger,
		orderCost:     opts.OrderCost,
		pollInterval:  opts.PollInterval,
		orderDeadline: opts.OrderDeadline,
		country:       opts.Country,
		operator:      opts.Operator,
		service:       opts.Service,
		monitorCtx:    ctx,
		stopMonitors:  cancel,
	}
}

// Close останавливает мониторы заказов и дожидается их завершения.
func (s *Service) Close() error {
	s.stopMonitors()
	s.monitors.Wait()
	return nil
}

// Register заводит учётную запись пользователя. Повторная регистрация
// существующей записи — no-op с сохранением баланса.
func (s *Service) Register(ctx context.Context, userID int64, name string) (bool, error) {
	return s.ledger.Create(ctx, userID, name)
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(userID int64) (*model.Balance, error) {
	current, err := s.ledger.BalanceOf(userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current}, nil
}

// Profile возвращает учётную запись пользователя.
func (s *Service) Profile(userID int64) (model.UserAccount, error) {
	return s.ledger.Account(userID)
}

// CurrentOrder возвращает активный заказ пользователя.
func (s *Service) CurrentOrder(userID int64) (model.ActiveOrder, error) {
	return s.tracker.Lookup(userID)
}

// AcquireNumber покупает номер для пользователя и запускает монитор заказа.
//
// Порядок фиксирован: слот заказа резервируется до списания, списание
// резерва выполняется до обращения к провайдеру, монитор стартует только
// после подтверждения покупки. Любой сбой по пути возвращает списанный
// резерв и освобождает слот.
func (s *Service) AcquireNumber(ctx context.Context, userID int64) (model.ActiveOrder, error) {
	handle, err := s.tracker.TryBegin(userID)
	if err != nil {
		return model.ActiveOrder{}, err
	}

	if _, err := s.ledger.Debit(ctx, userID, s.orderCost); err != nil {
		s.tracker.Abort(handle)
		return model.ActiveOrder{}, err
	}

	country, operator, service := s.purchaseTarget()

	purchased, err := s.provider.Purchase(ctx, country, operator, service)
	if err != nil {
		s.refund(userID, "purchase failed")
		s.tracker.Abort(handle)

		if errors.Is(err, provider.ErrNoStock) {
			return model.ActiveOrder{}, provider.ErrNoStock
		}
		s.logger.Error("number purchase failed", zap.Int64("user", userID), zap.Error(err))
		return model.ActiveOrder{}, ErrProviderUnavailable
	}

	order, err := s.tracker.Commit(handle, purchased.OrderID, purchased.PhoneNumber, purchased.Country)
	if err != nil {
		// Слот исчез между резервированием и подтверждением — такого пути
		// в жизненном цикле нет, но заказ у провайдера отзываем.
		s.logger.Error("order slot lost before commit", zap.Int64("user", userID), zap.Error(err))
		if cancelErr := s.provider.Cancel(ctx, purchased.OrderID); cancelErr != nil {
			s.logger.Error("orphan order cancel failed", zap.String("order", purchased.OrderID), zap.Error(cancelErr))
		}
		s.refund(userID, "commit failed")
		return model.ActiveOrder{}, ErrProviderUnavailable
	}

	s.monitors.Add(1)
	go func() {
		defer s.monitors.Done()
		s.monitorOrder(order, handle.Cancelled())
	}()

	return order, nil
}

// CancelActivation отменяет активный заказ пользователя: отмена у
// провайдера, возврат резерва, удаление заказа. При сбое провайдера заказ
// остаётся активным и баланс не меняется.
func (s *Service) CancelActivation(ctx context.Context, userID int64) error {
	order, err := s.tracker.Lookup(userID)
	if err != nil {
		return err
	}

	if err := s.provider.Cancel(ctx, order.ProviderOrderID); err != nil {
		s.logger.Error("provider cancel failed",
			zap.Int64("user", userID),
			zap.String("order", order.ProviderOrderID),
			zap.Error(err),
		)
		return ErrProviderUnavailable
	}

	var balance int64
	done, err := s.tracker.CompleteWith(userID, order.ProviderOrderID, model.OrderStateCancelled,
		func(model.ActiveOrder) error {
			var creditErr error
			balance, creditErr = s.ledger.Credit(ctx, userID, s.orderCost)
			return creditErr
		})
	if err != nil {
		return err
	}
	if !done {
		// Монитор успел завершить заказ первым; его проводка уже применена.
		return tracker.ErrNoActiveOrder
	}

	s.notifier.Notify(userID, fmt.Sprintf("Activation cancelled. Your credits have been refunded. Balance: %d credits", balance))

	return nil
}

// GenerateCode выпускает одноразовый код пополнения указанного номинала.
func (s *Service) GenerateCode(credits int64) (string, error) {
	return s.redeemer.Generate(credits)
}

// RedeemCode активирует код пополнения для пользователя.
func (s *Service) RedeemCode(ctx context.Context, userID int64, code string) (int64, error) {
	balance, err := s.redeemer.Redeem(ctx, userID, code)
	if err != nil {
		return 0, err
	}

	s.notifier.Notify(userID, fmt.Sprintf("Code redeemed. Balance: %d credits", balance))

	return balance, nil
}

// RemoveCredits списывает кредиты пользователя администратором.
func (s *Service) RemoveCredits(ctx context.Context, userID int64, amount int64) (int64, error) {
	return s.ledger.Debit(ctx, userID, amount)
}

// Broadcast отправляет уведомление всем пользователям. Доставка best-effort.
func (s *Service) Broadcast(text string) int {
	accounts := s.ledger.Accounts()
	for _, acc := range accounts {
		s.notifier.Notify(acc.ID, text)
	}
	return len(accounts)
}

// SetPurchaseTarget меняет страну и оператора для последующих покупок.
// Пустые значения оставляют текущие.
func (s *Service) SetPurchaseTarget(country, operator string) {
	s.purchaseMu.Lock()
	defer s.purchaseMu.Unlock()

	if country != "" {
		s.country = country
	}
	if operator != "" {
		s.operator = operator
	}
}

func (s *Service) purchaseTarget() (country, operator, service string) {
	s.purchaseMu.Lock()
	defer s.purchaseMu.Unlock()

	return s.country, s.operator, s.service
}

// refund возвращает резерв после неудавшейся покупки.
func (s *Service) refund(userID int64, reason string) {
	if _, err := s.ledger.Credit(context.Background(), userID, s.orderCost); err != nil {
		s.logger.Error("reservation refund failed",
			zap.Int64("user", userID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
