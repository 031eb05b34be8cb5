// Файл содержит монитор активного заказа: по одной горутине на заказ.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/ledger"
	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/provider"
)

// monitorOrder опрашивает провайдера до получения SMS, отмены заказа или
// истечения жёсткого дедлайна, отсчитанного от создания заказа.
//
// Отмена кооперативная: монитор не убивается снаружи, а узнаёт о завершении
// заказа по каналу cancelled в пределах одного интервала опроса и выходит
// без побочных эффектов — проводку отмены уже выполнил отменивший.
func (s *Service) monitorOrder(order model.ActiveOrder, cancelled <-chan struct{}) {
	deadline := time.NewTimer(s.orderDeadline - time.Since(order.StartedAt))
	defer deadline.Stop()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.monitorCtx.Done():
			return
		case <-cancelled:
			return
		case <-deadline.C:
			s.finishTimedOut(order)
			return
		case <-ticker.C:
			if s.pollOnce(order) {
				return
			}
		}
	}
}

// pollOnce выполняет одну итерацию опроса. Возвращает true, когда заказ
// завершён и монитор должен остановиться.
func (s *Service) pollOnce(order model.ActiveOrder) bool {
	messages, err := s.provider.FetchMessages(s.monitorCtx, order.ProviderOrderID)
	if err != nil {
		// Разовый сбой провайдера не завершает заказ: следующая итерация
		// цикла и есть повторная попытка.
		s.logger.Warn("fetch messages failed",
			zap.String("order", order.ProviderOrderID),
			zap.Error(err),
		)
		return false
	}

	if len(messages) > 0 {
		return s.finishDelivered(order, messages)
	}

	status, err := s.provider.CheckStatus(s.monitorCtx, order.ProviderOrderID)
	if err != nil {
		return false
	}
	if status == provider.StatusCanceled || status == provider.StatusBanned {
		s.finishDroppedByProvider(order)
		return true
	}

	return false
}

// finishDelivered завершает заказ доставкой: списывает плату за приём,
// убирает заказ и отправляет пользователю полученные сообщения.
//
// Плата списывается один раз за заказ. Нехватка кредитов на плату не
// отменяет доставку: сообщение отдаётся, но вместо нового баланса
// пользователю уходит пометка о его недоступности.
func (s *Service) finishDelivered(order model.ActiveOrder, messages []model.SMS) bool {
	var balance int64
	feeCharged := false

	done, err := s.tracker.CompleteWith(order.Owner, order.ProviderOrderID, model.OrderStateDelivered,
		func(model.ActiveOrder) error {
			b, debitErr := s.ledger.Debit(context.Background(), order.Owner, s.orderCost)
			if debitErr == nil {
				balance = b
				feeCharged = true
			} else if !errors.Is(debitErr, ledger.ErrInsufficientCredit) {
				s.logger.Error("reception fee debit failed",
					zap.Int64("user", order.Owner),
					zap.Error(debitErr),
				)
			}
			return nil
		})
	if err != nil || !done {
		// Заказ уже завершён другим терминальным переходом.
		return true
	}

	for _, sms := range messages {
		s.notifier.Notify(order.Owner, "Received Code: "+sms.Text)
	}
	if feeCharged {
		s.notifier.Notify(order.Owner, fmt.Sprintf("You have been charged %d credits for receiving SMS. Balance: %d credits", s.orderCost, balance))
	} else {
		s.notifier.Notify(order.Owner, "Balance is unavailable: not enough credits for the reception fee.")
	}

	return true
}

// finishTimedOut завершает заказ по дедлайну: возвращает резерв и убирает заказ.
func (s *Service) finishTimedOut(order model.ActiveOrder) {
	var balance int64

	done, err := s.tracker.CompleteWith(order.Owner, order.ProviderOrderID, model.OrderStateTimedOut,
		func(model.ActiveOrder) error {
			var creditErr error
			balance, creditErr = s.ledger.Credit(context.Background(), order.Owner, s.orderCost)
			return creditErr
		})
	if err != nil {
		s.logger.Error("timeout refund failed",
			zap.Int64("user", order.Owner),
			zap.String("order", order.ProviderOrderID),
			zap.Error(err),
		)
		return
	}
	if !done {
		return
	}

	s.notifier.Notify(order.Owner, fmt.Sprintf("Activation timed out. Your credits have been refunded. Balance: %d credits", balance))
}

// finishDroppedByProvider завершает заказ, отменённый на стороне провайдера,
// с возвратом резерва.
func (s *Service) finishDroppedByProvider(order model.ActiveOrder) {
	var balance int64

	done, err := s.tracker.CompleteWith(order.Owner, order.ProviderOrderID, model.OrderStateCancelled,
		func(model.ActiveOrder) error {
			var creditErr error
			balance, creditErr = s.ledger.Credit(context.Background(), order.Owner, s.orderCost)
			return creditErr
		})
	if err != nil {
		s.logger.Error("provider-side cancel refund failed",
			zap.Int64("user", order.Owner),
			zap.String("order", order.ProviderOrderID),
			zap.Error(err),
		)
		return
	}
	if !done {
		return
	}

	s.notifier.Notify(order.Owner, fmt.Sprintf("Activation was cancelled by the provider. Your credits have been refunded. Balance: %d credits", balance))
}
