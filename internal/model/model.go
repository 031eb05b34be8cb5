// Package model содержит доменные сущности сервиса аренды номеров.
package model

import "time"

// UserAccount представляет учётную запись пользователя с кредитным балансом.
type UserAccount struct {
	ID      int64
	Name    string
	Balance int64
}

// OrderState описывает состояние заказа на активацию номера.
type OrderState string

const (
	// OrderStateRequesting — слот занят, покупка у провайдера ещё выполняется.
	// Снаружи это состояние не наблюдается: Lookup его не возвращает.
	OrderStateRequesting OrderState = "REQUESTING"
	// OrderStateAwaitingSms — номер куплен, ожидается SMS.
	OrderStateAwaitingSms OrderState = "AWAITING_SMS"
	// OrderStateDelivered — SMS получена, заказ завершён.
	OrderStateDelivered OrderState = "DELIVERED"
	// OrderStateCancelled — заказ отменён пользователем до получения SMS.
	OrderStateCancelled OrderState = "CANCELLED"
	// OrderStateTimedOut — SMS не пришла до дедлайна.
	OrderStateTimedOut OrderState = "TIMED_OUT"
)

// Terminal сообщает, является ли состояние заказа конечным.
func (s OrderState) Terminal() bool {
	return s == OrderStateDelivered || s == OrderStateCancelled || s == OrderStateTimedOut
}

// ActiveOrder описывает текущий заказ пользователя на активацию номера.
// У одного пользователя в любой момент не более одного заказа.
type ActiveOrder struct {
	Owner           int64
	ProviderOrderID string
	PhoneNumber     string
	Country         string
	State           OrderState
	StartedAt       time.Time
}

// RedeemCode описывает одноразовый код пополнения баланса.
type RedeemCode struct {
	Code    string `json:"code"`
	Credits int64  `json:"credits"`
}

// SMS описывает сообщение, полученное на арендованный номер.
type SMS struct {
	Sender string
	Text   string
}

// Balance содержит баланс пользователя для ответа API.
type Balance struct {
	Current int64 `json:"current"`
}
