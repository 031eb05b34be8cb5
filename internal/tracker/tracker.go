// Package tracker отслеживает активные заказы на активацию номеров.
//
// На пользователя допускается не более одного незавершённого заказа.
// Проверка и резервирование слота выполняются одним атомарным шагом,
// поэтому два параллельных запроса покупки от одного пользователя не могут
// пройти проверку одновременно. Заказы живут только в памяти: потеря
// незавершённых заказов при перезапуске процесса допустима.
package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/mkoshel/numrent-system/internal/model"
)

var (
	// ErrOrderAlreadyActive возвращается, если у пользователя уже есть незавершённый заказ.
	ErrOrderAlreadyActive = errors.New("order already active")
	// ErrNoActiveOrder возвращается, если у пользователя нет активного заказа.
	ErrNoActiveOrder = errors.New("no active order")
)

type entry struct {
	order     model.ActiveOrder
	cancelled chan struct{}

	// completing выставляется победившим терминальным переходом на время
	// проводки по балансу. Проигравшие видят флаг и уходят ни с чем, не
	// дожидаясь чужой проводки.
	completing bool
}

// Handle — дескриптор зарезервированного слота заказа. Выдаётся TryBegin
// и передаётся в Commit либо Abort.
type Handle struct {
	owner     int64
	cancelled chan struct{}
}

// Cancelled возвращает канал, закрываемый при завершении заказа любым
// терминальным переходом. Монитор заказа слушает его между опросами.
func (h *Handle) Cancelled() <-chan struct{} {
	return h.cancelled
}

// Tracker хранит активные заказы пользователей.
type Tracker struct {
	mu     sync.Mutex
	orders map[int64]*entry
}

// NewTracker создаёт пустой реестр активных заказов.
func NewTracker() *Tracker {
	return &Tracker{
		orders: make(map[int64]*entry),
	}
}

// TryBegin атомарно резервирует слот заказа для пользователя.
// Если у пользователя уже есть незавершённый заказ (включая ещё не
// подтверждённую покупку), возвращает ErrOrderAlreadyActive.
func (t *Tracker) TryBegin(owner int64) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[owner]; ok {
		return nil, ErrOrderAlreadyActive
	}

	cancelled := make(chan struct{})
	t.orders[owner] = &entry{
		order: model.ActiveOrder{
			Owner:     owner,
			State:     model.OrderStateRequesting,
			StartedAt: time.Now(),
		},
		cancelled: cancelled,
	}

	return &Handle{owner: owner, cancelled: cancelled}, nil
}

// Commit подтверждает покупку: заполняет данные провайдера и переводит заказ
// в ожидание SMS. Возвращает копию заказа.
func (t *Tracker) Commit(h *Handle, providerOrderID, phoneNumber, country string) (model.ActiveOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.orders[h.owner]
	if !ok || e.cancelled != h.cancelled {
		return model.ActiveOrder{}, ErrNoActiveOrder
	}

	e.order.ProviderOrderID = providerOrderID
	e.order.PhoneNumber = phoneNumber
	e.order.Country = country
	e.order.State = model.OrderStateAwaitingSms

	return e.order, nil
}

// Abort освобождает слот, если покупка у провайдера не удалась.
func (t *Tracker) Abort(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.orders[h.owner]
	if !ok || e.cancelled != h.cancelled {
		return
	}

	delete(t.orders, h.owner)
	close(e.cancelled)
}

// Lookup возвращает текущий заказ пользователя. Слот ещё не подтверждённой
// покупки снаружи не виден.
func (t *Tracker) Lookup(owner int64) (model.ActiveOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.orders[owner]
	if !ok || e.order.State == model.OrderStateRequesting {
		return model.ActiveOrder{}, ErrNoActiveOrder
	}

	return e.order, nil
}

// Complete убирает заказ из реестра по терминальному переходу.
// Идемпотентна: повторное завершение или завершение чужого (уже заменённого)
// заказа — no-op. providerOrderID защищает от гонки, когда пользователь
// успел завершить старый заказ и начать новый.
func (t *Tracker) Complete(owner int64, providerOrderID string, state model.OrderState) bool {
	done, _ := t.CompleteWith(owner, providerOrderID, state, nil)
	return done
}

// CompleteWith завершает заказ, выполняя settle строго до удаления заказа
// из реестра. Право на проводку разыгрывается атомарно флагом completing,
// поэтому из конкурирующих терминальных переходов ровно один выполняет
// итоговую проводку по балансу (возврат или плату за приём). Сама проводка
// идёт уже без блокировки реестра: медленная запись в хранилище не
// останавливает операции с заказами других пользователей. Ошибка settle
// отменяет завершение: заказ остаётся в реестре.
func (t *Tracker) CompleteWith(owner int64, providerOrderID string, state model.OrderState, settle func(model.ActiveOrder) error) (bool, error) {
	if !state.Terminal() {
		return false, nil
	}

	t.mu.Lock()
	e, ok := t.orders[owner]
	if !ok || e.order.ProviderOrderID != providerOrderID || e.completing {
		t.mu.Unlock()
		return false, nil
	}
	e.completing = true
	order := e.order
	t.mu.Unlock()

	if settle != nil {
		if err := settle(order); err != nil {
			t.mu.Lock()
			e.completing = false
			t.mu.Unlock()
			return false, err
		}
	}

	t.mu.Lock()
	delete(t.orders, owner)
	close(e.cancelled)
	t.mu.Unlock()

	return true, nil
}

// Active возвращает число незавершённых заказов.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.orders)
}
