// Package handler содержит HTTP-обработчики API сервиса аренды номеров.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/ledger"
	"github.com/mkoshel/numrent-system/internal/middleware"
	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/provider"
	"github.com/mkoshel/numrent-system/internal/redeem"
	"github.com/mkoshel/numrent-system/internal/service"
	"github.com/mkoshel/numrent-system/internal/tracker"
	"github.com/mkoshel/numrent-system/internal/validation"
)

// Сообщение пользователю при любом сбое провайдера: детали остаются в логе.
const providerBusyMessage = "service temporarily unavailable, please try again later"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, userID int64, name string) (bool, error)
	GetBalance(userID int64) (*model.Balance, error)
	Profile(userID int64) (model.UserAccount, error)
	CurrentOrder(userID int64) (model.ActiveOrder, error)
	AcquireNumber(ctx context.Context, userID int64) (model.ActiveOrder, error)
	CancelActivation(ctx context.Context, userID int64) error
	GenerateCode(credits int64) (string, error)
	RedeemCode(ctx context.Context, userID int64, code string) (int64, error)
	RemoveCredits(ctx context.Context, userID int64, amount int64) (int64, error)
	Broadcast(text string) int
	SetPurchaseTarget(country, operator string)
}

// Handler реализует HTTP-обработчики API сервиса аренды номеров.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminToken     string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminToken string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminToken:     adminToken,
	}
}

type registerRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Register заводит учётную запись для идентификатора, одобренного
// коллаборатором контроля доступа, и выдаёт cookie авторизации.
// Повторная регистрация восстанавливает доступ к существующей записи.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.Register(r.Context(), req.ID, req.Name)
	if err != nil {
		h.logger.Error("register error", zap.Error(err), zap.Int64("user", req.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.ID)

	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type profileResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	Balance int64  `json:"balance"`
}

// GetProfile возвращает учётную запись текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	account, err := h.service.Profile(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("user", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, profileResponse{
		ID:      account.ID,
		Name:    account.Name,
		Balance: account.Balance,
	})
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("user", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, balance)
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
	State       string `json:"state"`
	StartedAt   string `json:"started_at"`
}

// AcquireNumber покупает номер для текущего пользователя.
func (h *Handler) AcquireNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	order, err := h.service.AcquireNumber(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrOrderAlreadyActive):
			http.Error(w, "number activation is already in progress", http.StatusConflict)
		case errors.Is(err, ledger.ErrInsufficientCredit):
			http.Error(w, "not enough credits", http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrUnknownAccount):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, provider.ErrNoStock), errors.Is(err, service.ErrProviderUnavailable):
			http.Error(w, providerBusyMessage, http.StatusServiceUnavailable)
		default:
			h.logger.Error("acquire number error", zap.Error(err), zap.Int64("user", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, toOrderResponse(order))
}

// GetOrder возвращает текущий активный заказ пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	order, err := h.service.CurrentOrder(userID)
	if err != nil {
		if errors.Is(err, tracker.ErrNoActiveOrder) {
			http.Error(w, "no active order", http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("user", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, toOrderResponse(order))
}

// CancelOrder отменяет активный заказ текущего пользователя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	err := h.service.CancelActivation(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrNoActiveOrder):
			http.Error(w, "no active order", http.StatusNotFound)
		case errors.Is(err, service.ErrProviderUnavailable):
			http.Error(w, providerBusyMessage, http.StatusServiceUnavailable)
		default:
			h.logger.Error("cancel order error", zap.Error(err), zap.Int64("user", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	Balance int64 `json:"balance"`
}

// Redeem активирует код пополнения для текущего пользователя.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidRedeemCode(req.Code) {
		http.Error(w, "invalid or expired code", http.StatusBadRequest)
		return
	}

	balance, err := h.service.RedeemCode(r.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, redeem.ErrInvalidCode):
			http.Error(w, "invalid or expired code", http.StatusBadRequest)
		case errors.Is(err, ledger.ErrUnknownAccount):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("redeem error", zap.Error(err), zap.Int64("user", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, redeemResponse{Balance: balance})
}

func toOrderResponse(order model.ActiveOrder) orderResponse {
	return orderResponse{
		OrderID:     order.ProviderOrderID,
		PhoneNumber: order.PhoneNumber,
		Country:     order.Country,
		State:       string(order.State),
		StartedAt:   order.StartedAt.Format(time.RFC3339),
	}
}

// writeJSON пишет тело ответа. К моменту ошибки кодирования статус и часть
// тела могли уже уйти клиенту, поэтому ошибка только логируется.
func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response error", zap.Error(err))
	}
}
