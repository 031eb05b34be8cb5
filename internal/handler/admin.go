// Файл содержит обработчики административного API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/ledger"
	"github.com/mkoshel/numrent-system/internal/model"
	"github.com/mkoshel/numrent-system/internal/redeem"
)

type generateCodeRequest struct {
	Credits int64 `json:"credits"`
}

// GenerateCode выпускает одноразовый код пополнения.
func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	code, err := h.service.GenerateCode(req.Credits)
	if err != nil {
		if errors.Is(err, redeem.ErrInvalidCredits) {
			http.Error(w, "credits must be positive", http.StatusBadRequest)
			return
		}
		h.logger.Error("generate code error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, model.RedeemCode{Code: code, Credits: req.Credits})
}

type removeCreditsRequest struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

type removeCreditsResponse struct {
	Balance int64 `json:"balance"`
}

// RemoveCredits списывает кредиты с баланса пользователя.
func (h *Handler) RemoveCredits(w http.ResponseWriter, r *http.Request) {
	var req removeCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.RemoveCredits(r.Context(), req.UserID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			http.Error(w, "amount must be positive", http.StatusBadRequest)
		case errors.Is(err, ledger.ErrInsufficientCredit):
			http.Error(w, "user has insufficient credits", http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrUnknownAccount):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("remove credits error", zap.Error(err), zap.Int64("user", req.UserID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, removeCreditsResponse{Balance: balance})
}

// GetUserProfile возвращает учётную запись произвольного пользователя.
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, err := h.service.Profile(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get user profile error", zap.Error(err), zap.Int64("user", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, profileResponse{
		ID:      account.ID,
		Name:    account.Name,
		Balance: account.Balance,
	})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

type broadcastResponse struct {
	Sent int `json:"sent"`
}

// Broadcast отправляет сообщение всем пользователям.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sent := h.service.Broadcast(req.Text)
	h.writeJSON(w, broadcastResponse{Sent: sent})
}

type purchaseTargetRequest struct {
	Country  string `json:"country"`
	Operator string `json:"operator"`
}

// SetPurchaseTarget меняет страну и оператора для последующих покупок номеров.
func (h *Handler) SetPurchaseTarget(w http.ResponseWriter, r *http.Request) {
	var req purchaseTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Country == "" && req.Operator == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.SetPurchaseTarget(req.Country, req.Operator)
	w.WriteHeader(http.StatusOK)
}
