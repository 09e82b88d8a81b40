package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/services"
)

type WalletHandler struct {
	Wallet *services.WalletService
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{Wallet: wallet}
}

type fundsReq struct {
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=cash card bank_transfer wallet"`
	Description   string               `json:"description" validate:"max=255"`
	Reference     string               `json:"reference" validate:"max=100"`
}

func (req fundsReq) input() services.FundsInput {
	return services.FundsInput{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		Reference:     req.Reference,
	}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.Wallet.GetWallet(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Wallet.GetBalance(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"balance": bal})
}

func (h *WalletHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Wallet.GetStats(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *WalletHandler) CanTakeOrder(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Wallet.CanDriverTakeOrder(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"can_take_order": ok})
}

func (h *WalletHandler) AddFunds(w http.ResponseWriter, r *http.Request) {
	var req fundsReq
	if !bind(w, r, &req) {
		return
	}
	tx, err := h.Wallet.AddFunds(r.Context(), actor(r).UserID, req.input())
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, tx)
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req fundsReq
	if !bind(w, r, &req) {
		return
	}
	tx, err := h.Wallet.WithdrawFunds(r.Context(), actor(r).UserID, req.input())
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, tx)
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	list, total, err := h.Wallet.GetTransactions(r.Context(), actor(r).UserID, limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transactions": list, "total": total})
}

func (h *WalletHandler) Transaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Wallet.GetTransaction(r.Context(), actor(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}
