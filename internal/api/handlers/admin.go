package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/services"
)

type AdminHandler struct {
	Wallet *services.WalletService
	Config *services.ConfigService
}

func NewAdminHandler(wallet *services.WalletService, cfg *services.ConfigService) *AdminHandler {
	return &AdminHandler{Wallet: wallet, Config: cfg}
}

type configReq struct {
	Value       string                `json:"value"`
	DataType    models.ConfigDataType `json:"data_type" validate:"omitempty,oneof=string number boolean json"`
	Description string                `json:"description"`
}

type bulkConfigReq struct {
	Configs []services.ConfigUpdate `json:"configs" validate:"required,min=1,dive"`
}

func (h *AdminHandler) LockWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.Wallet.LockWallet(r.Context(), actor(r).UserID, chi.URLParam(r, "userId"))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

func (h *AdminHandler) UnlockWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.Wallet.UnlockWallet(r.Context(), actor(r).UserID, chi.URLParam(r, "userId"))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

func (h *AdminHandler) ListConfig(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.Config.GetAll())
}

func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configReq
	if !bind(w, r, &req) {
		return
	}
	c, err := h.Config.Update(r.Context(), actor(r).UserID, services.ConfigUpdate{
		Key:         chi.URLParam(r, "key"),
		Value:       req.Value,
		DataType:    req.DataType,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) BulkUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req bulkConfigReq
	if !bind(w, r, &req) {
		return
	}
	out, err := h.Config.BulkUpdate(r.Context(), actor(r).UserID, req.Configs)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.Config.Delete(r.Context(), actor(r).UserID, chi.URLParam(r, "key")); err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) RefreshConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.Config.RefreshCache(r.Context()); err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.Config.GetAll())
}
