package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/services"
)

type DriverHandler struct {
	Drivers *services.DriverService
}

func NewDriverHandler(drivers *services.DriverService) *DriverHandler {
	return &DriverHandler{Drivers: drivers}
}

type onlineReq struct {
	IsOnline *bool `json:"is_online" validate:"required"`
}

type ratingReq struct {
	Rating int `json:"rating" validate:"required,gte=1,lte=5"`
}

func (h *DriverHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Drivers.GetProfile(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *DriverHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Drivers.GetStats(r.Context(), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *DriverHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineReq
	if !bind(w, r, &req) {
		return
	}
	p, err := h.Drivers.SetOnline(r.Context(), actor(r).UserID, *req.IsOnline)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *DriverHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationReq
	if !bind(w, r, &req) {
		return
	}
	p, err := h.Drivers.UpdateLocation(r.Context(), actor(r).UserID, req.Latitude, req.Longitude)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *DriverHandler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var req services.VehicleInput
	if !bind(w, r, &req) {
		return
	}
	p, err := h.Drivers.UpdateVehicle(r.Context(), actor(r).UserID, req)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Rate lets the customer score the driver of a delivered order.
func (h *DriverHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req ratingReq
	if !bind(w, r, &req) {
		return
	}
	p, err := h.Drivers.Rate(r.Context(), chi.URLParam(r, "id"), actor(r), req.Rating)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"driver_id":     p.UserID,
		"rating":        p.Rating.StringFixed(1),
		"total_ratings": p.TotalRatings,
	})
}
