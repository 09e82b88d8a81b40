package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/services"
)

type OrderHandler struct {
	Orders *services.OrderService
}

func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{Orders: orders}
}

type createOrderReq struct {
	PickupLatitude     float64            `json:"pickup_latitude" validate:"gte=-90,lte=90"`
	PickupLongitude    float64            `json:"pickup_longitude" validate:"gte=-180,lte=180"`
	PickupAddress      string             `json:"pickup_address" validate:"required"`
	DeliveryLatitude   float64            `json:"delivery_latitude" validate:"gte=-90,lte=90"`
	DeliveryLongitude  float64            `json:"delivery_longitude" validate:"gte=-180,lte=180"`
	DeliveryAddress    string             `json:"delivery_address" validate:"required"`
	RecipientName      string             `json:"recipient_name" validate:"required"`
	RecipientPhone     string             `json:"recipient_phone" validate:"required"`
	PackageDescription string             `json:"package_description"`
	PackageWeight      *float64           `json:"package_weight" validate:"omitempty,gt=0"`
	PackageSize        models.PackageSize `json:"package_size" validate:"omitempty,oneof=small medium large"`
	DeliveryNotes      string             `json:"delivery_notes"`
}

func (req createOrderReq) input() services.CreateOrderInput {
	return services.CreateOrderInput{
		PickupLatitude:     req.PickupLatitude,
		PickupLongitude:    req.PickupLongitude,
		PickupAddress:      req.PickupAddress,
		DeliveryLatitude:   req.DeliveryLatitude,
		DeliveryLongitude:  req.DeliveryLongitude,
		DeliveryAddress:    req.DeliveryAddress,
		RecipientName:      req.RecipientName,
		RecipientPhone:     req.RecipientPhone,
		PackageDescription: req.PackageDescription,
		PackageWeight:      req.PackageWeight,
		PackageSize:        req.PackageSize,
		DeliveryNotes:      req.DeliveryNotes,
	}
}

type statusReq struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}

type locationReq struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

type listResp struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if !bind(w, r, &req) {
		return
	}
	o, err := h.Orders.Create(r.Context(), actor(r).UserID, req.input())
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, o)
}

// Estimate prices a trip without creating an order.
func (h *OrderHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if !bind(w, r, &req) {
		return
	}
	price, km := h.Orders.EstimatePrice(r.Context(), req.input())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"estimated_price": price,
		"distance_km":     fmt.Sprintf("%.2f", km),
	})
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	status := models.OrderStatus(r.URL.Query().Get("status"))
	list, total, err := h.Orders.List(r.Context(), actor(r), page, limit, status)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResp{Orders: list, Total: total, Page: page, Limit: limit})
}

func (h *OrderHandler) Available(w http.ResponseWriter, r *http.Request) {
	lat, okLat := queryFloat(r, "lat")
	lng, okLng := queryFloat(r, "lng")
	if !okLat || !okLng {
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "lat and lng query parameters are required", nil)
		return
	}
	list, err := h.Orders.FindAvailable(r.Context(), lat, lng)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Accept(r.Context(), chi.URLParam(r, "id"), actor(r).UserID)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if !bind(w, r, &req) {
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actor(r))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationReq
	if !bind(w, r, &req) {
		return
	}
	o, err := h.Orders.UpdateDriverLocation(r.Context(), chi.URLParam(r, "id"), actor(r), req.Latitude, req.Longitude)
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		httpx.WriteServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}
