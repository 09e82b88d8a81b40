package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/logger"
	"github.com/dispatchly/backend/internal/middleware"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/realtime"
	"github.com/dispatchly/backend/internal/services"
)

// WSHandler upgrades authenticated clients onto the realtime hub. Browsers
// cannot set headers on websocket requests, so the token may also come from
// the "token" query parameter.
type WSHandler struct {
	Hub      *realtime.Hub
	TM       *auth.TokenManager
	Upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, tm *auth.TokenManager) *WSHandler {
	return &WSHandler{
		Hub: hub,
		TM:  tm,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}
	claims, err := h.TM.ParseAccess(token)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.FromContext(r.Context()).Debug("websocket upgrade failed", "err", err)
		return
	}
	h.Hub.Serve(r.Context(), conn, claims.UserID, claims.Role)
}

// OrderActions lets websocket clients act on orders through OrderService.
type OrderActions struct {
	Orders *services.OrderService
}

func (a OrderActions) CanJoinOrder(ctx context.Context, userID string, role models.Role, orderID string) bool {
	_, err := a.Orders.Get(ctx, orderID, services.Actor{UserID: userID, Role: role})
	return err == nil
}

func (a OrderActions) UpdateDriverLocation(ctx context.Context, userID string, role models.Role, orderID string, lat, lng float64) error {
	_, err := a.Orders.UpdateDriverLocation(ctx, orderID, services.Actor{UserID: userID, Role: role}, lat, lng)
	return err
}
