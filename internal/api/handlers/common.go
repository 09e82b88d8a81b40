package handlers

import (
	"net/http"
	"strconv"

	"github.com/dispatchly/backend/internal/api/httpx"
	"github.com/dispatchly/backend/internal/api/validate"
	"github.com/dispatchly/backend/internal/middleware"
	"github.com/dispatchly/backend/internal/services"
)

func actor(r *http.Request) services.Actor {
	uid, _ := middleware.UserID(r.Context())
	role, _ := middleware.Role(r.Context())
	return services.Actor{UserID: uid, Role: role}
}

// bind decodes and validates the body into v. On failure it has already
// written the response.
func bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.WriteServiceError(w, r, err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpx.WriteServiceError(w, r, err)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	f, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return f, err == nil
}
