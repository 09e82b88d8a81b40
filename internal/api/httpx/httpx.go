package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dispatchly/backend/internal/api/validate"
	"github.com/dispatchly/backend/internal/logger"
	"github.com/dispatchly/backend/internal/services"
)

const maxBody = 1 << 20

type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// DecodeJSON reads one JSON object from the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", services.ErrInvalidInput, err)
	}
	return nil
}

type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{services.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{services.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{services.ErrInsufficientBalance, http.StatusBadRequest, "INSUFFICIENT_BALANCE"},
	{services.ErrInsufficientDriverBalance, http.StatusBadRequest, "INSUFFICIENT_DRIVER_BALANCE"},
	{services.ErrInvalidStatusTransition, http.StatusBadRequest, "INVALID_STATUS_TRANSITION"},
	{services.ErrCannotCancelDeliveredOrder, http.StatusBadRequest, "CANNOT_CANCEL_DELIVERED_ORDER"},
	{services.ErrWalletLocked, http.StatusForbidden, "WALLET_LOCKED"},
	{services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{services.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{services.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
	{services.ErrTransactionNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND"},
	{services.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{services.ErrConfigNotFound, http.StatusNotFound, "CONFIG_NOT_FOUND"},
	{services.ErrNotificationNotFound, http.StatusNotFound, "NOTIFICATION_NOT_FOUND"},
	{services.ErrOrderNotAvailable, http.StatusConflict, "ORDER_NOT_AVAILABLE"},
	{services.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
	{services.ErrAlreadyRated, http.StatusConflict, "ALREADY_RATED"},
}

// WriteServiceError maps a service error to its status and code. Anything
// unrecognised is logged and reported as a 500 without its message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validate.Errs
	if errors.As(err, &verrs) {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "validation failed", verrs)
		return
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			WriteError(w, k.status, k.code, err.Error(), nil)
			return
		}
	}
	logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}
