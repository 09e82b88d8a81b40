package services

import "errors"

var (
	ErrWalletLocked               = errors.New("wallet is locked")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInsufficientDriverBalance  = errors.New("insufficient driver balance")
	ErrInvalidAmount              = errors.New("amount must be greater than zero")
	ErrWalletNotFound             = errors.New("wallet not found")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrOrderNotFound              = errors.New("order not found")
	ErrOrderNotAvailable          = errors.New("order is no longer available")
	ErrInvalidStatusTransition    = errors.New("invalid status transition")
	ErrForbidden                  = errors.New("forbidden")
	ErrCannotCancelDeliveredOrder = errors.New("cannot cancel a delivered order")
	ErrInvalidInput               = errors.New("invalid input")

	ErrUnauthorized         = errors.New("unauthorized")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrConfigNotFound       = errors.New("config not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAlreadyRated         = errors.New("order already rated")
)
