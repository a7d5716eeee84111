package models

import (
	"errors"
	"fmt"
)

// Ошибки домена. Отказы проверки токена (ErrInactive, ErrExpired, ErrDeviceMismatch,
// ErrNotFound) передаются через ValidationResult.Reason, а не как возвращаемая ошибка.
var (
	ErrNotFound       = errors.New("not found")
	ErrInactive       = errors.New("token is deactivated")
	ErrExpired        = errors.New("token expired")
	ErrDeviceMismatch = errors.New("device id mismatch")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStoreFailure   = errors.New("store failure")
	// ErrTokenCollision возвращается хранилищем, если сгенерированный токен уже существует.
	ErrTokenCollision = errors.New("token collision")
)

// ReasonCode возвращает короткий машиночитаемый код причины отказа.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "store_failure"
	}
}

// WrapStore оборачивает ошибку хранилища в ErrStoreFailure.
// Доменные ошибки ErrNotFound и ErrTokenCollision возвращаются с контекстом op, но без обёртки.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTokenCollision) || errors.Is(err, ErrStoreFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
