// Package password хеширует и проверяет пароли клиентов API из секции clients конфига.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost стоимость bcrypt, с которой cmd/hash-password создаёт хеши.
// Хеши в конфиге с меньшей стоимостью не принимаются.
const Cost = bcrypt.DefaultCost

var (
	// ErrEmpty пустой пароль.
	ErrEmpty = errors.New("empty password")
	// ErrMismatch пароль не совпадает с хешем клиента.
	ErrMismatch = errors.New("password mismatch")
)

// Hash возвращает bcrypt-хеш пароля для поля password_hash.
func Hash(raw string) (string, error) {
	const op = "password.Hash"
	if raw == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmpty)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), Cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Compare сверяет пароль с хешем клиента. Клиент без хеша войти не может.
func Compare(hash, raw string) error {
	const op = "password.Compare"
	if hash == "" || raw == "" {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckHash проверяет, что значение из конфига является bcrypt-хешем со стоимостью не ниже Cost.
func CheckHash(hash string) error {
	const op = "password.CheckHash"
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cost < Cost {
		return fmt.Errorf("%s: bcrypt cost %d is below %d", op, cost, Cost)
	}
	return nil
}
