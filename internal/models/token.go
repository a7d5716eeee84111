package models

import "time"

// Token EA-токен, привязанный к пользователю и торговому терминалу.
//
// Токены не удаляются физически: после отзыва или истечения IsActive = false.
type Token struct {
	Token         string     `json:"token"`
	UserID        string     `json:"user_id"`
	BoundDeviceID string     `json:"bound_device_id"`
	Tier          Tier       `json:"tier"`
	IsActive      bool       `json:"is_active"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	UsageCount    int        `json:"usage_count"`
}

// Usable сообщает, можно ли пользоваться токеном на момент now.
func (t *Token) Usable(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}

// ValidationResult результат проверки токена.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	UserID    string     `json:"user_id,omitempty"`
	Tier      Tier       `json:"tier,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    error      `json:"-"`
}

// Invalid формирует отрицательный результат проверки с причиной.
func Invalid(reason error) ValidationResult {
	return ValidationResult{Reason: reason}
}
