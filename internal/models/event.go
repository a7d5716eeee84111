package models

import "time"

// DowngradedEvent публикуется, когда платная подписка истекла и пользователь переведён на FREE.
type DowngradedEvent struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	PreviousTier Tier      `json:"previous_tier"`
	ExpiredAt    time.Time `json:"expired_at"`
}

// TokensSweptEvent публикуется после очистки истёкших токенов.
type TokensSweptEvent struct {
	Count   int       `json:"count"`
	SweptAt time.Time `json:"swept_at"`
}
