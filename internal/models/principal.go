package models

import (
	"encoding/json"
	"time"
)

// EmptySettings настройки нового пользователя.
const EmptySettings = "{}"

// Principal пользователь бота, владеющий тарифом и не более чем одним активным токеном.
//
// Для FREE поле SubscriptionEnd всегда nil. Платный тариф с прошедшим SubscriptionEnd
// считается истёкшим ещё до фактического понижения до FREE.
type Principal struct {
	UserID               string     `json:"user_id"`
	Username             string     `json:"username"`
	Tier                 Tier       `json:"tier"`
	DeviceID             string     `json:"device_id,omitempty"`
	SubscriptionStart    *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd      *time.Time `json:"subscription_end,omitempty"`
	DailySignalCount     int        `json:"daily_signal_count"`
	DailySignalResetDate time.Time  `json:"daily_signal_reset_date"`
	// Settings произвольные настройки бота в виде JSON-объекта.
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Expired сообщает, истекла ли платная подписка на момент now.
func (p *Principal) Expired(now time.Time) bool {
	if p.Tier == TierFree || p.SubscriptionEnd == nil {
		return false
	}
	return p.SubscriptionEnd.Before(now)
}

// EffectiveTier возвращает тариф с учётом истечения подписки.
func (p *Principal) EffectiveTier(now time.Time) Tier {
	if p.Expired(now) {
		return TierFree
	}
	return p.Tier
}

// PrincipalStats сводка по подписке пользователя.
type PrincipalStats struct {
	UserID             string    `json:"user_id"`
	Username           string    `json:"username"`
	Tier               Tier      `json:"tier"`
	DeviceLinked       bool      `json:"device_linked"`
	SubscriptionActive bool      `json:"subscription_active"`
	DaysRemaining      int       `json:"days_remaining"`
	DailySignalsUsed   int       `json:"daily_signals_used"`
	DailySignalsLeft   int       `json:"daily_signals_left"`
	MemberSince        time.Time `json:"member_since"`
	LastUpdated        time.Time `json:"last_updated"`
}

// UTCDate обрезает время до начала календарных суток в UTC.
func UTCDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
