// Package models содержит доменные структуры сервиса доступа: уровни подписки,
// принципалов (пользователей бота), EA-токены и результаты их проверки.
package models

import (
	"fmt"
	"strings"
)

// Tier уровень подписки пользователя.
type Tier string

// Поддерживаемые уровни подписки.
const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
	TierSuper   Tier = "SUPER"
	TierSupreme Tier = "SUPREME"
)

// Unlimited значение лимита сигналов для безлимитных тарифов.
const Unlimited = -1

// Feature функциональность, доступ к которой зависит от тарифа.
type Feature string

// Флаги функциональности тарифов.
const (
	FeatureAutoNotification Feature = "auto_notification"
	FeatureAutoExecution    Feature = "auto_execution"
	FeatureEAToken          Feature = "ea_token"
	FeatureNewsAlerts       Feature = "news_alerts"
)

// PairsAll открывает в тарифе все торговые инструменты.
const PairsAll = "ALL"

// TierPolicy описывает возможности конкретного тарифа.
type TierPolicy struct {
	DailySignals     int  // Лимит сигналов в сутки, Unlimited для безлимита
	AutoNotification bool // Автоматические уведомления о сигналах
	AutoExecution    bool // Автоматическое исполнение ордеров через EA
	EAToken          bool // Право на выпуск EA-токена
	NewsAlerts       bool // Уведомления о новостях
	// Pairs инструменты тарифа. Пустой список означает, что тариф инструменты не ограничивает
	// и набор определяется купленным пакетом вне этого сервиса.
	Pairs []string
}

var policies = map[Tier]TierPolicy{
	TierFree:    {DailySignals: 5, Pairs: []string{"XAUUSD"}},
	TierPremium: {DailySignals: Unlimited, AutoNotification: true, NewsAlerts: true},
	TierSuper:   {DailySignals: Unlimited, AutoNotification: true, AutoExecution: true, EAToken: true, NewsAlerts: true},
	TierSupreme: {DailySignals: Unlimited, AutoNotification: true, AutoExecution: true, EAToken: true, NewsAlerts: true, Pairs: []string{PairsAll}},
}

// Tiers возвращает все тарифы по возрастанию.
func Tiers() []Tier {
	return []Tier{TierFree, TierPremium, TierSuper, TierSupreme}
}

// ParseTier разбирает строку в Tier без учёта регистра.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := policies[t]; !ok {
		return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Valid сообщает, является ли значение известным тарифом.
func (t Tier) Valid() bool {
	_, ok := policies[t]
	return ok
}

// Policy возвращает политику тарифа. Для неизвестного тарифа возвращается политика FREE.
func (t Tier) Policy() TierPolicy {
	if p, ok := policies[t]; ok {
		return p
	}
	return policies[TierFree]
}

// Has сообщает, включена ли функциональность в тарифе.
func (p TierPolicy) Has(f Feature) bool {
	switch f {
	case FeatureAutoNotification:
		return p.AutoNotification
	case FeatureAutoExecution:
		return p.AutoExecution
	case FeatureEAToken:
		return p.EAToken
	case FeatureNewsAlerts:
		return p.NewsAlerts
	default:
		return false
	}
}

// AllowsPair сообщает, открыт ли инструмент pair в тарифе. Регистр не учитывается.
func (p TierPolicy) AllowsPair(pair string) bool {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return false
	}
	if len(p.Pairs) == 0 {
		return true
	}
	for _, allowed := range p.Pairs {
		if allowed == PairsAll || allowed == pair {
			return true
		}
	}
	return false
}
