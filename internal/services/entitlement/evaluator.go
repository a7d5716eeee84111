// Package entitlement объединяет тариф пользователя и результат проверки токена
// в одно решение о доступе к функциональности.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Evaluator чистая логика прав доступа, без обращения к хранилищу.
type Evaluator struct {
	freeDailyLimit int
}

// NewEvaluator создаёт Evaluator с дневным лимитом сигналов для FREE.
// При отрицательном значении используется лимит из политики тарифа.
func NewEvaluator(freeDailyLimit int) Evaluator {
	if freeDailyLimit < 0 {
		freeDailyLimit = models.TierFree.Policy().DailySignals
	}
	return Evaluator{freeDailyLimit: freeDailyLimit}
}

// DailyLimit возвращает дневной лимит сигналов тарифа или models.Unlimited.
func (e Evaluator) DailyLimit(tier models.Tier) int {
	if tier == models.TierFree {
		return e.freeDailyLimit
	}
	return tier.Policy().DailySignals
}

// CanAutoExecute разрешает автоматическое исполнение, если действующий тариф это позволяет,
// токен валиден и снимок тарифа в токене совпадает с текущим тарифом пользователя.
func (e Evaluator) CanAutoExecute(p *models.Principal, v models.ValidationResult, now time.Time) bool {
	if p == nil || !v.Valid {
		return false
	}
	if v.UserID != "" && v.UserID != p.UserID {
		return false
	}
	if !p.EffectiveTier(now).Policy().AutoExecution {
		return false
	}
	return v.Tier == p.Tier
}

// RemainingDailySignals возвращает остаток сигналов на сегодня (UTC), не меньше нуля.
// Для безлимитных тарифов возвращает models.Unlimited. Счётчик за прошлую дату считается нулевым.
func (e Evaluator) RemainingDailySignals(p *models.Principal, now time.Time) int {
	limit := e.DailyLimit(p.EffectiveTier(now))
	if limit == models.Unlimited {
		return models.Unlimited
	}
	return max(0, limit-UsedToday(p, now))
}

// HasFeature сообщает, доступна ли функциональность с учётом истечения подписки.
func (e Evaluator) HasFeature(p *models.Principal, f models.Feature, now time.Time) bool {
	if p == nil {
		return false
	}
	return p.EffectiveTier(now).Policy().Has(f)
}

// CanTradePair сообщает, открыт ли инструмент pair действующему тарифу пользователя.
// После истечения подписки доступны только инструменты FREE.
func (e Evaluator) CanTradePair(p *models.Principal, pair string, now time.Time) bool {
	if p == nil {
		return false
	}
	return p.EffectiveTier(now).Policy().AllowsPair(pair)
}

// UsedToday возвращает число сигналов, израсходованных в текущие сутки UTC.
func UsedToday(p *models.Principal, now time.Time) int {
	if !models.UTCDate(p.DailySignalResetDate).Equal(models.UTCDate(now)) {
		return 0
	}
	return p.DailySignalCount
}
