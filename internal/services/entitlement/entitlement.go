package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Причины отказа, не связанные с проверкой токена.
const (
	ReasonTierNotEntitled = "tier_not_entitled"
	ReasonTierMismatch    = "tier_mismatch"
)

// TokenValidator проверяет EA-токены.
type TokenValidator interface {
	Validate(ctx context.Context, token, deviceID string) (models.ValidationResult, error)
}

// PrincipalLoader загружает пользователя из хранилища без кеша.
type PrincipalLoader interface {
	Load(ctx context.Context, userID string) (*models.Principal, error)
}

// Decision итоговое решение о доступе к автоматическому исполнению.
type Decision struct {
	Allowed               bool        `json:"allowed"`
	Reason                string      `json:"reason,omitempty"`
	UserID                string      `json:"user_id,omitempty"`
	Tier                  models.Tier `json:"tier,omitempty"`
	EffectiveTier         models.Tier `json:"effective_tier,omitempty"`
	RemainingDailySignals int         `json:"remaining_daily_signals"`
}

// Service проверяет токен и тариф владельца в одном вызове.
type Service struct {
	tokens     TokenValidator
	principals PrincipalLoader
	evaluator  Evaluator
	clock      clock.Clock
	log        *slog.Logger
}

// NewService создаёт сервис прав доступа.
func NewService(tokens TokenValidator, principals PrincipalLoader, evaluator Evaluator, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		tokens:     tokens,
		principals: principals,
		evaluator:  evaluator,
		clock:      clk,
		log:        log,
	}
}

// Evaluator возвращает используемый Evaluator.
func (s *Service) Evaluator() Evaluator {
	return s.evaluator
}

// CheckAutoExecute решает, может ли терминал deviceID исполнять ордера по токену.
// Ошибка возвращается только при сбое хранилища.
func (s *Service) CheckAutoExecute(ctx context.Context, token, deviceID string) (*Decision, error) {
	const op = "services.entitlement.CheckAutoExecute"
	log := s.log.With(slog.String("op", op), sl.Token(token))

	v, err := s.tokens.Validate(ctx, token, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !v.Valid {
		return &Decision{Reason: models.ReasonCode(v.Reason)}, nil
	}

	p, err := s.principals.Load(ctx, v.UserID)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("token owner is not registered", slog.String("user_id", v.UserID))
		return &Decision{Reason: models.ReasonCode(models.ErrNotFound), UserID: v.UserID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	d := &Decision{
		UserID:                p.UserID,
		Tier:                  p.Tier,
		EffectiveTier:         p.EffectiveTier(now),
		RemainingDailySignals: s.evaluator.RemainingDailySignals(p, now),
	}
	d.Allowed = s.evaluator.CanAutoExecute(p, v, now)
	switch {
	case d.Allowed:
	case !d.EffectiveTier.Policy().AutoExecution:
		d.Reason = ReasonTierNotEntitled
	default:
		d.Reason = ReasonTierMismatch
	}
	if !d.Allowed {
		log.Info("auto execution denied", slog.String("user_id", p.UserID), slog.String("reason", d.Reason))
	}
	return d, nil
}
