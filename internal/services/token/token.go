// Package token реализует жизненный цикл EA-токенов: выпуск, проверку,
// продление, отзыв и очистку истёкших.
//
// Атомарность обеспечивает хранилище. Сервис не сериализует вызовы сам:
// каждая операция выражена через одну именованную атомарную операцию Repository.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/metrics"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// DefaultMaxGenerateAttempts число попыток сгенерировать уникальный токен.
const DefaultMaxGenerateAttempts = 5

// Repository атомарные операции хранилища токенов.
type Repository interface {
	// DeactivateAndInsert деактивирует активные токены владельца и сохраняет новый
	// в одной атомарной операции. При совпадении значения токена возвращает ErrTokenCollision.
	DeactivateAndInsert(ctx context.Context, token models.Token) (int, error)
	FindByToken(ctx context.Context, token string) (*models.Token, error)
	// DeactivateIfExpired выключает токен, только если он активен и expires_at <= now.
	DeactivateIfExpired(ctx context.Context, token string, now time.Time) (bool, error)
	RecordUsage(ctx context.Context, token string, now time.Time) error
	ExtendExpiry(ctx context.Context, token string, days int) (*models.Token, error)
	// Deactivate возвращает, был ли токен активен до вызова.
	Deactivate(ctx context.Context, token string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	FindActiveByUser(ctx context.Context, userID string) ([]*models.Token, error)
	FindActiveByDevice(ctx context.Context, deviceID string) (*models.Token, error)
}

// Generator источник новых значений токенов.
type Generator interface {
	Generate() (string, error)
}

// Service управляет EA-токенами.
type Service struct {
	repo        Repository
	gen         Generator
	clock       clock.Clock
	log         *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
}

// NewService создаёт сервис токенов. При maxAttempts <= 0 используется DefaultMaxGenerateAttempts.
func NewService(repo Repository, gen Generator, clk clock.Clock, log *slog.Logger, m *metrics.Metrics, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxGenerateAttempts
	}
	return &Service{
		repo:        repo,
		gen:         gen,
		clock:       clk,
		log:         log,
		metrics:     m,
		maxAttempts: maxAttempts,
	}
}

// Issue выпускает новый токен для пользователя, деактивируя предыдущий.
// Возвращённая запись содержит открытое значение токена, которое нельзя логировать.
func (s *Service) Issue(ctx context.Context, userID, deviceID string, tier models.Tier, durationDays int) (*models.Token, error) {
	const op = "services.token.Issue"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	switch {
	case userID == "":
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	case deviceID == "":
		return nil, fmt.Errorf("%s: %w: empty device id", op, models.ErrInvalidInput)
	case durationDays <= 0:
		return nil, fmt.Errorf("%s: %w: duration must be positive, got %d", op, models.ErrInvalidInput, durationDays)
	case !tier.Valid():
		return nil, fmt.Errorf("%s: %w: unknown tier %q", op, models.ErrInvalidInput, tier)
	case !tier.Policy().EAToken:
		return nil, fmt.Errorf("%s: %w: tier %s is not entitled to EA tokens", op, models.ErrInvalidInput, tier)
	}

	now := s.clock.Now()
	token := models.Token{
		UserID:        userID,
		BoundDeviceID: deviceID,
		Tier:          tier,
		IsActive:      true,
		ExpiresAt:     now.Add(time.Duration(durationDays) * 24 * time.Hour),
		CreatedAt:     now,
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		value, err := s.gen.Generate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		token.Token = value

		deactivated, err := s.repo.DeactivateAndInsert(ctx, token)
		if errors.Is(err, models.ErrTokenCollision) {
			log.Warn("generated token collides with existing one, retrying", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			log.Error("failed to store token", sl.Err(err))
			return nil, models.WrapStore(op, err)
		}

		s.metrics.Issued()
		s.metrics.Revoked(deactivated)
		log.Info("token issued",
			sl.Token(token.Token),
			slog.String("tier", string(tier)),
			slog.Time("expires_at", token.ExpiresAt),
			slog.Int("deactivated", deactivated),
		)
		return &token, nil
	}

	log.Error("token generation attempts exhausted", slog.Int("attempts", s.maxAttempts))
	return nil, fmt.Errorf("%s: %w: %w after %d attempts", op, models.ErrStoreFailure, models.ErrTokenCollision, s.maxAttempts)
}

// Validate проверяет токен, предъявленный терминалом deviceID.
//
// Отказы (ErrNotFound, ErrInactive, ErrDeviceMismatch, ErrExpired) возвращаются
// в ValidationResult.Reason. Ошибка возвращается только при сбое чтения из хранилища.
func (s *Service) Validate(ctx context.Context, token, deviceID string) (models.ValidationResult, error) {
	const op = "services.token.Validate"
	log := s.log.With(slog.String("op", op), sl.Token(token))

	if token == "" {
		s.metrics.Validation(models.ReasonCode(models.ErrNotFound))
		return models.Invalid(models.ErrNotFound), nil
	}

	t, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		s.metrics.Validation(models.ReasonCode(models.ErrNotFound))
		return models.Invalid(models.ErrNotFound), nil
	}
	if err != nil {
		log.Error("failed to read token", sl.Err(err))
		return models.ValidationResult{}, models.WrapStore(op, err)
	}

	now := s.clock.Now()
	switch {
	case !t.IsActive:
		s.metrics.Validation(models.ReasonCode(models.ErrInactive))
		return models.Invalid(models.ErrInactive), nil
	case t.BoundDeviceID != deviceID:
		// до проверки срока: чужой терминал не должен узнать, истёк ли токен
		s.metrics.Validation(models.ReasonCode(models.ErrDeviceMismatch))
		log.Warn("token presented by foreign device", slog.String("user_id", t.UserID))
		return models.Invalid(models.ErrDeviceMismatch), nil
	case !now.Before(t.ExpiresAt):
		if _, err := s.repo.DeactivateIfExpired(ctx, token, now); err != nil {
			// результат чтения остаётся решающим, токен выключит следующая очистка
			log.Error("failed to deactivate expired token", sl.Err(err))
		}
		s.metrics.Validation(models.ReasonCode(models.ErrExpired))
		return models.Invalid(models.ErrExpired), nil
	}

	if err := s.repo.RecordUsage(ctx, token, now); err != nil {
		log.Warn("failed to record token usage", sl.Err(err))
	}

	s.metrics.Validation("")
	expiresAt := t.ExpiresAt
	return models.ValidationResult{
		Valid:     true,
		UserID:    t.UserID,
		Tier:      t.Tier,
		ExpiresAt: &expiresAt,
	}, nil
}

// Extend продлевает токен на additionalDays суток от текущего expires_at, а не от now.
// Неактивный токен продлевается, но не активируется повторно.
func (s *Service) Extend(ctx context.Context, token string, additionalDays int) (*models.Token, error) {
	const op = "services.token.Extend"

	if token == "" {
		return nil, fmt.Errorf("%s: %w: empty token", op, models.ErrInvalidInput)
	}
	if additionalDays <= 0 {
		return nil, fmt.Errorf("%s: %w: additional days must be positive, got %d", op, models.ErrInvalidInput, additionalDays)
	}

	t, err := s.repo.ExtendExpiry(ctx, token, additionalDays)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.log.Error("failed to extend token", slog.String("op", op), sl.Token(token), sl.Err(err))
		}
		return nil, models.WrapStore(op, err)
	}

	s.log.Info("token extended",
		slog.String("op", op),
		sl.Token(token),
		slog.Int("days", additionalDays),
		slog.Time("expires_at", t.ExpiresAt),
	)
	return t, nil
}

// Revoke выключает токен. Повторный вызов не является ошибкой и возвращает false.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	const op = "services.token.Revoke"

	wasActive, err := s.repo.Deactivate(ctx, token)
	if err != nil {
		return false, models.WrapStore(op, err)
	}
	if wasActive {
		s.metrics.Revoked(1)
		s.log.Info("token revoked", slog.String("op", op), sl.Token(token))
	}
	return wasActive, nil
}

// RevokeAllForUser выключает все активные токены пользователя и возвращает их количество.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	const op = "services.token.RevokeAllForUser"

	if userID == "" {
		return 0, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	n, err := s.repo.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, models.WrapStore(op, err)
	}
	if n > 0 {
		s.metrics.Revoked(n)
		s.log.Info("user tokens revoked", slog.String("op", op), slog.String("user_id", userID), slog.Int("count", n))
	}
	return n, nil
}

// SweepExpired выключает все активные токены с истёкшим сроком.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	const op = "services.token.SweepExpired"

	n, err := s.repo.DeactivateExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, models.WrapStore(op, err)
	}
	s.metrics.Swept(n)
	s.log.Info("expired tokens swept", slog.String("op", op), slog.Int("count", n))
	return n, nil
}

// ActiveForUser возвращает пригодный к использованию токен пользователя.
func (s *Service) ActiveForUser(ctx context.Context, userID string) (*models.Token, error) {
	const op = "services.token.ActiveForUser"

	tokens, err := s.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return tokens[len(tokens)-1], nil
}

// ActiveForDevice возвращает пригодный к использованию токен, привязанный к терминалу.
func (s *Service) ActiveForDevice(ctx context.Context, deviceID string) (*models.Token, error) {
	const op = "services.token.ActiveForDevice"

	if deviceID == "" {
		return nil, fmt.Errorf("%s: %w: empty device id", op, models.ErrInvalidInput)
	}
	t, err := s.repo.FindActiveByDevice(ctx, deviceID)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	if !t.Usable(s.clock.Now()) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return t, nil
}

// ListActiveForUser возвращает пригодные к использованию токены пользователя.
// Истёкшие токены с is_active = true в список не попадают и выключаются
// тем же условным обновлением, что и при проверке.
func (s *Service) ListActiveForUser(ctx context.Context, userID string) ([]*models.Token, error) {
	const op = "services.token.ListActiveForUser"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	tokens, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}

	now := s.clock.Now()
	usable := make([]*models.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Usable(now) {
			usable = append(usable, t)
			continue
		}
		if _, err := s.repo.DeactivateIfExpired(ctx, t.Token, now); err != nil {
			s.log.Error("failed to deactivate expired token",
				slog.String("op", op),
				slog.String("user_id", userID),
				sl.Token(t.Token),
				sl.Err(err),
			)
		}
	}
	return usable, nil
}
