// Package tier управляет тарифами пользователей: регистрацией, повышением,
// понижением до FREE, истечением подписок и дневной квотой сигналов.
package tier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/metrics"
	"github.com/magabrotheeeer/ea-access/internal/models"
	"github.com/magabrotheeeer/ea-access/internal/services/entitlement"
)

const (
	// DefaultCacheTTL время жизни карточки пользователя в кеше.
	DefaultCacheTTL = time.Hour
	// DefaultPageSize и MaxPageSize ограничивают выборку пользователей по тарифу.
	DefaultPageSize = 50
	MaxPageSize     = 500
	// MaxSettingsSize предельный размер настроек пользователя в байтах.
	MaxSettingsSize = 16 << 10
)

// Repository атомарные операции хранилища пользователей.
type Repository interface {
	CreatePrincipal(ctx context.Context, p models.Principal) (*models.Principal, bool, error)
	GetPrincipal(ctx context.Context, userID string) (*models.Principal, error)
	SetTier(ctx context.Context, userID string, tier models.Tier, start, end, now time.Time) (*models.Principal, error)
	ResetToFree(ctx context.Context, userID string, now time.Time) (*models.Principal, error)
	// DowngradeIfExpired понижает до FREE, только если подписка всё ещё истёкшая.
	DowngradeIfExpired(ctx context.Context, userID string, now time.Time) (bool, error)
	FindExpiredPrincipals(ctx context.Context, now time.Time) ([]*models.Principal, error)
	// IncrementDailySignals увеличивает счётчик атомарно, сбрасывая его при смене даты today.
	IncrementDailySignals(ctx context.Context, userID string, today, now time.Time) (int, error)
	SetDevice(ctx context.Context, userID, deviceID string, now time.Time) error
	// FindPrincipalsByTier возвращает страницу пользователей по сохранённому тарифу.
	FindPrincipalsByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error)
	SetSettings(ctx context.Context, userID string, settings json.RawMessage, now time.Time) error
}

// TokenManager операции над EA-токенами, нужные при смене тарифа.
type TokenManager interface {
	Issue(ctx context.Context, userID, deviceID string, tier models.Tier, durationDays int) (*models.Token, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Version возвращает поколение ключа, которое меняется при каждой инвалидации.
	Version(ctx context.Context, key string) (int64, error)
	// SetIfVersion сохраняет значение, если с момента чтения version ключ не инвалидировали.
	SetIfVersion(ctx context.Context, key string, version int64, value any, expiration time.Duration) (bool, error)
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// UpgradeResult итог повышения тарифа.
type UpgradeResult struct {
	Principal *models.Principal `json:"principal"`
	// Token выпущенный токен, если тариф даёт право на EA и терминал привязан.
	Token *models.Token `json:"token,omitempty"`
	// RevokedTokens число отозванных токенов, если новый тариф не даёт права на EA.
	RevokedTokens int `json:"revoked_tokens"`
}

// Service бизнес-логика тарифов.
type Service struct {
	repo      Repository
	tokens    TokenManager
	cache     Cache
	evaluator entitlement.Evaluator
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	cacheTTL  time.Duration
}

// NewService создаёт сервис тарифов. cache может быть nil, тогда кеширование отключено.
func NewService(
	repo Repository,
	tokens TokenManager,
	cache Cache,
	evaluator entitlement.Evaluator,
	clk clock.Clock,
	log *slog.Logger,
	m *metrics.Metrics,
	cacheTTL time.Duration,
) *Service {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		cache:     cache,
		evaluator: evaluator,
		clock:     clk,
		log:       log,
		metrics:   m,
		cacheTTL:  cacheTTL,
	}
}

func cacheKey(userID string) string {
	return "principal:" + userID
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey(userID)); err != nil {
		s.log.Warn("failed to invalidate principal cache", slog.String("user_id", userID), sl.Err(err))
	}
}

// store кладёт запись в кеш, если ключ не инвалидировали после чтения version.
func (s *Service) store(ctx context.Context, p *models.Principal, version int64) {
	stored, err := s.cache.SetIfVersion(ctx, cacheKey(p.UserID), version, p, s.cacheTTL)
	if err != nil {
		s.log.Warn("failed to cache principal", slog.String("user_id", p.UserID), sl.Err(err))
		return
	}
	if !stored {
		s.log.Debug("principal changed while loading, cache not updated", slog.String("user_id", p.UserID))
	}
}

// Register создаёт пользователя на тарифе FREE. Повторный вызов возвращает существующую запись.
func (s *Service) Register(ctx context.Context, userID, username string) (*models.Principal, error) {
	const op = "services.tier.Register"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	now := s.clock.Now()
	p, created, err := s.repo.CreatePrincipal(ctx, models.Principal{
		UserID:               userID,
		Username:             username,
		Tier:                 models.TierFree,
		DailySignalResetDate: models.UTCDate(now),
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	if created {
		s.log.Info("principal registered", slog.String("op", op), slog.String("user_id", userID))
	}
	return p, nil
}

// Get возвращает пользователя, сначала пытаясь прочитать его из кеша.
// Для решений о доступе используется Load.
func (s *Service) Get(ctx context.Context, userID string) (*models.Principal, error) {
	const op = "services.tier.Get"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	if s.cache == nil {
		return s.Load(ctx, userID)
	}

	var cached models.Principal
	found, err := s.cache.Get(ctx, cacheKey(userID), &cached)
	if err != nil {
		s.log.Warn("failed to read principal from cache", slog.String("op", op), slog.String("user_id", userID), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	// поколение читается до БД: инвалидация между чтением и записью отменит запись
	version, err := s.cache.Version(ctx, cacheKey(userID))
	cacheable := err == nil
	if err != nil {
		s.log.Warn("failed to read principal cache version", slog.String("op", op), slog.String("user_id", userID), sl.Err(err))
	}

	p, err := s.repo.GetPrincipal(ctx, userID)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	if cacheable {
		s.store(ctx, p, version)
	}
	return p, nil
}

// Load читает пользователя напрямую из хранилища, минуя кеш.
func (s *Service) Load(ctx context.Context, userID string) (*models.Principal, error) {
	const op = "services.tier.Load"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	p, err := s.repo.GetPrincipal(ctx, userID)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	return p, nil
}

// Upgrade устанавливает тариф на durationDays суток от текущего момента, перезаписывая
// прежнее окно подписки. Если тариф даёт право на EA и терминал привязан, выпускается
// токен на тот же срок, иначе все токены пользователя отзываются.
//
// Тариф сохраняется до выпуска токена. При ошибке выпуска вызов можно безопасно повторить.
func (s *Service) Upgrade(ctx context.Context, userID string, tier models.Tier, durationDays int) (*UpgradeResult, error) {
	const op = "services.tier.Upgrade"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	switch {
	case userID == "":
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	case !tier.Valid():
		return nil, fmt.Errorf("%s: %w: unknown tier %q", op, models.ErrInvalidInput, tier)
	case tier == models.TierFree:
		return nil, fmt.Errorf("%s: %w: use downgrade to switch to FREE", op, models.ErrInvalidInput)
	case durationDays <= 0:
		return nil, fmt.Errorf("%s: %w: duration must be positive, got %d", op, models.ErrInvalidInput, durationDays)
	}

	now := s.clock.Now()
	end := now.Add(time.Duration(durationDays) * 24 * time.Hour)
	p, err := s.repo.SetTier(ctx, userID, tier, now, end, now)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	s.invalidate(ctx, userID)
	s.metrics.Upgrade(string(tier))
	log.Info("tier upgraded", slog.String("tier", string(tier)), slog.Time("subscription_end", end))

	result := &UpgradeResult{Principal: p}
	if tier.Policy().EAToken && p.DeviceID != "" {
		tok, err := s.tokens.Issue(ctx, userID, p.DeviceID, tier, durationDays)
		if err != nil {
			log.Error("failed to issue token after upgrade", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result.Token = tok
		return result, nil
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		log.Error("failed to revoke tokens after tier change", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.RevokedTokens = revoked
	return result, nil
}

// DowngradeToFree переводит пользователя на FREE и отзывает все его токены.
func (s *Service) DowngradeToFree(ctx context.Context, userID string) (*models.Principal, error) {
	const op = "services.tier.DowngradeToFree"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	p, err := s.repo.ResetToFree(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	s.invalidate(ctx, userID)

	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.log.Error("failed to revoke tokens on downgrade", slog.String("op", op), slog.String("user_id", userID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Downgraded(1)
	s.log.Info("principal downgraded to FREE",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.Int("revoked_tokens", revoked),
	)
	return p, nil
}

// FindExpired возвращает платных пользователей с истёкшей подпиской.
func (s *Service) FindExpired(ctx context.Context) ([]*models.Principal, error) {
	const op = "services.tier.FindExpired"

	list, err := s.repo.FindExpiredPrincipals(ctx, s.clock.Now())
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	return list, nil
}

// DowngradeExpired понижает до FREE всех пользователей с истёкшей подпиской и отзывает их токены.
// Пользователь, продливший подписку между поиском и понижением, не затрагивается.
// Возвращает фактически пониженных пользователей в состоянии до понижения, то есть
// с прежним тарифом и датой окончания подписки. Ошибки по отдельным пользователям
// не прерывают обработку остальных и возвращаются объединёнными.
func (s *Service) DowngradeExpired(ctx context.Context) ([]*models.Principal, error) {
	const op = "services.tier.DowngradeExpired"
	log := s.log.With(slog.String("op", op))

	expired, err := s.FindExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		downgraded []*models.Principal
		errs       []error
	)
	for _, p := range expired {
		now := s.clock.Now()
		ok, err := s.repo.DowngradeIfExpired(ctx, p.UserID, now)
		if err != nil {
			log.Error("failed to downgrade principal", slog.String("user_id", p.UserID), sl.Err(err))
			errs = append(errs, models.WrapStore(op, err))
			continue
		}
		if !ok {
			log.Info("principal renewed before downgrade", slog.String("user_id", p.UserID))
			continue
		}
		s.invalidate(ctx, p.UserID)

		if _, err := s.tokens.RevokeAllForUser(ctx, p.UserID); err != nil {
			log.Error("failed to revoke tokens of expired principal", slog.String("user_id", p.UserID), sl.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", op, err))
		}

		downgraded = append(downgraded, p)
		log.Info("expired principal downgraded", slog.String("user_id", p.UserID), slog.String("previous_tier", string(p.Tier)))
	}

	s.metrics.Downgraded(len(downgraded))
	return downgraded, errors.Join(errs...)
}

// IncrementDailyQuota учитывает ещё один сигнал за текущие сутки UTC и возвращает счётчик.
// Счётчик не ограничивается лимитом тарифа, остаток считает entitlement.Evaluator.
func (s *Service) IncrementDailyQuota(ctx context.Context, userID string) (int, error) {
	const op = "services.tier.IncrementDailyQuota"

	if userID == "" {
		return 0, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	now := s.clock.Now()
	count, err := s.repo.IncrementDailySignals(ctx, userID, models.UTCDate(now), now)
	if err != nil {
		return 0, models.WrapStore(op, err)
	}
	s.invalidate(ctx, userID)
	return count, nil
}

// LinkDevice привязывает торговый терминал к пользователю.
func (s *Service) LinkDevice(ctx context.Context, userID, deviceID string) error {
	const op = "services.tier.LinkDevice"

	if userID == "" || deviceID == "" {
		return fmt.Errorf("%s: %w: user id and device id are required", op, models.ErrInvalidInput)
	}
	if err := s.repo.SetDevice(ctx, userID, deviceID, s.clock.Now()); err != nil {
		return models.WrapStore(op, err)
	}
	s.invalidate(ctx, userID)
	s.log.Info("device linked", slog.String("op", op), slog.String("user_id", userID))
	return nil
}

// Stats возвращает сводку по подписке пользователя.
func (s *Service) Stats(ctx context.Context, userID string) (*models.PrincipalStats, error) {
	const op = "services.tier.Stats"

	p, err := s.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	stats := &models.PrincipalStats{
		UserID:           p.UserID,
		Username:         p.Username,
		Tier:             p.EffectiveTier(now),
		DeviceLinked:     p.DeviceID != "",
		DailySignalsUsed: entitlement.UsedToday(p, now),
		DailySignalsLeft: s.evaluator.RemainingDailySignals(p, now),
		MemberSince:      p.CreatedAt,
		LastUpdated:      p.UpdatedAt,
	}
	if p.Tier != models.TierFree && p.SubscriptionEnd != nil && !p.Expired(now) {
		stats.SubscriptionActive = true
		stats.DaysRemaining = int(p.SubscriptionEnd.Sub(now).Hours() / 24)
	}
	return stats, nil
}

// ListByTier возвращает пользователей с сохранённым тарифом tier, упорядоченных по user_id.
// Истёкшие подписки, ещё не пониженные планировщиком, попадают в выборку своего тарифа.
func (s *Service) ListByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error) {
	const op = "services.tier.ListByTier"

	if !tier.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown tier %q", op, models.ErrInvalidInput, tier)
	}
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%s: %w: limit and offset must not be negative", op, models.ErrInvalidInput)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	principals, err := s.repo.FindPrincipalsByTier(ctx, tier, limit, offset)
	if err != nil {
		return nil, models.WrapStore(op, err)
	}
	return principals, nil
}

// SetSettings перезаписывает настройки пользователя. settings должен быть JSON-объектом.
func (s *Service) SetSettings(ctx context.Context, userID string, settings json.RawMessage) (*models.Principal, error) {
	const op = "services.tier.SetSettings"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrInvalidInput)
	}
	if len(settings) > MaxSettingsSize {
		return nil, fmt.Errorf("%s: %w: settings exceed %d bytes", op, models.ErrInvalidInput, MaxSettingsSize)
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(settings, &object); err != nil || object == nil {
		return nil, fmt.Errorf("%s: %w: settings must be a JSON object", op, models.ErrInvalidInput)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, settings); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrInvalidInput, err)
	}

	if err := s.repo.SetSettings(ctx, userID, compact.Bytes(), s.clock.Now()); err != nil {
		return nil, models.WrapStore(op, err)
	}
	s.invalidate(ctx, userID)
	s.log.Info("settings updated", slog.String("op", op), slog.String("user_id", userID))

	p, err := s.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CanTradePair сообщает, открыт ли инструмент pair действующему тарифу пользователя.
// Читает хранилище в обход кеша.
func (s *Service) CanTradePair(ctx context.Context, userID, pair string) (bool, error) {
	const op = "services.tier.CanTradePair"

	if strings.TrimSpace(pair) == "" {
		return false, fmt.Errorf("%s: %w: empty pair", op, models.ErrInvalidInput)
	}
	p, err := s.Load(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return s.evaluator.CanTradePair(p, pair, s.clock.Now()), nil
}
