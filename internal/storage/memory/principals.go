package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

// CreatePrincipal сохраняет пользователя, если его ещё нет.
// Возвращает сохранённую запись и признак того, что она была создана.
func (s *Storage) CreatePrincipal(ctx context.Context, p models.Principal) (*models.Principal, bool, error) {
	const op = "storage.memory.CreatePrincipal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.principals[p.UserID]; ok {
		return copyPrincipal(existing), false, nil
	}
	if len(p.Settings) == 0 {
		p.Settings = json.RawMessage(models.EmptySettings)
	}
	s.principals[p.UserID] = copyPrincipal(&p)
	return copyPrincipal(&p), true, nil
}

// GetPrincipal возвращает пользователя по идентификатору.
func (s *Storage) GetPrincipal(ctx context.Context, userID string) (*models.Principal, error) {
	const op = "storage.memory.GetPrincipal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return copyPrincipal(p), nil
}

// SetTier устанавливает тариф и окно подписки, перезаписывая предыдущее.
func (s *Storage) SetTier(ctx context.Context, userID string, tier models.Tier, start, end, now time.Time) (*models.Principal, error) {
	const op = "storage.memory.SetTier"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	p.Tier = tier
	p.SubscriptionStart = &start
	p.SubscriptionEnd = &end
	p.UpdatedAt = now
	return copyPrincipal(p), nil
}

// ResetToFree переводит пользователя на FREE безусловно.
func (s *Storage) ResetToFree(ctx context.Context, userID string, now time.Time) (*models.Principal, error) {
	const op = "storage.memory.ResetToFree"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	p.Tier = models.TierFree
	p.SubscriptionEnd = nil
	p.UpdatedAt = now
	return copyPrincipal(p), nil
}

// DowngradeIfExpired переводит пользователя на FREE, только если его платная подписка
// всё ещё истёкшая на момент now.
func (s *Storage) DowngradeIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	const op = "storage.memory.DowngradeIfExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok || !p.Expired(now) {
		return false, nil
	}
	p.Tier = models.TierFree
	p.SubscriptionEnd = nil
	p.UpdatedAt = now
	return true, nil
}

// FindExpiredPrincipals возвращает платных пользователей с subscription_end < now.
func (s *Storage) FindExpiredPrincipals(ctx context.Context, now time.Time) ([]*models.Principal, error) {
	const op = "storage.memory.FindExpiredPrincipals"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Principal
	for _, p := range s.principals {
		if p.Expired(now) {
			result = append(result, copyPrincipal(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

// IncrementDailySignals увеличивает дневной счётчик сигналов, сбрасывая его в 1 при смене даты.
func (s *Storage) IncrementDailySignals(ctx context.Context, userID string, today, now time.Time) (int, error) {
	const op = "storage.memory.IncrementDailySignals"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if p.DailySignalResetDate.Equal(today) {
		p.DailySignalCount++
	} else {
		p.DailySignalCount = 1
		p.DailySignalResetDate = today
	}
	p.UpdatedAt = now
	return p.DailySignalCount, nil
}

// SetDevice привязывает торговый терминал к пользователю.
func (s *Storage) SetDevice(ctx context.Context, userID, deviceID string, now time.Time) error {
	const op = "storage.memory.SetDevice"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	p.DeviceID = deviceID
	p.UpdatedAt = now
	return nil
}

// FindPrincipalsByTier возвращает страницу пользователей с сохранённым тарифом tier,
// упорядоченную по user_id.
func (s *Storage) FindPrincipalsByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error) {
	const op = "storage.memory.FindPrincipalsByTier"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Principal
	for _, p := range s.principals {
		if p.Tier == tier {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UserID < matched[j].UserID })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	result := make([]*models.Principal, 0, len(matched))
	for _, p := range matched {
		result = append(result, copyPrincipal(p))
	}
	return result, nil
}

// SetSettings перезаписывает настройки пользователя.
func (s *Storage) SetSettings(ctx context.Context, userID string, settings json.RawMessage, now time.Time) error {
	const op = "storage.memory.SetSettings"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	p.Settings = bytes.Clone(settings)
	p.UpdatedAt = now
	return nil
}
