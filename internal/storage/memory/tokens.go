package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

// DeactivateAndInsert деактивирует активные токены пользователя и сохраняет новый.
func (s *Storage) DeactivateAndInsert(ctx context.Context, token models.Token) (int, error) {
	const op = "storage.memory.DeactivateAndInsert"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Token]; exists {
		return 0, fmt.Errorf("%s: %w", op, models.ErrTokenCollision)
	}
	deactivated := 0
	for _, t := range s.tokens {
		if t.UserID == token.UserID && t.IsActive {
			t.IsActive = false
			deactivated++
		}
	}
	s.tokens[token.Token] = copyToken(&token)
	return deactivated, nil
}

// FindByToken возвращает токен по значению.
func (s *Storage) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	const op = "storage.memory.FindByToken"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return copyToken(t), nil
}

// DeactivateIfExpired деактивирует токен, если он активен и истёк к моменту now.
func (s *Storage) DeactivateIfExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	const op = "storage.memory.DeactivateIfExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !t.IsActive || now.Before(t.ExpiresAt) {
		return false, nil
	}
	t.IsActive = false
	return true, nil
}

// RecordUsage увеличивает счётчик использований активного токена.
func (s *Storage) RecordUsage(ctx context.Context, token string, now time.Time) error {
	const op = "storage.memory.RecordUsage"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !t.IsActive {
		return nil
	}
	used := now
	t.LastUsedAt = &used
	t.UsageCount++
	return nil
}

// ExtendExpiry сдвигает срок действия токена на days суток от текущего значения.
func (s *Storage) ExtendExpiry(ctx context.Context, token string, days int) (*models.Token, error) {
	const op = "storage.memory.ExtendExpiry"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	t.ExpiresAt = addDays(t.ExpiresAt, days)
	return copyToken(t), nil
}

// Deactivate выключает токен и сообщает, был ли он активен.
func (s *Storage) Deactivate(ctx context.Context, token string) (bool, error) {
	const op = "storage.memory.Deactivate"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	wasActive := t.IsActive
	t.IsActive = false
	return wasActive, nil
}

// DeactivateAllForUser выключает все активные токены пользователя.
func (s *Storage) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	const op = "storage.memory.DeactivateAllForUser"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive {
			t.IsActive = false
			count++
		}
	}
	return count, nil
}

// DeactivateExpired выключает активные токены с expires_at < now.
func (s *Storage) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.memory.DeactivateExpired"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.tokens {
		if t.IsActive && t.ExpiresAt.Before(now) {
			t.IsActive = false
			count++
		}
	}
	return count, nil
}

// FindActiveByUser возвращает активные токены пользователя.
func (s *Storage) FindActiveByUser(ctx context.Context, userID string) ([]*models.Token, error) {
	const op = "storage.memory.FindActiveByUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Token
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive {
			result = append(result, copyToken(t))
		}
	}
	sortTokens(result)
	return result, nil
}

// FindActiveByDevice возвращает активный токен, привязанный к терминалу.
func (s *Storage) FindActiveByDevice(ctx context.Context, deviceID string) (*models.Token, error) {
	const op = "storage.memory.FindActiveByDevice"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.Token
	for _, t := range s.tokens {
		if t.BoundDeviceID == deviceID && t.IsActive {
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = t
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return copyToken(found), nil
}
