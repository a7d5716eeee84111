package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

const (
	tokenColumns = `token, user_id, bound_device_id, tier, is_active, expires_at,
			      created_at, last_used_at, usage_count`
	tokenPrimaryKey = "ea_tokens_pkey"
)

func scanToken(row rowScanner) (*models.Token, error) {
	var t models.Token
	var tier string
	var lastUsed sql.NullTime
	if err := row.Scan(&t.Token, &t.UserID, &t.BoundDeviceID, &tier, &t.IsActive,
		&t.ExpiresAt, &t.CreatedAt, &lastUsed, &t.UsageCount); err != nil {
		return nil, err
	}
	t.Tier = models.Tier(tier)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if lastUsed.Valid {
		lu := lastUsed.Time.UTC()
		t.LastUsedAt = &lu
	}
	return &t, nil
}

func (s *Storage) queryTokens(ctx context.Context, op, query string, args ...any) ([]*models.Token, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeactivateAndInsert в одной транзакции деактивирует активные токены пользователя
// и сохраняет новый. Транзакции одного пользователя сериализуются advisory-блокировкой.
// Возвращает количество деактивированных токенов.
func (s *Storage) DeactivateAndInsert(ctx context.Context, token models.Token) (int, error) {
	const op = "storage.DeactivateAndInsert"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, token.UserID); err != nil {
		return 0, fmt.Errorf("%s: lock: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE ea_tokens
			  SET is_active = false
			  WHERE user_id = $1 AND is_active = true`, token.UserID)
	if err != nil {
		return 0, fmt.Errorf("%s: deactivate: %w", op, err)
	}
	deactivated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO ea_tokens (token, user_id, bound_device_id, tier, is_active,
			      expires_at, created_at, usage_count)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`
	if _, err = tx.ExecContext(ctx, query, token.Token, token.UserID, token.BoundDeviceID,
		string(token.Tier), token.IsActive, token.ExpiresAt, token.CreatedAt); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == tokenPrimaryKey {
			return 0, fmt.Errorf("%s: %w", op, models.ErrTokenCollision)
		}
		return 0, fmt.Errorf("%s: insert: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}
	return int(deactivated), nil
}

// FindByToken возвращает токен по значению.
func (s *Storage) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	const op = "storage.FindByToken"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + tokenColumns + `
			  FROM ea_tokens
			  WHERE token = $1`
	t, err := scanToken(s.DB.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// DeactivateIfExpired выключает токен, только если он активен и истёк к моменту now.
func (s *Storage) DeactivateIfExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	const op = "storage.DeactivateIfExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE ea_tokens
			  SET is_active = false
			  WHERE token = $1
			    AND is_active = true
			    AND expires_at <= $2`
	res, err := s.DB.ExecContext(ctx, query, token, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// RecordUsage атомарно увеличивает счётчик использований активного токена.
func (s *Storage) RecordUsage(ctx context.Context, token string, now time.Time) error {
	const op = "storage.RecordUsage"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE ea_tokens
			  SET usage_count = usage_count + 1, last_used_at = $2
			  WHERE token = $1 AND is_active = true`
	if _, err := s.DB.ExecContext(ctx, query, token, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExtendExpiry сдвигает срок действия токена на days суток от текущего значения expires_at.
func (s *Storage) ExtendExpiry(ctx context.Context, token string, days int) (*models.Token, error) {
	const op = "storage.ExtendExpiry"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE ea_tokens
			  SET expires_at = expires_at + make_interval(hours => $2)
			  WHERE token = $1
			  RETURNING ` + tokenColumns
	t, err := scanToken(s.DB.QueryRowContext(ctx, query, token, days*24))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// Deactivate выключает токен и сообщает, был ли он активен до вызова.
func (s *Storage) Deactivate(ctx context.Context, token string) (bool, error) {
	const op = "storage.Deactivate"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE ea_tokens t
			  SET is_active = false
			  FROM (SELECT token, is_active FROM ea_tokens WHERE token = $1 FOR UPDATE) prev
			  WHERE t.token = prev.token
			  RETURNING prev.is_active`
	var wasActive bool
	err := s.DB.QueryRowContext(ctx, query, token).Scan(&wasActive)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return wasActive, nil
}

// DeactivateAllForUser выключает все активные токены пользователя.
func (s *Storage) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	const op = "storage.DeactivateAllForUser"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `UPDATE ea_tokens
			  SET is_active = false
			  WHERE user_id = $1 AND is_active = true`
	res, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeactivateExpired выключает активные токены с expires_at < now.
func (s *Storage) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.DeactivateExpired"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `UPDATE ea_tokens
			  SET is_active = false
			  WHERE is_active = true AND expires_at < $1`
	res, err := s.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// FindActiveByUser возвращает активные токены пользователя.
func (s *Storage) FindActiveByUser(ctx context.Context, userID string) ([]*models.Token, error) {
	const op = "storage.FindActiveByUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + tokenColumns + `
			  FROM ea_tokens
			  WHERE user_id = $1 AND is_active = true
			  ORDER BY created_at`
	return s.queryTokens(ctx, op, query, userID)
}

// FindActiveByDevice возвращает последний активный токен, привязанный к терминалу.
func (s *Storage) FindActiveByDevice(ctx context.Context, deviceID string) (*models.Token, error) {
	const op = "storage.FindActiveByDevice"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + tokenColumns + `
			  FROM ea_tokens
			  WHERE bound_device_id = $1 AND is_active = true
			  ORDER BY created_at DESC
			  LIMIT 1`
	t, err := scanToken(s.DB.QueryRowContext(ctx, query, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}
