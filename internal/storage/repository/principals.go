package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

const principalColumns = `user_id, username, tier, device_id, subscription_start, subscription_end,
			      daily_signal_count, daily_signal_reset_date, settings, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	var p models.Principal
	var tier string
	var start, end sql.NullTime
	var settings []byte
	if err := row.Scan(&p.UserID, &p.Username, &tier, &p.DeviceID, &start, &end,
		&p.DailySignalCount, &p.DailySignalResetDate, &settings, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Settings = json.RawMessage(settings)
	p.Tier = models.Tier(tier)
	if start.Valid {
		t := start.Time.UTC()
		p.SubscriptionStart = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		p.SubscriptionEnd = &t
	}
	p.DailySignalResetDate = models.UTCDate(p.DailySignalResetDate)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// CreatePrincipal сохраняет пользователя, если его ещё нет.
// Возвращает сохранённую запись и признак того, что она была создана.
func (s *Storage) CreatePrincipal(ctx context.Context, p models.Principal) (*models.Principal, bool, error) {
	const op = "storage.CreatePrincipal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	query := `INSERT INTO principals (user_id, username, tier, device_id, daily_signal_count,
			      daily_signal_reset_date, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
			  ON CONFLICT (user_id) DO NOTHING
			  RETURNING ` + principalColumns
	created, err := scanPrincipal(s.DB.QueryRowContext(ctx, query,
		p.UserID, p.Username, string(p.Tier), p.DeviceID, p.DailySignalResetDate, p.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	existing, err := s.GetPrincipal(ctx, p.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// GetPrincipal возвращает пользователя по идентификатору.
func (s *Storage) GetPrincipal(ctx context.Context, userID string) (*models.Principal, error) {
	const op = "storage.GetPrincipal"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + principalColumns + `
			  FROM principals
			  WHERE user_id = $1`
	p, err := scanPrincipal(s.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// SetTier устанавливает тариф и окно подписки, перезаписывая предыдущее.
func (s *Storage) SetTier(ctx context.Context, userID string, tier models.Tier, start, end, now time.Time) (*models.Principal, error) {
	const op = "storage.SetTier"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE principals
			  SET tier = $2, subscription_start = $3, subscription_end = $4, updated_at = $5
			  WHERE user_id = $1
			  RETURNING ` + principalColumns
	p, err := scanPrincipal(s.DB.QueryRowContext(ctx, query, userID, string(tier), start, end, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ResetToFree переводит пользователя на FREE безусловно.
func (s *Storage) ResetToFree(ctx context.Context, userID string, now time.Time) (*models.Principal, error) {
	const op = "storage.ResetToFree"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE principals
			  SET tier = 'FREE', subscription_end = NULL, updated_at = $2
			  WHERE user_id = $1
			  RETURNING ` + principalColumns
	p, err := scanPrincipal(s.DB.QueryRowContext(ctx, query, userID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// DowngradeIfExpired переводит пользователя на FREE, только если его платная подписка
// всё ещё истёкшая на момент now. Продление, выполненное между поиском и понижением, не теряется.
func (s *Storage) DowngradeIfExpired(ctx context.Context, userID string, now time.Time) (bool, error) {
	const op = "storage.DowngradeIfExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE principals
			  SET tier = 'FREE', subscription_end = NULL, updated_at = $2
			  WHERE user_id = $1
			    AND tier <> 'FREE'
			    AND subscription_end < $2`
	res, err := s.DB.ExecContext(ctx, query, userID, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// FindExpiredPrincipals возвращает платных пользователей с subscription_end < now.
func (s *Storage) FindExpiredPrincipals(ctx context.Context, now time.Time) ([]*models.Principal, error) {
	const op = "storage.FindExpiredPrincipals"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + principalColumns + `
			  FROM principals
			  WHERE tier <> 'FREE'
			    AND subscription_end < $1
			  ORDER BY user_id`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IncrementDailySignals увеличивает дневной счётчик сигналов одним запросом,
// сбрасывая его в 1 при смене даты.
func (s *Storage) IncrementDailySignals(ctx context.Context, userID string, today, now time.Time) (int, error) {
	const op = "storage.IncrementDailySignals"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `UPDATE principals
			  SET daily_signal_count = CASE
			          WHEN daily_signal_reset_date = $2::date THEN daily_signal_count + 1
			          ELSE 1
			      END,
			      daily_signal_reset_date = $2::date,
			      updated_at = $3
			  WHERE user_id = $1
			  RETURNING daily_signal_count`
	var count int
	err := s.DB.QueryRowContext(ctx, query, userID, today, now).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// SetDevice привязывает торговый терминал к пользователю.
func (s *Storage) SetDevice(ctx context.Context, userID, deviceID string, now time.Time) error {
	const op = "storage.SetDevice"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE principals
			  SET device_id = $2, updated_at = $3
			  WHERE user_id = $1`
	res, err := s.DB.ExecContext(ctx, query, userID, deviceID, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// FindPrincipalsByTier возвращает страницу пользователей с сохранённым тарифом tier,
// упорядоченную по user_id. limit <= 0 снимает ограничение.
func (s *Storage) FindPrincipalsByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error) {
	const op = "storage.FindPrincipalsByTier"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + principalColumns + `
			  FROM principals
			  WHERE tier = $1
			  ORDER BY user_id
			  LIMIT NULLIF($2, 0) OFFSET $3`
	if limit < 0 {
		limit = 0
	}
	rows, err := s.DB.QueryContext(ctx, query, string(tier), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SetSettings перезаписывает настройки пользователя.
func (s *Storage) SetSettings(ctx context.Context, userID string, settings json.RawMessage, now time.Time) error {
	const op = "storage.SetSettings"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE principals
			  SET settings = $2::jsonb, updated_at = $3
			  WHERE user_id = $1`
	res, err := s.DB.ExecContext(ctx, query, userID, string(settings), now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
