package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/metrics"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) DeactivateAndInsert(ctx context.Context, token models.Token) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Token), args.Error(1)
}
func (m *RepoMock) DeactivateIfExpired(ctx context.Context, token string, at time.Time) (bool, error) {
	args := m.Called(ctx, token, at)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) RecordUsage(ctx context.Context, token string, at time.Time) error {
	return m.Called(ctx, token, at).Error(0)
}
func (m *RepoMock) ExtendExpiry(ctx context.Context, token string, days int) (*models.Token, error) {
	args := m.Called(ctx, token, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Token), args.Error(1)
}
func (m *RepoMock) Deactivate(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) DeactivateExpired(ctx context.Context, at time.Time) (int, error) {
	args := m.Called(ctx, at)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) FindActiveByUser(ctx context.Context, userID string) ([]*models.Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Token), args.Error(1)
}
func (m *RepoMock) FindActiveByDevice(ctx context.Context, deviceID string) (*models.Token, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Token), args.Error(1)
}

// seqGenerator выдаёт заранее заданные значения по порядку.
type seqGenerator struct {
	values []string
	err    error
	calls  int
}

func (g *seqGenerator) Generate() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	v := g.values[g.calls%len(g.values)]
	g.calls++
	return v, nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newTestService(repo Repository, gen Generator) *Service {
	return NewService(repo, gen, clock.NewFake(now), newNoopLogger(), metrics.New(prometheus.NewRegistry()), 3)
}

func TestService_Issue(t *testing.T) {
	dbErr := errors.New("connection reset")

	tests := []struct {
		name       string
		userID     string
		deviceID   string
		tier       models.Tier
		days       int
		gen        *seqGenerator
		setupMocks func(r *RepoMock)
		wantErr    error
		wantToken  string
	}{
		{
			name:     "success",
			userID:   "u1",
			deviceID: "mt5-1",
			tier:     models.TierSuper,
			days:     30,
			gen:      &seqGenerator{values: []string{"AB12CD34"}},
			setupMocks: func(r *RepoMock) {
				r.On("DeactivateAndInsert", mock.Anything, mock.MatchedBy(func(tok models.Token) bool {
					return tok.Token == "AB12CD34" &&
						tok.UserID == "u1" &&
						tok.BoundDeviceID == "mt5-1" &&
						tok.IsActive &&
						tok.ExpiresAt.Equal(now.AddDate(0, 0, 30))
				})).Return(1, nil).Once()
			},
			wantToken: "AB12CD34",
		},
		{
			name:     "retries on collision",
			userID:   "u1",
			deviceID: "mt5-1",
			tier:     models.TierSupreme,
			days:     7,
			gen:      &seqGenerator{values: []string{"DUPLICAT", "FRESH001"}},
			setupMocks: func(r *RepoMock) {
				r.On("DeactivateAndInsert", mock.Anything, mock.MatchedBy(func(tok models.Token) bool {
					return tok.Token == "DUPLICAT"
				})).Return(0, models.ErrTokenCollision).Once()
				r.On("DeactivateAndInsert", mock.Anything, mock.MatchedBy(func(tok models.Token) bool {
					return tok.Token == "FRESH001"
				})).Return(0, nil).Once()
			},
			wantToken: "FRESH001",
		},
		{
			name:     "collision attempts exhausted",
			userID:   "u1",
			deviceID: "mt5-1",
			tier:     models.TierSuper,
			days:     7,
			gen:      &seqGenerator{values: []string{"DUPLICAT"}},
			setupMocks: func(r *RepoMock) {
				r.On("DeactivateAndInsert", mock.Anything, mock.Anything).Return(0, models.ErrTokenCollision).Times(3)
			},
			wantErr: models.ErrTokenCollision,
		},
		{
			name:     "store failure",
			userID:   "u1",
			deviceID: "mt5-1",
			tier:     models.TierSuper,
			days:     7,
			gen:      &seqGenerator{values: []string{"AB12CD34"}},
			setupMocks: func(r *RepoMock) {
				r.On("DeactivateAndInsert", mock.Anything, mock.Anything).Return(0, dbErr).Once()
			},
			wantErr: models.ErrStoreFailure,
		},
		{
			name:       "generator failure",
			userID:     "u1",
			deviceID:   "mt5-1",
			tier:       models.TierSuper,
			days:       7,
			gen:        &seqGenerator{err: io.ErrUnexpectedEOF},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    io.ErrUnexpectedEOF,
		},
		{
			name: "empty user", deviceID: "mt5-1", tier: models.TierSuper, days: 1,
			gen: &seqGenerator{values: []string{"X"}}, setupMocks: func(_ *RepoMock) {},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "empty device", userID: "u1", tier: models.TierSuper, days: 1,
			gen: &seqGenerator{values: []string{"X"}}, setupMocks: func(_ *RepoMock) {},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "zero duration", userID: "u1", deviceID: "mt5-1", tier: models.TierSuper,
			gen: &seqGenerator{values: []string{"X"}}, setupMocks: func(_ *RepoMock) {},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "unknown tier", userID: "u1", deviceID: "mt5-1", tier: models.Tier("GOLD"), days: 1,
			gen: &seqGenerator{values: []string{"X"}}, setupMocks: func(_ *RepoMock) {},
			wantErr: models.ErrInvalidInput,
		},
		{
			name: "tier without ea tokens", userID: "u1", deviceID: "mt5-1", tier: models.TierPremium, days: 1,
			gen: &seqGenerator{values: []string{"X"}}, setupMocks: func(_ *RepoMock) {},
			wantErr: models.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, tt.gen)

			got, err := svc.Issue(context.Background(), tt.userID, tt.deviceID, tt.tier, tt.days)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, got.Token)
				assert.Equal(t, tt.tier, got.Tier)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Validate(t *testing.T) {
	active := &models.Token{
		Token: "AB12CD34", UserID: "u1", BoundDeviceID: "mt5-1", Tier: models.TierSuper,
		IsActive: true, ExpiresAt: now.Add(time.Hour),
	}
	expired := &models.Token{
		Token: "EXP00001", UserID: "u1", BoundDeviceID: "mt5-1", Tier: models.TierSuper,
		IsActive: true, ExpiresAt: now,
	}
	inactive := &models.Token{
		Token: "OFF00001", UserID: "u1", BoundDeviceID: "mt5-1", Tier: models.TierSuper,
		IsActive: false, ExpiresAt: now.Add(time.Hour),
	}

	tests := []struct {
		name       string
		token      string
		deviceID   string
		setupMocks func(r *RepoMock)
		wantValid  bool
		wantReason error
		wantErr    error
	}{
		{
			name:     "valid token records usage",
			token:    "AB12CD34",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "AB12CD34").Return(active, nil).Once()
				r.On("RecordUsage", mock.Anything, "AB12CD34", now).Return(nil).Once()
			},
			wantValid: true,
		},
		{
			name:     "usage write failure does not invalidate",
			token:    "AB12CD34",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "AB12CD34").Return(active, nil).Once()
				r.On("RecordUsage", mock.Anything, "AB12CD34", now).Return(errors.New("timeout")).Once()
			},
			wantValid: true,
		},
		{
			name:     "not found",
			token:    "NOPE0000",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "NOPE0000").Return(nil, models.ErrNotFound).Once()
			},
			wantReason: models.ErrNotFound,
		},
		{
			name:       "empty token",
			setupMocks: func(_ *RepoMock) {},
			wantReason: models.ErrNotFound,
		},
		{
			name:     "inactive",
			token:    "OFF00001",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "OFF00001").Return(inactive, nil).Once()
			},
			wantReason: models.ErrInactive,
		},
		{
			name:     "device mismatch hides expiry",
			token:    "EXP00001",
			deviceID: "mt5-other",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "EXP00001").Return(expired, nil).Once()
			},
			wantReason: models.ErrDeviceMismatch,
		},
		{
			name:     "expired deactivates",
			token:    "EXP00001",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "EXP00001").Return(expired, nil).Once()
				r.On("DeactivateIfExpired", mock.Anything, "EXP00001", now).Return(true, nil).Once()
			},
			wantReason: models.ErrExpired,
		},
		{
			name:     "expired side write failure keeps expired result",
			token:    "EXP00001",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "EXP00001").Return(expired, nil).Once()
				r.On("DeactivateIfExpired", mock.Anything, "EXP00001", now).Return(false, errors.New("db down")).Once()
			},
			wantReason: models.ErrExpired,
		},
		{
			name:     "read failure is store failure",
			token:    "AB12CD34",
			deviceID: "mt5-1",
			setupMocks: func(r *RepoMock) {
				r.On("FindByToken", mock.Anything, "AB12CD34").Return(nil, errors.New("db down")).Once()
			},
			wantErr: models.ErrStoreFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, &seqGenerator{values: []string{"UNUSED00"}})

			res, err := svc.Validate(context.Background(), tt.token, tt.deviceID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				repo.AssertExpectations(t)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantReason != nil {
				assert.ErrorIs(t, res.Reason, tt.wantReason)
				assert.Empty(t, res.UserID)
			} else {
				assert.NoError(t, res.Reason)
				assert.Equal(t, "u1", res.UserID)
				assert.Equal(t, models.TierSuper, res.Tier)
				require.NotNil(t, res.ExpiresAt)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Extend(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		days       int
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name:  "success",
			token: "AB12CD34",
			days:  5,
			setupMocks: func(r *RepoMock) {
				r.On("ExtendExpiry", mock.Anything, "AB12CD34", 5).
					Return(&models.Token{Token: "AB12CD34", ExpiresAt: now.AddDate(0, 0, 5)}, nil).Once()
			},
		},
		{
			name:  "not found",
			token: "NOPE0000",
			days:  5,
			setupMocks: func(r *RepoMock) {
				r.On("ExtendExpiry", mock.Anything, "NOPE0000", 5).Return(nil, models.ErrNotFound).Once()
			},
			wantErr: models.ErrNotFound,
		},
		{
			name:  "store failure",
			token: "AB12CD34",
			days:  5,
			setupMocks: func(r *RepoMock) {
				r.On("ExtendExpiry", mock.Anything, "AB12CD34", 5).Return(nil, errors.New("db down")).Once()
			},
			wantErr: models.ErrStoreFailure,
		},
		{name: "non positive days", token: "AB12CD34", setupMocks: func(_ *RepoMock) {}, wantErr: models.ErrInvalidInput},
		{name: "empty token", days: 5, setupMocks: func(_ *RepoMock) {}, wantErr: models.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, &seqGenerator{values: []string{"UNUSED00"}})

			got, err := svc.Extend(context.Background(), tt.token, tt.days)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.token, got.Token)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_RevokeAndSweep(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, &seqGenerator{values: []string{"UNUSED00"}})
	ctx := context.Background()

	repo.On("Deactivate", mock.Anything, "AB12CD34").Return(true, nil).Once()
	repo.On("Deactivate", mock.Anything, "AB12CD34").Return(false, nil).Once()
	repo.On("Deactivate", mock.Anything, "NOPE0000").Return(false, models.ErrNotFound).Once()
	repo.On("DeactivateAllForUser", mock.Anything, "u1").Return(2, nil).Once()
	repo.On("DeactivateExpired", mock.Anything, now).Return(4, nil).Once()

	wasActive, err := svc.Revoke(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.True(t, wasActive)

	wasActive, err = svc.Revoke(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.False(t, wasActive)

	_, err = svc.Revoke(ctx, "NOPE0000")
	require.ErrorIs(t, err, models.ErrNotFound)

	n, err := svc.RevokeAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.RevokeAllForUser(ctx, "")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	repo.AssertExpectations(t)
}

func TestService_ActiveForDevice(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, &seqGenerator{values: []string{"UNUSED00"}})
	ctx := context.Background()

	repo.On("FindActiveByDevice", mock.Anything, "mt5-1").
		Return(&models.Token{Token: "AB12CD34", IsActive: true, ExpiresAt: now.Add(time.Hour)}, nil).Once()
	repo.On("FindActiveByDevice", mock.Anything, "mt5-stale").
		Return(&models.Token{Token: "OLD00000", IsActive: true, ExpiresAt: now.Add(-time.Hour)}, nil).Once()

	got, err := svc.ActiveForDevice(ctx, "mt5-1")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", got.Token)

	_, err = svc.ActiveForDevice(ctx, "mt5-stale")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.ActiveForDevice(ctx, "")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	repo.AssertExpectations(t)
}
