package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type MockTokens struct{ mock.Mock }

func (m *MockTokens) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockTiers struct{ mock.Mock }

func (m *MockTiers) DowngradeExpired(ctx context.Context) ([]*models.Principal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Principal), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_RunOnce(t *testing.T) {
	end := now.Add(-time.Hour)
	expired := []*models.Principal{
		{UserID: "u1", Username: "alice", Tier: models.TierSuper, SubscriptionEnd: &end},
	}

	tests := []struct {
		name       string
		setupMocks func(tk *MockTokens, tr *MockTiers, p *MockPublisher)
		want       Report
		wantErr    bool
	}{
		{
			name: "publishes events",
			setupMocks: func(tk *MockTokens, tr *MockTiers, p *MockPublisher) {
				tk.On("SweepExpired", mock.Anything).Return(2, nil).Once()
				tr.On("DowngradeExpired", mock.Anything).Return(expired, nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.RoutingTokensSwept,
					models.TokensSweptEvent{Count: 2, SweptAt: now}).Return(nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.RoutingDowngraded, models.DowngradedEvent{
					UserID: "u1", Username: "alice", PreviousTier: models.TierSuper, ExpiredAt: end,
				}).Return(nil).Once()
			},
			want: Report{TokensSwept: 2, Downgraded: 1},
		},
		{
			name: "nothing to do publishes nothing",
			setupMocks: func(tk *MockTokens, tr *MockTiers, _ *MockPublisher) {
				tk.On("SweepExpired", mock.Anything).Return(0, nil).Once()
				tr.On("DowngradeExpired", mock.Anything).Return(nil, nil).Once()
			},
		},
		{
			name: "sweep failure does not skip downgrade",
			setupMocks: func(tk *MockTokens, tr *MockTiers, p *MockPublisher) {
				tk.On("SweepExpired", mock.Anything).Return(0, models.ErrStoreFailure).Once()
				tr.On("DowngradeExpired", mock.Anything).Return(expired, nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.RoutingDowngraded, mock.Anything).Return(nil).Once()
			},
			want:    Report{Downgraded: 1},
			wantErr: true,
		},
		{
			name: "publish failure is not fatal",
			setupMocks: func(tk *MockTokens, tr *MockTiers, p *MockPublisher) {
				tk.On("SweepExpired", mock.Anything).Return(1, nil).Once()
				tr.On("DowngradeExpired", mock.Anything).Return(nil, nil).Once()
				p.On("Publish", mock.Anything, rabbitmq.RoutingTokensSwept, mock.Anything).
					Return(errors.New("channel closed")).Once()
			},
			want: Report{TokensSwept: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, tr, p := new(MockTokens), new(MockTiers), new(MockPublisher)
			tt.setupMocks(tk, tr, p)
			svc := NewService(tk, tr, p, clock.NewFake(now), newNoopLogger(), time.Hour)

			got, err := svc.RunOnce(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			tk.AssertExpectations(t)
			tr.AssertExpectations(t)
			p.AssertExpectations(t)
		})
	}
}

func TestService_RunOnceWithoutPublisher(t *testing.T) {
	tk, tr := new(MockTokens), new(MockTiers)
	tk.On("SweepExpired", mock.Anything).Return(3, nil).Once()
	tr.On("DowngradeExpired", mock.Anything).Return(nil, nil).Once()
	svc := NewService(tk, tr, nil, clock.NewFake(now), newNoopLogger(), 0)

	got, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got.TokensSwept)
}

func TestService_RunTicks(t *testing.T) {
	clk := clock.NewFake(now)
	tk, tr := new(MockTokens), new(MockTiers)
	runs := make(chan struct{}, 4)
	tk.On("SweepExpired", mock.Anything).Return(0, nil).Run(func(_ mock.Arguments) {
		runs <- struct{}{}
	})
	tr.On("DowngradeExpired", mock.Anything).Return(nil, nil)
	svc := NewService(tk, tr, nil, clk, newNoopLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitRun := func() {
		t.Helper()
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatal("sweep did not run")
		}
	}

	waitRun()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(time.Hour)
	waitRun()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
