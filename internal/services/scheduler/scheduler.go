// Package scheduler периодически запускает очистку истёкших токенов и подписок
// и публикует события для внешнего нотификатора.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// DefaultInterval период запуска очистки.
const DefaultInterval = time.Hour

// TokenSweeper выключает истёкшие токены.
type TokenSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpiryDowngrader понижает пользователей с истёкшей подпиской.
type ExpiryDowngrader interface {
	DowngradeExpired(ctx context.Context) ([]*models.Principal, error)
}

// Publisher отправляет события во внешнюю шину.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Report результат одного прохода очистки.
type Report struct {
	TokensSwept int
	Downgraded  int
}

// Service запускает очистку по таймеру.
type Service struct {
	tokens    TokenSweeper
	tiers     ExpiryDowngrader
	publisher Publisher
	clock     clock.Clock
	log       *slog.Logger
	interval  time.Duration
}

// NewService создаёт планировщик. publisher может быть nil, тогда события не публикуются.
func NewService(tokens TokenSweeper, tiers ExpiryDowngrader, publisher Publisher, clk clock.Clock, log *slog.Logger, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		tokens:    tokens,
		tiers:     tiers,
		publisher: publisher,
		clock:     clk,
		log:       log,
		interval:  interval,
	}
}

// Run выполняет очистку сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context) error {
	s.runOnceLogged(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.Chan():
			s.runOnceLogged(ctx)
		}
	}
}

func (s *Service) runOnceLogged(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("sweep finished with errors", sl.Err(err))
	}
	s.log.Info("sweep finished",
		slog.Int("tokens_swept", report.TokensSwept),
		slog.Int("downgraded", report.Downgraded),
	)
}

// RunOnce выключает истёкшие токены, затем понижает истёкшие подписки.
// Ошибка одного шага не отменяет другой.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	const op = "services.scheduler.RunOnce"
	var (
		report Report
		errs   []error
	)

	swept, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: sweep tokens: %w", op, err))
	} else {
		report.TokensSwept = swept
		if swept > 0 {
			s.publish(ctx, rabbitmq.RoutingTokensSwept, models.TokensSweptEvent{
				Count:   swept,
				SweptAt: s.clock.Now(),
			})
		}
	}

	downgraded, err := s.tiers.DowngradeExpired(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: downgrade expired: %w", op, err))
	}
	report.Downgraded = len(downgraded)
	for _, p := range downgraded {
		event := models.DowngradedEvent{
			UserID:       p.UserID,
			Username:     p.Username,
			PreviousTier: p.Tier,
		}
		if p.SubscriptionEnd != nil {
			event.ExpiredAt = *p.SubscriptionEnd
		}
		s.publish(ctx, rabbitmq.RoutingDowngraded, event)
	}

	return report, errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, routingKey string, message any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, message); err != nil {
		s.log.Error("failed to publish event", slog.String("routing_key", routingKey), sl.Err(err))
	}
}
