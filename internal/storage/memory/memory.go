// Package memory реализует хранилище токенов и пользователей в памяти процесса.
//
// Используется в тестах и при storage.type = memory. Каждая операция выполняется
// под общей блокировкой, поэтому составные операции (деактивация и вставка,
// условный инкремент) атомарны так же, как транзакции PostgreSQL.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Storage хранилище в памяти.
type Storage struct {
	mu         sync.Mutex
	tokens     map[string]*models.Token
	principals map[string]*models.Principal
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		tokens:     make(map[string]*models.Token),
		principals: make(map[string]*models.Principal),
	}
}

// Ping всегда успешен, пока контекст не отменён.
func (s *Storage) Ping(ctx context.Context) error {
	return checkCtx(ctx, "memory.Ping")
}

func checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

func copyToken(t *models.Token) *models.Token {
	c := *t
	if t.LastUsedAt != nil {
		lu := *t.LastUsedAt
		c.LastUsedAt = &lu
	}
	return &c
}

func copyPrincipal(p *models.Principal) *models.Principal {
	c := *p
	if p.SubscriptionStart != nil {
		s := *p.SubscriptionStart
		c.SubscriptionStart = &s
	}
	if p.SubscriptionEnd != nil {
		e := *p.SubscriptionEnd
		c.SubscriptionEnd = &e
	}
	c.Settings = bytes.Clone(p.Settings)
	return &c
}

func sortTokens(tokens []*models.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
}

func addDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * 24 * time.Hour)
}
