// Package services содержит аутентификацию клиентов API (бот, админка).
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/lib/jwt"
	"github.com/magabrotheeeer/ea-access/internal/lib/password"
)

// ErrInvalidCredentials возвращается при неизвестном клиенте или неверном пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService проверяет учётные данные клиентов и выпускает JWT.
type AuthService struct {
	clients  map[string]config.Client
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService по списку клиентов из конфига.
func NewAuthService(clients []config.Client, jwtMaker jwt.Maker) *AuthService {
	byName := make(map[string]config.Client, len(clients))
	for _, c := range clients {
		byName[c.Name] = c
	}
	return &AuthService{
		clients:  byName,
		jwtMaker: jwtMaker,
	}
}

// Login проверяет пароль клиента и генерирует JWT. Возвращает токен и роль клиента.
func (s *AuthService) Login(ctx context.Context, name, rawPassword string) (token, role string, err error) {
	const op = "services.auth.Login"
	if err := ctx.Err(); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	client, ok := s.clients[name]
	if !ok {
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := password.Compare(client.PasswordHash, rawPassword); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	token, err = s.jwtMaker.GenerateToken(client.Name, client.Role)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return token, client.Role, nil
}

// ValidateToken проверяет JWT и возвращает его claims.
// Токен клиента, удалённого из конфига после выпуска, не принимается.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "services.auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := s.clients[claims.Client]; !ok {
		return nil, fmt.Errorf("%s: %w", op, jwt.ErrInvalidToken)
	}
	return claims, nil
}
