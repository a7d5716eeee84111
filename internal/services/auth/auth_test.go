package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/magabrotheeeer/ea-access/internal/config"
	customjwt "github.com/magabrotheeeer/ea-access/internal/lib/jwt"
	"github.com/magabrotheeeer/ea-access/internal/lib/password"
	services "github.com/magabrotheeeer/ea-access/internal/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Мок для jwt.Maker
type JwtMakerMock struct {
	mock.Mock
}

func (m *JwtMakerMock) GenerateToken(client, role string) (string, error) {
	args := m.Called(client, role)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.CustomClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.CustomClaims), args.Error(1)
}

func testClients(t *testing.T, rawPassword string) []config.Client {
	t.Helper()
	hashed, err := password.Hash(rawPassword)
	require.NoError(t, err)
	return []config.Client{
		{Name: "telegram-bot", PasswordHash: hashed, Role: "bot"},
		{Name: "admin", PasswordHash: hashed, Role: "admin"},
	}
}

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correctpassword"
	clients := testClients(t, rawPassword)

	tests := []struct {
		name       string
		client     string
		password   string
		setupMocks func(j *JwtMakerMock)
		wantToken  string
		wantRole   string
		wantErr    error
		errMsg     string
	}{
		{
			name:     "successful login",
			client:   "telegram-bot",
			password: rawPassword,
			setupMocks: func(j *JwtMakerMock) {
				j.On("GenerateToken", "telegram-bot", "bot").Return("jwt-token-123", nil).Once()
			},
			wantToken: "jwt-token-123",
			wantRole:  "bot",
		},
		{
			name:       "unknown client",
			client:     "nonexistent",
			password:   rawPassword,
			setupMocks: func(_ *JwtMakerMock) {},
			wantErr:    services.ErrInvalidCredentials,
		},
		{
			name:       "wrong password",
			client:     "admin",
			password:   "wrongpassword",
			setupMocks: func(_ *JwtMakerMock) {},
			wantErr:    services.ErrInvalidCredentials,
		},
		{
			name:     "token generation error",
			client:   "admin",
			password: rawPassword,
			setupMocks: func(j *JwtMakerMock) {
				j.On("GenerateToken", "admin", "admin").Return("", errors.New("token error")).Once()
			},
			errMsg: "token error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jwtMock := new(JwtMakerMock)
			svc := services.NewAuthService(clients, jwtMock)
			tt.setupMocks(jwtMock)

			token, role, err := svc.Login(context.Background(), tt.client, tt.password)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				assert.ErrorContains(t, err, tt.errMsg)
			default:
				assert.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
				assert.Equal(t, tt.wantRole, role)
			}
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login_CanceledContext(t *testing.T) {
	svc := services.NewAuthService(nil, new(JwtMakerMock))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Login(ctx, "admin", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthService_ValidateToken(t *testing.T) {
	claimsFor := func(client string) *customjwt.CustomClaims {
		return &customjwt.CustomClaims{
			Client: client,
			Role:   "bot",
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	tests := []struct {
		name       string
		token      string
		setupMocks func(j *JwtMakerMock)
		wantClient string
		wantErr    bool
	}{
		{
			name:  "valid token",
			token: "valid-token",
			setupMocks: func(j *JwtMakerMock) {
				j.On("ParseToken", "valid-token").Return(claimsFor("telegram-bot"), nil).Once()
			},
			wantClient: "telegram-bot",
		},
		{
			name:  "invalid token",
			token: "invalid-token",
			setupMocks: func(j *JwtMakerMock) {
				j.On("ParseToken", "invalid-token").Return(nil, customjwt.ErrInvalidToken).Once()
			},
			wantErr: true,
		},
		{
			name:  "client removed from config",
			token: "stale-token",
			setupMocks: func(j *JwtMakerMock) {
				j.On("ParseToken", "stale-token").Return(claimsFor("retired-bot"), nil).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jwtMock := new(JwtMakerMock)
			svc := services.NewAuthService(testClients(t, "pw"), jwtMock)
			tt.setupMocks(jwtMock)

			claims, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, customjwt.ErrInvalidToken)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantClient, claims.Client)
			}
			jwtMock.AssertExpectations(t)
		})
	}
}
