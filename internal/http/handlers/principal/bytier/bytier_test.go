package bytier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error) {
	args := m.Called(ctx, tier, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Principal), args.Error(1)
}

func TestByTierHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "страница пользователей",
			query: "?tier=supreme&limit=2&offset=4",
			setupMock: func(m *MockService) {
				m.On("ListByTier", mock.Anything, models.TierSupreme, 2, 4).
					Return([]*models.Principal{{UserID: "u5", Tier: models.TierSupreme}}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"list_count":1`,
		},
		{
			name:  "пустая выборка",
			query: "?tier=PREMIUM",
			setupMock: func(m *MockService) {
				m.On("ListByTier", mock.Anything, models.TierPremium, 0, 0).Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"principals":[]`,
		},
		{
			name:           "неизвестный тариф",
			query:          "?tier=GOLD",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"error":"invalid input"`,
		},
		{
			name:           "limit не число",
			query:          "?tier=FREE&limit=ten",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid limit"`,
		},
		{
			name:           "offset не число",
			query:          "?tier=FREE&offset=-",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid offset"`,
		},
		{
			name:  "ошибка хранилища",
			query: "?tier=FREE",
			setupMock: func(m *MockService) {
				m.On("ListByTier", mock.Anything, models.TierFree, 0, 0).
					Return(nil, errors.Join(models.ErrStoreFailure, errors.New("db down"))).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"internal error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/principals"+tt.query, nil)
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
