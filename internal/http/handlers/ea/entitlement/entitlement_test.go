package entitlement

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ea-access/internal/models"
	"github.com/magabrotheeeer/ea-access/internal/services/entitlement"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CheckAutoExecute(ctx context.Context, token, deviceID string) (*entitlement.Decision, error) {
	args := m.Called(ctx, token, deviceID)
	if res := args.Get(0); res != nil {
		return res.(*entitlement.Decision), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestEntitlementHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "исполнение разрешено",
			body: `{"token":"ABCD1234","device_id":"5012345"}`,
			setupMock: func(m *MockService) {
				m.On("CheckAutoExecute", mock.Anything, "ABCD1234", "5012345").Return(&entitlement.Decision{
					Allowed:               true,
					UserID:                "42",
					Tier:                  models.TierSupreme,
					EffectiveTier:         models.TierSupreme,
					RemainingDailySignals: models.Unlimited,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":true`,
		},
		{
			name: "тариф истёк",
			body: `{"token":"ABCD1234","device_id":"5012345"}`,
			setupMock: func(m *MockService) {
				m.On("CheckAutoExecute", mock.Anything, "ABCD1234", "5012345").Return(&entitlement.Decision{
					Reason:        entitlement.ReasonTierNotEntitled,
					EffectiveTier: models.TierFree,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"reason":"tier_not_entitled"`,
		},
		{
			name:           "пустое тело",
			body:           `{}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Token is a required field`,
		},
		{
			name: "сбой хранилища",
			body: `{"token":"ABCD1234","device_id":"5012345"}`,
			setupMock: func(m *MockService) {
				m.On("CheckAutoExecute", mock.Anything, "ABCD1234", "5012345").Return(nil, models.ErrStoreFailure).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"internal error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ea/entitlement", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
