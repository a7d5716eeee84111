package issue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ea-access/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Issue(ctx context.Context, userID, deviceID string, tier models.Tier, durationDays int) (*models.Token, error) {
	args := m.Called(ctx, userID, deviceID, tier, durationDays)
	if res := args.Get(0); res != nil {
		return res.(*models.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestIssueHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issued := &models.Token{
		Token:         "K7Q2M9XA",
		UserID:        "42",
		BoundDeviceID: "5012345",
		Tier:          models.TierSuper,
		IsActive:      true,
		ExpiresAt:     time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "выпуск с явным сроком",
			body: `{"user_id":"42","device_id":"5012345","tier":"SUPER","duration_days":14}`,
			setupMock: func(m *MockService) {
				m.On("Issue", mock.Anything, "42", "5012345", models.TierSuper, 14).Return(issued, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"token":"K7Q2M9XA"`,
		},
		{
			name: "срок по умолчанию",
			body: `{"user_id":"42","device_id":"5012345","tier":"supreme"}`,
			setupMock: func(m *MockService) {
				m.On("Issue", mock.Anything, "42", "5012345", models.TierSupreme, 30).Return(issued, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"bound_device_id":"5012345"`,
		},
		{
			name:           "отрицательный срок",
			body:           `{"user_id":"42","device_id":"5012345","tier":"SUPER","duration_days":-1}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field DurationDays must be at least 0 exclusive`,
		},
		{
			name:           "нет терминала",
			body:           `{"user_id":"42","tier":"SUPER"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field DeviceID is a required field`,
		},
		{
			name: "тариф без права на EA",
			body: `{"user_id":"42","device_id":"5012345","tier":"PREMIUM"}`,
			setupMock: func(m *MockService) {
				m.On("Issue", mock.Anything, "42", "5012345", models.TierPremium, 30).
					Return(nil, fmt.Errorf("op: %w: not entitled", models.ErrInvalidInput)).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"reason":"invalid_input"`,
		},
		{
			name: "исчерпаны попытки генерации",
			body: `{"user_id":"42","device_id":"5012345","tier":"SUPER"}`,
			setupMock: func(m *MockService) {
				m.On("Issue", mock.Anything, "42", "5012345", models.TierSuper, 30).
					Return(nil, fmt.Errorf("op: %w: %w", models.ErrStoreFailure, models.ErrTokenCollision)).Once()
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
			req := httptest.NewRequest(http.MethodPost, "/tokens", bytes.NewBufferString(tt.body))
			New(logger, svc, 30).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
