package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/ea-access/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOKWithData(t *testing.T) {
	data := map[string]string{"key": "value"}
	resp := StatusOKWithData(data)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, data, resp.Data)
}

func TestError(t *testing.T) {
	msg := "something went wrong"
	resp := Error(msg)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, msg, resp.Error)
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"invalid input", fmt.Errorf("op: %w", models.ErrInvalidInput), http.StatusUnprocessableEntity, "invalid_input"},
		{"not found", fmt.Errorf("op: %w", models.ErrNotFound), http.StatusNotFound, "not_found"},
		{"store failure", models.WrapStore("op", errors.New("conn reset")), http.StatusInternalServerError, "store_failure"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "store_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ServiceError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, StatusError, body.Status)
			assert.Equal(t, tt.wantReason, body.Reason)
			assert.NotContains(t, body.Error, "conn reset")
		})
	}
}

func TestValidationError(t *testing.T) {
	type TestStruct struct {
		Name string `validate:"required,alphanum"`
		Age  string `validate:"numeric"`
		Tier string `validate:"oneof=PREMIUM SUPER"`
		Days int    `validate:"gt=0"`
	}

	v := validator.New()
	ts := TestStruct{
		Name: "!!!",
		Age:  "twenty",
		Tier: "GOLD",
	}

	err := v.Struct(ts)
	require.Error(t, err)

	validationErrors := err.(validator.ValidationErrors)
	resp := ValidationError(validationErrors)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "invalid_input", resp.Reason)
	assert.Contains(t, resp.Error, "field Name can contain only numbers and letters")
	assert.Contains(t, resp.Error, "field Age can contain only numbers")
	assert.Contains(t, resp.Error, "field Tier must be one of: PREMIUM SUPER")
	assert.Contains(t, resp.Error, "field Days must be at least 0 exclusive")
}

func TestValidationErrorRequired(t *testing.T) {
	type TestStruct struct {
		Name string `validate:"required"`
	}

	v := validator.New()
	err := v.Struct(TestStruct{})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, "field Name is a required field", resp.Error)
}
