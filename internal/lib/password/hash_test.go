package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHash_UsesConfiguredCost(t *testing.T) {
	hash, err := Hash("bot-secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, Cost, cost)
	assert.NoError(t, CheckHash(hash))
	assert.NoError(t, Compare(hash, "bot-secret"))
}

func TestHash_RejectsEmptyPassword(t *testing.T) {
	hash, err := Hash("")
	assert.Empty(t, hash)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCompare_ClientCredentials(t *testing.T) {
	botHash, err := Hash("bot-secret")
	require.NoError(t, err)
	adminHash, err := Hash("admin-secret")
	require.NoError(t, err)

	tests := []struct {
		name    string
		hash    string
		raw     string
		wantErr error
	}{
		{name: "own password", hash: botHash, raw: "bot-secret"},
		{name: "wrong password", hash: botHash, raw: "admin-secret", wantErr: ErrMismatch},
		{name: "password of another client", hash: adminHash, raw: "bot-secret", wantErr: ErrMismatch},
		{name: "empty password", hash: botHash, raw: "", wantErr: ErrMismatch},
		{name: "client without hash", hash: "", raw: "bot-secret", wantErr: ErrMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Compare(tt.hash, tt.raw)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompare_MalformedHashIsNotMismatch(t *testing.T) {
	err := Compare("$2a$10$abc", "bot-secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestCheckHash(t *testing.T) {
	weak, err := bcrypt.GenerateFromPassword([]byte("bot-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	strong, err := Hash("bot-secret")
	require.NoError(t, err)

	assert.NoError(t, CheckHash(strong))
	assert.Error(t, CheckHash(string(weak)))
	assert.Error(t, CheckHash("plain-text-password"))
	assert.Error(t, CheckHash(""))
}
