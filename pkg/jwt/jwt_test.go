package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour)
	jobID := uuid.New()

	token, err := m.GenerateDownloadToken(jobID, "minutes_txt")
	require.NoError(t, err)

	claims, err := m.ValidateDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, jobID, claims.JobID)
	assert.Equal(t, "minutes_txt", claims.Document)
	assert.Equal(t, jobID.String(), claims.Subject)
}

func TestDownloadTokenRejected(t *testing.T) {
	m := NewManager("secret", time.Hour)
	jobID := uuid.New()

	token, err := m.GenerateDownloadToken(jobID, "minutes_txt")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewManager("other", time.Hour).ValidateDownloadToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewManager("secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ValidateDownloadToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := m.ValidateDownloadToken(token + "x")
		assert.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := m.GenerateDownloadToken(jobID, "")
		assert.Error(t, err)
	})
}
