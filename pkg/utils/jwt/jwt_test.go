package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	m := NewManager("s3cret", time.Hour)

	token, err := m.GenerateToken(7, "ada@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.StudentID)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestRejectsOtherSecret(t *testing.T) {
	token, err := NewManager("one", time.Hour).GenerateToken(1, "a@b.c")
	require.NoError(t, err)

	_, err = NewManager("two", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestRejectsExpired(t *testing.T) {
	m := NewManager("s3cret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := m.GenerateToken(1, "a@b.c")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}
