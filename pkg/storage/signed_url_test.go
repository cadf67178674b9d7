package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("export-1", "exports/downloads.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	id, key, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "export-1", id)
	require.Equal(t, "exports/downloads.csv", key)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", time.Minute).WithClock(func() time.Time { return now })
	token, _, err := signer.Generate("export-1", "exports/downloads.csv")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, _, _, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrSignedURLExpired)

	id, key, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "export-1", id)
	require.Equal(t, "exports/downloads.csv", key)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("export-1", "exports/a.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = "9999999999"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	require.ErrorIs(t, err, ErrSignedURLInvalid)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.ErrorIs(t, err, ErrSignedURLInvalid)

	_, _, _, err = signer.Parse("not-a-token", false)
	require.ErrorIs(t, err, ErrSignedURLInvalid)
}
