package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setAll(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/loops?sslmode=disable")
	t.Setenv("DARAJA_CONSUMER_KEY", "key")
	t.Setenv("DARAJA_CONSUMER_SECRET", "secret")
	t.Setenv("DARAJA_SHORTCODE", "174379")
	t.Setenv("DARAJA_PASSKEY", "passkey")
	t.Setenv("DARAJA_CALLBACK_URL", "https://example.com/payments/mpesa/callback")
}

func TestLoad_RequiresProviderSecrets(t *testing.T) {
	setAll(t)
	t.Setenv("DARAJA_CONSUMER_SECRET", "")
	t.Setenv("DARAJA_PASSKEY", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DARAJA_CONSUMER_SECRET")
	require.Contains(t, err.Error(), "DARAJA_PASSKEY")
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	setAll(t)
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8084", cfg.Port)
	require.Equal(t, "https://sandbox.safaricom.co.ke", cfg.DarajaBaseURL)
	require.Equal(t, "174379", cfg.DarajaShortcode)

	t.Setenv("DARAJA_BASE_URL", "https://api.safaricom.co.ke")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.safaricom.co.ke", cfg.DarajaBaseURL)
}
