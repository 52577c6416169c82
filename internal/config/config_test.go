package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.charging.example.com", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.API.OfflineNotice)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Subscription.EventBuffer)
}

func TestLoadWithEnvironment(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	os.Setenv("SESSION_API_BASE_URL", "https://staging.charging.example.com")
	os.Setenv("SESSION_RETRY_MAX_ATTEMPTS", "5")
	defer os.Unsetenv("SESSION_API_BASE_URL")
	defer os.Unsetenv("SESSION_RETRY_MAX_ATTEMPTS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.charging.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	viper.Set("log.level", "loud")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetTariffBaseURL(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:       "https://api.charging.example.com",
			TariffBaseURL: "",
		},
	}
	assert.Equal(t, "https://api.charging.example.com", cfg.GetTariffBaseURL())

	cfg.API.TariffBaseURL = "https://tariff.charging.example.com"
	assert.Equal(t, "https://tariff.charging.example.com", cfg.GetTariffBaseURL())
}
