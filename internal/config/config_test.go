package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCallbackURLProduction(t *testing.T) {
	t.Setenv("PESAPAL_CALLBACK_URL", "http://evil.example/callback")

	// Production pins the fixed URL no matter what the environment provides.
	assert.Equal(t, productionCallbackURL, resolveCallbackURL("production"))
}

func TestResolveCallbackURLConfigured(t *testing.T) {
	t.Setenv("PESAPAL_CALLBACK_URL", "https://staging.crumbandcrust.ug/payment-callback")

	assert.Equal(t, "https://staging.crumbandcrust.ug/payment-callback", resolveCallbackURL("staging"))
}

func TestResolveCallbackURLDefault(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/payment-callback", resolveCallbackURL("development"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PESAPAL_CONSUMER_KEY", "ck")
	t.Setenv("PESAPAL_CONSUMER_SECRET", "cs")

	cfg := Load()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "https://pay.pesapal.com/v3", cfg.PesapalBaseURL)
	assert.Equal(t, "ck", cfg.PesapalKey)
	assert.False(t, cfg.VerifyIPN)
}
