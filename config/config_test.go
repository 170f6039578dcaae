package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsSimulationInProduction(t *testing.T) {
	cfg := Config{Env: "production", SimulatePayments: true, CallbackBaseURL: "https://example.com", JWTSecret: "s3cret"}
	assert.Error(t, cfg.Validate())

	cfg.Env = "development"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNegativeMargin(t *testing.T) {
	cfg := Config{TokenMargin: -time.Second, CallbackBaseURL: "https://example.com", JWTSecret: "s3cret"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresCallbackBase(t *testing.T) {
	assert.Error(t, Config{JWTSecret: "s3cret"}.Validate())
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t,
		[]string{"pesapal", "paypal", "whatsapp"},
		normalizePriority([]string{"PesaPal, paypal", " ", "whatsapp"}),
	)
	assert.Nil(t, normalizePriority(nil))
}

func TestValidate_RequiresJWTSecretInEveryEnv(t *testing.T) {
	for _, env := range []string{"production", "prod", "development", ""} {
		cfg := Config{Env: env, CallbackBaseURL: "https://example.com"}
		assert.Error(t, cfg.Validate(), env)
	}

	cfg := Config{Env: "production", CallbackBaseURL: "https://example.com"}

	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SampleRatioRange(t *testing.T) {
	cfg := Config{CallbackBaseURL: "https://example.com", JWTSecret: "s3cret", OtelSampleRatio: 1.5}
	assert.Error(t, cfg.Validate())

	cfg.OtelSampleRatio = 0.25
	assert.NoError(t, cfg.Validate())
}
