package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Public URLs. CallbackBaseURL is where providers send users and IPNs back to;
	// PublicBaseURL hosts the success/failed pages.
	CallbackBaseURL string `mapstructure:"CALLBACK_BASE_URL"`
	PublicBaseURL   string `mapstructure:"PUBLIC_BASE_URL"`
	BrandName       string `mapstructure:"BRAND_NAME"`

	// Payment orchestration.
	GatewayPriority  []string      `mapstructure:"PAYMENT_GATEWAY_PRIORITY"`
	SimulatePayments bool          `mapstructure:"SIMULATE_PAYMENTS"`
	TokenMargin      time.Duration `mapstructure:"PAYMENT_TOKEN_MARGIN"`
	AuthTimeout      time.Duration `mapstructure:"PAYMENT_AUTH_TIMEOUT"`
	OrderTimeout     time.Duration `mapstructure:"PAYMENT_ORDER_TIMEOUT"`
	StatusTimeout    time.Duration `mapstructure:"PAYMENT_STATUS_TIMEOUT"`
	AttemptTTL       time.Duration `mapstructure:"PAYMENT_ATTEMPT_TTL"`
	SubmitLockTTL    time.Duration `mapstructure:"PAYMENT_SUBMIT_LOCK_TTL"`

	// PesaPal.
	PesapalConsumerKey    string `mapstructure:"PESAPAL_CONSUMER_KEY"`
	PesapalConsumerSecret string `mapstructure:"PESAPAL_CONSUMER_SECRET"`
	PesapalEnvironment    string `mapstructure:"PESAPAL_ENVIRONMENT"`
	PesapalIPNID          string `mapstructure:"PESAPAL_IPN_ID"`

	// PayPal.
	PaypalClientID     string `mapstructure:"PAYPAL_CLIENT_ID"`
	PaypalClientSecret string `mapstructure:"PAYPAL_CLIENT_SECRET"`
	PaypalEnvironment  string `mapstructure:"PAYPAL_ENVIRONMENT"`

	// Stripe.
	StripeSecretKey         string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret     string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeMaxNetworkRetries int64  `mapstructure:"STRIPE_MAX_NETWORK_RETRIES"`

	// WhatsApp manual fallback.
	WhatsAppNumber string `mapstructure:"WHATSAPP_NUMBER"`

	// Tracing.
	OtelEnabled       bool    `mapstructure:"OTEL_ENABLED"`
	OtelCollectorAddr string  `mapstructure:"OTEL_COLLECTOR_ADDR"`
	OtelServiceName   string  `mapstructure:"OTEL_SERVICE_NAME"`
	OtelSampleRatio   float64 `mapstructure:"OTEL_SAMPLE_RATIO"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig.GatewayPriority = normalizePriority(AppConfig.GatewayPriority)

	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
}

// setDefaults registers every key so AutomaticEnv values reach Unmarshal.
func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 3)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "travelpay")

	viper.SetDefault("CALLBACK_BASE_URL", "http://localhost:8080")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	viper.SetDefault("BRAND_NAME", "Travelpay Tours")

	viper.SetDefault("PAYMENT_GATEWAY_PRIORITY", "pesapal,paypal,stripe,whatsapp")
	viper.SetDefault("SIMULATE_PAYMENTS", false)
	viper.SetDefault("PAYMENT_TOKEN_MARGIN", "5m")
	viper.SetDefault("PAYMENT_AUTH_TIMEOUT", "30s")
	viper.SetDefault("PAYMENT_ORDER_TIMEOUT", "30s")
	viper.SetDefault("PAYMENT_STATUS_TIMEOUT", "15s")
	viper.SetDefault("PAYMENT_ATTEMPT_TTL", "30m")
	viper.SetDefault("PAYMENT_SUBMIT_LOCK_TTL", "45s")

	viper.SetDefault("PESAPAL_CONSUMER_KEY", "")
	viper.SetDefault("PESAPAL_CONSUMER_SECRET", "")
	viper.SetDefault("PESAPAL_ENVIRONMENT", "sandbox")
	viper.SetDefault("PESAPAL_IPN_ID", "")
	viper.SetDefault("PAYPAL_CLIENT_ID", "")
	viper.SetDefault("PAYPAL_CLIENT_SECRET", "")
	viper.SetDefault("PAYPAL_ENVIRONMENT", "sandbox")
	viper.SetDefault("STRIPE_SECRET_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("STRIPE_MAX_NETWORK_RETRIES", 2)
	viper.SetDefault("WHATSAPP_NUMBER", "")

	viper.SetDefault("OTEL_ENABLED", false)
	viper.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	viper.SetDefault("OTEL_SERVICE_NAME", "travelpay")
	viper.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

// normalizePriority accepts both list values and a single comma-separated string.
func normalizePriority(in []string) []string {
	var out []string
	for _, item := range in {
		for _, name := range strings.Split(item, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// Validate rejects combinations that must never reach a running server.
func (c Config) Validate() error {
	if c.SimulatePayments && c.Env == "production" {
		return errors.New("SIMULATE_PAYMENTS cannot be enabled when ENV=production")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TokenMargin < 0 {
		return errors.New("PAYMENT_TOKEN_MARGIN must not be negative")
	}
	if c.OtelSampleRatio < 0 || c.OtelSampleRatio > 1 {
		return errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.CallbackBaseURL == "" {
		return errors.New("CALLBACK_BASE_URL is required")
	}
	return nil
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
