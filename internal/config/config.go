// Package config loads server configuration from the environment, with an
// optional .env file for development. Every knob has a working default except
// the Alipay credentials, which are only required when the real gateway is
// enabled.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/yourorg/qrpay/internal/gateway/alipay"
	"github.com/yourorg/qrpay/internal/gateway/circuitbreaker"
	"github.com/yourorg/qrpay/internal/polling"
)

type Config struct {
	Server struct {
		Addr    string `env:"QRPAY_SERVER_ADDR"`
		GinMode string `env:"QRPAY_GIN_MODE"`
	}

	Gateway struct {
		// MockEnabled swaps the Alipay gateway for the in-memory mock so the
		// server runs without credentials.
		MockEnabled bool `env:"QRPAY_GATEWAY_MOCK_ENABLED"`
	}

	Alipay struct {
		AppID          string `env:"QRPAY_ALIPAY_APP_ID"`
		PrivateKey     string `env:"QRPAY_ALIPAY_PRIVATE_KEY"`
		PublicKey      string `env:"QRPAY_ALIPAY_PUBLIC_KEY"`
		GatewayURL     string `env:"QRPAY_ALIPAY_GATEWAY_URL"`
		NotifyURL      string `env:"QRPAY_ALIPAY_NOTIFY_URL"`
		TimeoutSeconds int    `env:"QRPAY_ALIPAY_TIMEOUT_SECONDS"`
	}

	Polling struct {
		TickSeconds   int `env:"QRPAY_POLLING_TICK_SECONDS"`
		DeadlineTicks int `env:"QRPAY_POLLING_DEADLINE_TICKS"`
		IntervalTicks int `env:"QRPAY_POLLING_INTERVAL_TICKS"`
	}

	Breaker struct {
		FailureThreshold   int `env:"QRPAY_BREAKER_FAILURE_THRESHOLD"`
		OpenTimeoutSeconds int `env:"QRPAY_BREAKER_OPEN_TIMEOUT_SECONDS"`
		HalfOpenSuccesses  int `env:"QRPAY_BREAKER_HALF_OPEN_SUCCESSES"`
	}
}

// LoadConfig reads an optional .env file at path and then the process
// environment. A missing .env file is logged, not fatal.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: no env file at %s: %v", path, err)
		}
	}

	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if !cfg.Gateway.MockEnabled {
		if cfg.Alipay.AppID == "" || cfg.Alipay.PrivateKey == "" || cfg.Alipay.PublicKey == "" {
			return nil, fmt.Errorf("config: QRPAY_ALIPAY_APP_ID, QRPAY_ALIPAY_PRIVATE_KEY and QRPAY_ALIPAY_PUBLIC_KEY are required unless QRPAY_GATEWAY_MOCK_ENABLED is set")
		}
	}
	return cfg, nil
}

// AlipayConfig maps the loaded values onto the Alipay gateway settings.
func (c *Config) AlipayConfig() alipay.Config {
	return alipay.Config{
		AppID:      c.Alipay.AppID,
		PrivateKey: c.Alipay.PrivateKey,
		PublicKey:  c.Alipay.PublicKey,
		GatewayURL: c.Alipay.GatewayURL,
		NotifyURL:  c.Alipay.NotifyURL,
		Timeout:    time.Duration(c.Alipay.TimeoutSeconds) * time.Second,
	}
}

// PollingConfig maps the loaded values onto session settings. Zero values
// fall through to the session defaults.
func (c *Config) PollingConfig() polling.Config {
	return polling.Config{
		TickPeriod:    time.Duration(c.Polling.TickSeconds) * time.Second,
		DeadlineTicks: c.Polling.DeadlineTicks,
		IntervalTicks: c.Polling.IntervalTicks,
	}
}

// BreakerConfig maps the loaded values onto circuit breaker settings. Zero
// values fall through to the breaker defaults.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:  c.Breaker.FailureThreshold,
		OpenTimeout:       time.Duration(c.Breaker.OpenTimeoutSeconds) * time.Second,
		HalfOpenSuccesses: c.Breaker.HalfOpenSuccesses,
	}
}
