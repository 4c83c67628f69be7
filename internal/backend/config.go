package backend

import (
	"errors"
	"fmt"
	"strings"

	"fxledger/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.LedgerBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (want one of %s)",
			appConfig.LedgerBackend, strings.Join(GetBackendTypeStrings(), ", "))
	}

	return Config{
		Type:             backendType,
		RatesAPIURL:      appConfig.RatesAPIURL,
		RatesTimeout:     appConfig.RatesTimeout,
		RatesMaxAttempts: appConfig.RatesMaxAttempts,
		AMQPURL:          appConfig.AMQPURL,
		AMQPExchange:     appConfig.AMQPExchange,
		AMQPQueue:        appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.RatesMaxAttempts < 0 {
		return fmt.Errorf("invalid rates max attempts: %d", c.RatesMaxAttempts)
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{MemoryBackend.String(), SQLiteBackend.String()}
}
