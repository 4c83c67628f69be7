package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	DefaultRatesURL = "https://api.privatbank.ua/p24api/exchange_rates"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Ledger store
	LedgerBackend string

	// Exchange rates
	RatesAPIURL      string
	RatesTimeout     time.Duration
	RatesMaxAttempts int

	// CORS proxy
	ProxyPort        string
	ProxyUpstreamURL string

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleQuartersSheet      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		LedgerBackend: getEnv("LEDGER_BACKEND", BackendMemory),

		RatesAPIURL:      getEnv("RATES_API_URL", DefaultRatesURL),
		RatesTimeout:     getEnvDuration("RATES_TIMEOUT", 10*time.Second),
		RatesMaxAttempts: getEnvInt("RATES_MAX_ATTEMPTS", 3),

		ProxyPort:        getEnv("PROXY_PORT", "8787"),
		ProxyUpstreamURL: getEnv("PROXY_UPSTREAM_URL", DefaultRatesURL),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fxledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Income"),
		GoogleQuartersSheet:      getEnv("GOOGLE_QUARTERS_SHEET", "Quarters"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}
}

// Validate checks the settings shared by every binary and returns all
// problems at once.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, validatePort("port", c.Port)...)

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.LedgerBackend != BackendMemory && c.LedgerBackend != BackendSQLite {
		errs = append(errs, fmt.Sprintf("invalid ledger backend '%s': must be one of [%s %s]", c.LedgerBackend, BackendMemory, BackendSQLite))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	errs = append(errs, validateHTTPURL("rates API URL", c.RatesAPIURL)...)
	if c.RatesTimeout < 100*time.Millisecond || c.RatesTimeout > 5*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid rates timeout %v: must be between 100ms and 5m", c.RatesTimeout))
	}
	if c.RatesMaxAttempts < 1 || c.RatesMaxAttempts > 10 {
		errs = append(errs, fmt.Sprintf("invalid rates max attempts %d: must be between 1 and 10", c.RatesMaxAttempts))
	}

	errs = append(errs, validatePort("proxy port", c.ProxyPort)...)
	errs = append(errs, validateHTTPURL("proxy upstream URL", c.ProxyUpstreamURL)...)

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	return joinErrors(errs)
}

// ValidateWorker checks the extra settings the sheets mirror worker needs.
func (c *Config) ValidateWorker() error {
	var errs []string
	if err := c.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the ledger worker")
	}
	if c.GoogleSheetName == "" {
		errs = append(errs, "Google sheet name cannot be empty")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return joinErrors(errs)
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

func validateHTTPURL(name, value string) []string {
	u, err := url.Parse(value)
	if err != nil || value == "" {
		return []string{fmt.Sprintf("invalid %s '%s'", name, value)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("invalid %s scheme '%s': must be 'http' or 'https'", name, u.Scheme)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("invalid %s '%s': missing host", name, value)}
	}
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
