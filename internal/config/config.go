// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRegion          = "us-east-1"
	defaultOrdersTable     = "orders"
	defaultUsersTable      = "users"
	defaultIdemTable       = "idempotency"
	defaultCustomerIndex   = "customer_id-index"
	defaultPort            = "8080"
	defaultCartTaskTimeout = 5 * time.Second
	defaultIdempotencyTTL  = 48 * time.Hour
)

// Config captures runtime configuration by concern.
type Config struct {
	AWS         AWSConfig
	Tables      TableConfig
	Auth        AuthConfig
	OTP         OTPConfig
	Carts       CartConfig
	Idempotency IdempotencyConfig
	Mail        MailConfig
	Metrics     MetricsConfig
	Server      ServerConfig
}

// AWSConfig selects the region and an optional endpoint override for local stacks.
type AWSConfig struct {
	Region   string
	Endpoint string
}

// TableConfig names the DynamoDB tables and indexes.
type TableConfig struct {
	Orders        string
	Users         string
	Idempotency   string
	CustomerIndex string
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret  string
	AdminEmail string
}

// OTPConfig tunes OTP verification.
type OTPConfig struct {
	// MaxAttempts caps failed verifications per code; 0 means unlimited.
	MaxAttempts int
}

// CartConfig configures post-commit cart clearing. An empty QueueURL clears
// carts in-process, which Validate only allows with RUN_LOCAL.
type CartConfig struct {
	QueueURL    string
	TaskTimeout time.Duration
}

// IdempotencyConfig sets how long Idempotency-Key records live.
type IdempotencyConfig struct {
	TTL time.Duration
}

// MailConfig configures SES. An empty FromAddress logs mails instead.
type MailConfig struct {
	FromAddress string
}

// MetricsConfig configures CloudWatch counters. An empty Namespace disables them.
type MetricsConfig struct {
	Namespace string
}

// ServerConfig controls local HTTP serving.
type ServerConfig struct {
	RunLocal bool
	Port     string
}

// ValidationError lists missing or invalid settings.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load reads the process environment.
func Load() Config {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) Config {
	return Config{
		AWS: AWSConfig{
			Region:   stringWithDefault(lookup, "AWS_REGION", defaultRegion),
			Endpoint: stringWithDefault(lookup, "AWS_ENDPOINT_URL", ""),
		},
		Tables: TableConfig{
			Orders:        stringWithDefault(lookup, "ORDERS_TABLE", defaultOrdersTable),
			Users:         stringWithDefault(lookup, "USERS_TABLE", defaultUsersTable),
			Idempotency:   stringWithDefault(lookup, "IDEMPOTENCY_TABLE", defaultIdemTable),
			CustomerIndex: stringWithDefault(lookup, "CUSTOMER_INDEX", defaultCustomerIndex),
		},
		Auth: AuthConfig{
			JWTSecret:  stringWithDefault(lookup, "JWT_SECRET", ""),
			AdminEmail: stringWithDefault(lookup, "ADMIN_EMAIL", ""),
		},
		OTP: OTPConfig{
			MaxAttempts: intWithDefault(lookup, "OTP_MAX_ATTEMPTS", 0),
		},
		Carts: CartConfig{
			QueueURL:    stringWithDefault(lookup, "CART_QUEUE_URL", ""),
			TaskTimeout: durationWithDefault(lookup, "CART_TASK_TIMEOUT", defaultCartTaskTimeout),
		},
		Idempotency: IdempotencyConfig{
			TTL: durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Mail: MailConfig{
			FromAddress: stringWithDefault(lookup, "SES_FROM_ADDRESS", ""),
		},
		Metrics: MetricsConfig{
			Namespace: stringWithDefault(lookup, "METRICS_NAMESPACE", ""),
		},
		Server: ServerConfig{
			RunLocal: boolWithDefault(lookup, "RUN_LOCAL", false),
			Port:     stringWithDefault(lookup, "PORT", defaultPort),
		},
	}
}

// Validate reports settings the API cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.Tables.Orders == "" {
		missing = append(missing, "Tables.Orders")
	}
	if c.Tables.Users == "" {
		missing = append(missing, "Tables.Users")
	}
	if c.Tables.Idempotency == "" {
		missing = append(missing, "Tables.Idempotency")
	}
	if c.Tables.CustomerIndex == "" {
		missing = append(missing, "Tables.CustomerIndex")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if c.OTP.MaxAttempts < 0 {
		missing = append(missing, "OTP.MaxAttempts")
	}
	// Lambda freezes after the response, so in-process clearing only works locally.
	if !c.Server.RunLocal && c.Carts.QueueURL == "" {
		missing = append(missing, "Carts.QueueURL")
	}
	if c.Carts.TaskTimeout <= 0 {
		missing = append(missing, "Carts.TaskTimeout")
	}
	if c.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
