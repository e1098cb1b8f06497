package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Local store validation
	switch strings.ToLower(c.Local.Store) {
	case StorePostgres:
		if c.Local.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when LOCAL_STORE=postgres")
		}
		if c.Local.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Local.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Local.MaxConns < c.Local.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Local.MaxConns, c.Local.MinConns))
		}
	case StoreFile:
		if c.Local.Dir == "" {
			errs = append(errs, "LOCAL_STORE_DIR is required when LOCAL_STORE=file")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("LOCAL_STORE (%q) must be one of: postgres, file, memory", c.Local.Store))
	}

	// Remote mirror validation
	switch strings.ToLower(c.Remote.Mirror) {
	case MirrorNone, "":
	case MirrorRedis:
		if c.Remote.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required when REMOTE_MIRROR=redis")
		}
	case MirrorGCS:
		if c.Remote.GCSBucket == "" {
			errs = append(errs, "GCS_BUCKET is required when REMOTE_MIRROR=gcs")
		}
	default:
		errs = append(errs, fmt.Sprintf("REMOTE_MIRROR (%q) must be one of: none, redis, gcs", c.Remote.Mirror))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, "MIRROR_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.MaxRows < 0 {
		errs = append(errs, "IMPORT_MAX_ROWS must be non-negative")
	}
	switch strings.ToLower(c.Import.FallbackCharset) {
	case "", "windows-1252", "cp1252", "iso-8859-1", "latin1":
	default:
		errs = append(errs, fmt.Sprintf("IMPORT_FALLBACK_CHARSET (%q) must be empty, windows-1252 or iso-8859-1", c.Import.FallbackCharset))
	}

	// Rate limit validation
	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		if c.Rate.ImportsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_IMPORTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		switch strings.ToLower(c.Rate.Store) {
		case "memory":
		case "redis":
			if c.Remote.RedisURL == "" {
				errs = append(errs, "REDIS_URL is required when RATE_LIMIT_STORE=redis")
			}
		default:
			errs = append(errs, fmt.Sprintf("RATE_LIMIT_STORE (%q) must be one of: memory, redis", c.Rate.Store))
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Local: {Store: %q, DatabaseURL: [MASKED], Dir: %q}, ", c.Local.Store, c.Local.Dir))
	b.WriteString(fmt.Sprintf("Remote: {Mirror: %q, RedisURL: [MASKED], GCSBucket: %q}, ", c.Remote.Mirror, c.Remote.GCSBucket))
	b.WriteString(fmt.Sprintf("Import: {MaxFileSize: %d, MaxConcurrent: %d, MaxRows: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.MaxRows))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d, Store: %q}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.Store))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
