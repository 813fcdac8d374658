// Package config loads kestrel-dnsd's runtime configuration from environment
// variables, applying defaults and struct-tag validation.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`

	Server ServerConfig `koanf:"server" validate:"required"`

	Resolver ResolverConfig `koanf:"resolver" validate:"required"`
}

type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// ServerConfig configures the UDP listener and the producer/consumer queue.
type ServerConfig struct {
	// ListenHost is the address the UDP socket binds to.
	ListenHost string `koanf:"host" validate:"required"`

	// ListenPort is the UDP port the server binds to.
	ListenPort int `koanf:"port" validate:"required,gte=1,lte=65535"`

	// QueueCapacity bounds the number of in-flight (bytes, addr) datagrams
	// awaiting a consumer.
	QueueCapacity int `koanf:"queue_capacity" validate:"required,gte=1"`

	// Consumers is the number of consumer goroutines started alongside the
	// producer loop. 0 means the producer self-consumes (own_consumer mode).
	Consumers int `koanf:"consumers" validate:"gte=0"`

	// Debug turns off guard quieting, so the cause of each converted error is logged.
	Debug bool `koanf:"debug"`
}

// CacheConfig sizes an LRU-backed cache. Size 0 disables it.
type CacheConfig struct {
	Size int `koanf:"size" validate:"gte=0"`
}

// ResolverConfig configures the chain: the JSON record source and the
// recursive upstream source.
type ResolverConfig struct {
	// RecordsPath is the path to the JSON record file described in the
	// external interfaces section; empty disables the JSON source.
	RecordsPath string `koanf:"records_path"`

	// Upstream is a list of upstream DNS servers in ip:port format.
	Upstream []string `koanf:"upstream" validate:"required,dive,ip_port"`

	// UpstreamTimeoutMS bounds each individual upstream attempt.
	UpstreamTimeoutMS int `koanf:"upstream_timeout_ms" validate:"required,gte=1"`

	// UpstreamRetries is the retry budget on top of the first attempt.
	UpstreamRetries int `koanf:"upstream_retries" validate:"gte=0"`

	// Cache sizes the CacheFilter.
	Cache CacheConfig `koanf:"cache"`

	// NegCache sizes the advisory negative-result Bloom filter.
	NegCache CacheConfig `koanf:"negcache"`
}

// defaultAppConfig defines the default application configuration.
var defaultAppConfig = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Server: ServerConfig{
		ListenHost:    "0.0.0.0",
		ListenPort:    53,
		QueueCapacity: 256,
		Consumers:     1,
		Debug:         false,
	},
	Resolver: ResolverConfig{
		RecordsPath:       "",
		Upstream:          []string{"1.1.1.1:53", "1.0.0.1:53"},
		UpstreamTimeoutMS: 1000,
		UpstreamRetries:   5,
		Cache: CacheConfig{
			Size: 4096,
		},
		NegCache: CacheConfig{
			Size: 4096,
		},
	},
}

// validIPPort validates an "IP:Port" formatted field.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables prefixed "KESTREL_", lower-cases and
// dot-joins nested keys, and splits space/comma separated values into slices.
// Exposed as a var so tests can substitute a fake loader.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "KESTREL_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "KESTREL_")), "_", ".")
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(defaultAppConfig, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
