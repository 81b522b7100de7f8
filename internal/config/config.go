// Package config loads the gateway's static configuration: process settings
// from the environment and the workspace/domain/language snapshot from a YAML
// file. The snapshot is parsed and validated once at startup; the registry
// built from it is immutable for the life of the process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tartunlp/translation-gateway/internal/registry"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Settings holds process-level configuration resolved from the environment
// with defaults matching a local development broker.
type Settings struct {
	ListenAddr      string
	ShutdownTimeout time.Duration

	ConfigPath     string
	MaxInputLength int
	DefaultDomain  string
	Version        string

	MQ          MQSettings
	RateLimit   RateLimitSettings
	Corrections CorrectionSettings
}

// MQSettings configures the broker connection.
type MQSettings struct {
	Host           string `validate:"required"`
	Port           int    `validate:"gt=0"`
	Username       string
	Password       string
	Exchange       string `validate:"required"`
	ConnectionName string
	Timeout        time.Duration `validate:"gt=0"`
}

// URL renders the AMQP connection string.
func (m MQSettings) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", m.Username, m.Password, m.Host, m.Port)
}

// RateLimitSettings configures the per-key request limiter. RedisAddr is
// optional; when empty the limiter runs local-only.
type RateLimitSettings struct {
	PerSecond float64
	Burst     int
	RedisAddr string
}

// CorrectionSettings configures the append-only correction store.
type CorrectionSettings struct {
	Path       string
	MaxRetries int
	Backoff    time.Duration
}

// LoadSettings resolves settings from the environment.
func LoadSettings() (Settings, error) {
	s := Settings{
		ListenAddr:      envString("API_LISTEN_ADDR", DefaultListenAddr),
		ShutdownTimeout: DefaultShutdownTimeout,
		ConfigPath:      envString("API_CONFIG_PATH", "config/config.yaml"),
		MaxInputLength:  envInt("API_MAX_INPUT_LENGTH", DefaultMaxInputLength),
		DefaultDomain:   envString("API_DEFAULT_DOMAIN", DefaultDomain),
		Version:         envString("API_VERSION", "dev"),
		MQ: MQSettings{
			Host:           envString("MQ_HOST", DefaultMQHost),
			Port:           envInt("MQ_PORT", DefaultMQPort),
			Username:       envString("MQ_USERNAME", DefaultMQUsername),
			Password:       envString("MQ_PASSWORD", DefaultMQPassword),
			Exchange:       envString("MQ_EXCHANGE", DefaultExchange),
			ConnectionName: envString("MQ_CONNECTION_NAME", DefaultConnectionName),
			Timeout:        time.Duration(envInt("MQ_TIMEOUT", int(DefaultCallTimeout/time.Second))) * time.Second,
		},
		RateLimit: RateLimitSettings{
			PerSecond: float64(envInt("API_RATE_PER_SECOND", DefaultRatePerSecond)),
			Burst:     envInt("API_RATE_BURST", DefaultRateBurst),
			RedisAddr: envString("API_RATE_REDIS_ADDR", ""),
		},
		Corrections: CorrectionSettings{
			Path:       envString("API_CORRECTION_PATH", DefaultCorrectionPath),
			MaxRetries: DefaultCorrectionRetries,
			Backoff:    DefaultCorrectionBackoff,
		},
	}
	if err := validate.Struct(s.MQ); err != nil {
		return Settings{}, fmt.Errorf("invalid broker settings: %w", err)
	}
	if s.MaxInputLength <= 0 {
		return Settings{}, fmt.Errorf("max input length must be positive, got %d", s.MaxInputLength)
	}
	return s, nil
}

// Snapshot is the YAML shape of the workspace/domain/language tables.
type Snapshot struct {
	Service       string                   `yaml:"service"`
	APIKeys       map[string]string        `yaml:"api_keys" validate:"required,min=1"`
	Workspaces    map[string]workspaceYAML `yaml:"workspaces" validate:"required,min=1"`
	Domains       map[string]domainYAML    `yaml:"domains" validate:"required,min=1"`
	LanguageCodes map[string]string        `yaml:"language_codes" validate:"required,min=1"`
}

type workspaceYAML struct {
	Name           string   `yaml:"name"`
	Domains        []string `yaml:"domains"`
	RoutingPattern []string `yaml:"routing_pattern"`
}

type domainYAML struct {
	Name      string   `yaml:"name"`
	Languages []string `yaml:"languages" validate:"required,min=1"`
}

// LoadSnapshot reads and validates the configuration snapshot file.
func LoadSnapshot(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read config snapshot: %w", err)
	}
	return ParseSnapshot(raw)
}

// ParseSnapshot parses YAML bytes into a validated snapshot.
func ParseSnapshot(raw []byte) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse config snapshot: %w", err)
	}
	if err := validate.Struct(snap); err != nil {
		return Snapshot{}, fmt.Errorf("invalid config snapshot: %w", err)
	}
	return snap, nil
}

// BuildRegistry converts the snapshot into the immutable lookup registry.
// Language pair lists keep their declaration order; source-language inference
// depends on it.
func BuildRegistry(snap Snapshot) (*registry.Registry, error) {
	workspaces := make(map[string]registry.Workspace, len(snap.Workspaces))
	for key, ws := range snap.Workspaces {
		name := ws.Name
		if name == "" {
			name = key
		}
		workspaces[key] = registry.Workspace{
			Name:           name,
			Domains:        ws.Domains,
			RoutingPattern: ws.RoutingPattern,
		}
	}

	domains := make(map[string]registry.Domain, len(snap.Domains))
	for code, d := range snap.Domains {
		pairs := make([]registry.LanguagePair, 0, len(d.Languages))
		for _, lang := range d.Languages {
			src, tgt, ok := strings.Cut(lang, "-")
			if !ok || src == "" || tgt == "" {
				return nil, fmt.Errorf("domain %q: malformed language pair %q", code, lang)
			}
			pairs = append(pairs, registry.LanguagePair{Src: src, Tgt: tgt})
		}
		domains[code] = registry.Domain{Code: code, Name: d.Name, Pairs: pairs}
	}

	return registry.New(snap.APIKeys, workspaces, domains, snap.LanguageCodes)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
