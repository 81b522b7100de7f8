package config

import "time"

// Broker connection defaults.
const (
	DefaultMQHost         = "localhost"
	DefaultMQPort         = 5672
	DefaultMQUsername     = "guest"
	DefaultMQPassword     = "guest"
	DefaultExchange       = "translation"
	DefaultConnectionName = "Translation API"
	DefaultHeartbeat      = 10 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// Request validation defaults.
const (
	DefaultMaxInputLength = 10000
	DefaultDomain         = "general"
)

// HTTP server defaults.
const (
	DefaultListenAddr      = ":8000"
	DefaultShutdownTimeout = 10 * time.Second
)

// Rate limiting defaults, applied per API key on translation endpoints.
const (
	DefaultRatePerSecond = 10
	DefaultRateBurst     = 20
)

// Correction store defaults.
const (
	DefaultCorrectionPath    = "data/corrections.jsonl"
	DefaultCorrectionRetries = 3
	DefaultCorrectionBackoff = 50 * time.Millisecond
)
