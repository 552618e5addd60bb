package main

import "time"

type Config struct {
	Host           string        `env:"HOST,default=localhost"`
	Port           int           `env:"PORT,default=8080"`
	DebugPort      int           `env:"DEBUG_PORT"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	JWTSecret      string        `env:"JWT_SECRET,required=true"`
	TokenDuration  time.Duration `env:"TOKEN_DURATION,default=24h"`

	// Per-sender message window (the ingestion gate).
	RateLimitMax    int           `env:"RATE_LIMIT_MAX,default=60"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=60s"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL,default=5m"`

	// Per-IP shaping of the REST surface.
	HTTPRequestsPerSecond float64 `env:"HTTP_REQUESTS_PER_SECOND,default=10"`
	HTTPBurst             int     `env:"HTTP_BURST,default=50"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=128"`
	AllowedOrigins       []string      `env:"ALLOWED_ORIGINS,default=*"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	BadgerGCInterval     time.Duration `env:"BADGER_GC_INTERVAL,default=10m"`
}
