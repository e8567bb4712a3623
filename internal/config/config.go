package config

import (
	"time"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN   string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	CallbackToken string
	GatewayURL    string
	GatewayAPIKey string
	HoldTTL       time.Duration
	SweepInterval time.Duration
	DBOpTimeout   time.Duration
	OTLPEndpoint  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = time.Hour
	}

	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	// Generous ceiling: a sweep pass may touch one counter row per night
	// of a long stay inside a single transaction.
	dbOpTimeout, _ := time.ParseDuration(os.Getenv("DB_OP_TIMEOUT"))
	if dbOpTimeout == 0 {
		dbOpTimeout = 30 * time.Second
	}

	return &Config{
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		CallbackToken: os.Getenv("GATEWAY_CALLBACK_TOKEN"),
		GatewayURL:    os.Getenv("GATEWAY_URL"),
		GatewayAPIKey: os.Getenv("GATEWAY_API_KEY"),
		HoldTTL:       holdTTL,
		SweepInterval: sweepInterval,
		DBOpTimeout:   dbOpTimeout,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
