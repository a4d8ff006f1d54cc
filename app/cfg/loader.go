package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"courant_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"courant_password" description:"Database password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"courant" description:"Database name"`
	StoreKind  string `long:"store" env:"STORE" default:"postgres" choice:"postgres" choice:"memory" description:"Document store backend"`

	// Dedup cache configuration
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the seen-identity cache (in-memory cache when empty)"`

	// Application configuration
	SourcesDir    string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing bootstrap source definition files"`
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount   int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for source polling"`
	SweepInterval int    `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"300" description:"Polling sweep interval in seconds"`
	APIAccessKey  string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Chat transport configuration
	ChatWebhookBase string `long:"chat-webhook-base" env:"CHAT_WEBHOOK_BASE" description:"Base URL of the chat platform's channel webhook endpoint"`

	// Payment processor configuration
	PaymentSecretKey  string `long:"payment-secret-key" env:"PAYMENT_SECRET_KEY" description:"Payment processor API secret key"`
	PaymentWebhookKey string `long:"payment-webhook-key" env:"PAYMENT_WEBHOOK_KEY" description:"Shared secret for payment webhook signature verification"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Courant/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		StoreKind:         raw.StoreKind,
		RedisAddr:         raw.RedisAddr,
		SourcesDir:        raw.SourcesDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SweepInterval:     raw.SweepInterval,
		APIAccessKey:      raw.APIAccessKey,
		ChatWebhookBase:   raw.ChatWebhookBase,
		PaymentSecretKey:  raw.PaymentSecretKey,
		PaymentWebhookKey: raw.PaymentWebhookKey,
		UserAgent:         raw.UserAgent,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}, nil
}
