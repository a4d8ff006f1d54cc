package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	StoreKind  string

	// Dedup cache configuration
	RedisAddr string

	// Application configuration
	SourcesDir    string
	Port          string
	WorkerCount   int
	SweepInterval int
	APIAccessKey  string

	// Chat transport configuration
	ChatWebhookBase string

	// Payment processor configuration
	PaymentSecretKey  string
	PaymentWebhookKey string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
