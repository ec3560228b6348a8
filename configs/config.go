package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings holds the typed runtime configuration. Gateway and mail
// credentials are read lazily through Config.
type Settings struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	JWTSecret   string `envconfig:"JWT_SECRET"`
	Env         string `envconfig:"APP_ENV" default:"development"`

	CommissionRate       float64       `envconfig:"PLATFORM_COMMISSION_RATE" default:"0.10"`
	ReservationTxTimeout time.Duration `envconfig:"RESERVATION_TX_TIMEOUT" default:"5s"`
	MaxStayDays          int           `envconfig:"MAX_STAY_DAYS" default:"90"`
	PendingPaymentTTL    time.Duration `envconfig:"PENDING_PAYMENT_TTL" default:"30m"`
	QuoteCacheTTL        time.Duration `envconfig:"QUOTE_CACHE_TTL" default:"30s"`

	LogFile       string `envconfig:"LOG_FILE" default:"logs/staybook.log"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"booking.exchange"`
}

var (
	loadEnvOnce sync.Once
	settings    *Settings
	settingsMu  sync.Mutex
)

func loadDotEnv() {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

// Config returns a single environment value after .env has been loaded.
func Config(key string) string {
	loadDotEnv()
	return os.Getenv(key)
}

// Load decodes Settings from the environment once and caches the result.
func Load() (*Settings, error) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if settings != nil {
		return settings, nil
	}

	loadDotEnv()
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, err
	}
	settings = &s
	return settings, nil
}

// MustLoad is Load for process start-up.
func MustLoad() *Settings {
	s, err := Load()
	if err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}
	return s
}
