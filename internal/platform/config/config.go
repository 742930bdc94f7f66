package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures origin API server configuration.
type Server struct {
	Addr           string
	SessionTTL     time.Duration
	CSRFSigningKey string
	CSRFTTL        time.Duration
	CookieDomain   string
	SecureCookies  bool
}

// Relay captures session relay configuration. InsecureTransport enables the
// Set-Cookie compatibility shim (strip Secure, force SameSite=None) for
// plain-HTTP development setups. It must stay off in any production posture.
type Relay struct {
	Addr              string
	OriginURL         string
	InsecureTransport bool
	RewriteDomain     string
}

// Postgres holds connection settings for the pgx pool.
type Postgres struct {
	DSN string
}

// Redis holds connection settings for the session store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds audit pipeline settings. Empty Brokers disables publishing.
type Kafka struct {
	Brokers []string
	Topic   string
}

// ServerFromEnv builds the origin server config so main stays lean.
func ServerFromEnv() Server {
	key := os.Getenv("CSRF_SIGNING_KEY")
	if key == "" {
		// Development fallback; override in any real deployment.
		key = "dev-csrf-key-change-me"
	}
	return Server{
		Addr:           envOr("SERVER_ADDR", ":8000"),
		SessionTTL:     envDuration("SESSION_TTL", 24*time.Hour),
		CSRFSigningKey: key,
		CSRFTTL:        envDuration("CSRF_TTL", 12*time.Hour),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		SecureCookies:  os.Getenv("SECURE_COOKIES") == "true",
	}
}

// RelayFromEnv builds the relay config.
func RelayFromEnv() Relay {
	return Relay{
		Addr:              envOr("RELAY_ADDR", ":5000"),
		OriginURL:         envOr("RELAY_ORIGIN_URL", "http://localhost:8000"),
		InsecureTransport: os.Getenv("RELAY_INSECURE_TRANSPORT") == "true",
		RewriteDomain:     os.Getenv("RELAY_COOKIE_DOMAIN"),
	}
}

// PostgresFromEnv returns Postgres settings; empty DSN means memory stores.
func PostgresFromEnv() Postgres {
	return Postgres{DSN: os.Getenv("POSTGRES_DSN")}
}

// RedisFromEnv returns Redis settings; empty URL means the memory session store.
func RedisFromEnv() Redis {
	return Redis{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

// KafkaFromEnv returns Kafka settings for the audit outbox worker.
func KafkaFromEnv() Kafka {
	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	return Kafka{
		Brokers: brokers,
		Topic:   envOr("KAFKA_AUDIT_TOPIC", "libreria.audit"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
