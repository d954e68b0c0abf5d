package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
	// DatabaseSchemeSQLite is the sqlite database scheme identifier
	DatabaseSchemeSQLite = "sqlite"

	BackendMemory  = "memory"
	BackendDurable = "durable"

	SourceEsplora  = "esplora"
	SourceCometBFT = "cometbft"
)

type Config struct {
	Backend   string // memory | durable
	DBDialect string // postgres | sqlite
	DBDsn     string // DSN string passed to GORM driver

	BlockSource string // esplora | cometbft
	EsploraURL  string
	RPCURL      string
	WSPath      string

	PollInterval time.Duration
	MaxGuess     int64

	ConnectRetries   int
	ConnectBaseDelay time.Duration
	HealthInterval   time.Duration

	AdminIDs     []string
	OperatorID   string
	OperatorName string

	TelegramToken  string
	TelegramChatID int64

	Debug bool // if true: write logs to file
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvInt(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// getenvList splits a comma separated value, dropping empty items.
func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql, sqlite.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	case DatabaseSchemeSQLite:
		path := strings.TrimPrefix(databaseURL[len(u.Scheme):], "://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite DATABASE_URL needs a path")
		}
		return DatabaseSchemeSQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

func Load() Config {
	cfg := Config{
		Backend:          strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		BlockSource:      strings.ToLower(getenv("BLOCK_SOURCE", SourceEsplora)),
		EsploraURL:       getenv("ESPLORA_URL", "https://mempool.space/api"),
		RPCURL:           getenv("RPC_URL", "http://localhost:26657"),
		WSPath:           getenv("WS_PATH", "/websocket"),
		PollInterval:     getenvDuration("POLL_INTERVAL", 30*time.Second),
		MaxGuess:         getenvInt("MAX_GUESS", 100000),
		ConnectRetries:   int(getenvInt("CONNECT_RETRIES", 3)),
		ConnectBaseDelay: getenvDuration("CONNECT_BASE_DELAY", time.Second),
		HealthInterval:   getenvDuration("HEALTH_INTERVAL", 30*time.Second),
		AdminIDs:         getenvList("ADMIN_IDS"),
		OperatorID:       getenv("OPERATOR_ID", "operator"),
		OperatorName:     getenv("OPERATOR_NAME", "Operator"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getenvInt("TELEGRAM_ALERT_CHAT_ID", 0),
		Debug:            getenvBool("DEBUG", false),
	}

	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		if dialect, dsn, err := parseDatabaseURL(dbURL); err == nil {
			cfg.DBDialect = dialect
			cfg.DBDsn = dsn
		} else {
			fmt.Fprintf(os.Stderr, "warning: invalid DATABASE_URL, disabling persistence: %v\n", err)
		}
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendDurable:
		if cfg.DBDsn == "" {
			fmt.Fprintf(os.Stderr, "warning: STORE_BACKEND=durable without a usable DATABASE_URL, using memory\n")
			cfg.Backend = BackendMemory
		}
	default:
		fmt.Fprintf(os.Stderr, "warning: unknown STORE_BACKEND %q, using memory\n", cfg.Backend)
		cfg.Backend = BackendMemory
	}
	if cfg.ConnectRetries < 0 {
		cfg.ConnectRetries = 0
	}

	return cfg
}

func (c Config) WSURL() string {
	// cometbft http client expects a separate ws endpoint path
	return c.WSPath
}

func (c Config) String() string {
	return fmt.Sprintf("backend=%s source=%s db=%s", c.Backend, c.BlockSource, c.DBDialect)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"backend=%s db=%s dsn=%s source=%s esplora=%s rpc=%s poll=%s max_guess=%d admins=%d telegram=%t",
		c.Backend,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.BlockSource,
		c.EsploraURL,
		c.RPCURL,
		c.PollInterval,
		c.MaxGuess,
		len(c.AdminIDs),
		c.TelegramToken != "",
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}
