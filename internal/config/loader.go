package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects the reservation store implementation.
type StoreBackend string

const (
	// BackendFlatFile keeps reservation records in line-delimited files.
	BackendFlatFile StoreBackend = "file"
	// BackendSQLite keeps reservation records in an embedded SQLite database.
	BackendSQLite StoreBackend = "sqlite"
)

// Config captures environment driven configuration values for the reservation server.
type Config struct {
	ListenAddr   string
	DataDir      string
	StoreBackend StoreBackend
	SQLiteDSN    string
	SeedFile     string
	NotifyPacing time.Duration
	MaxClients   int
	LogLevel     string
}

// Load parses configuration values from the current process environment.
//
// Optional fields receive defaults; invalid values are accumulated and
// reported together so operators see every problem at once.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:   ":9500",
		DataDir:      "data",
		StoreBackend: BackendFlatFile,
		SQLiteDSN:    "file:reservations.db?_foreign_keys=on",
		NotifyPacing: 100 * time.Millisecond,
		LogLevel:     "info",
	}

	invalid := make([]string, 0, 2)

	if addr := strings.TrimSpace(os.Getenv("RESERVATION_LISTEN_ADDR")); addr != "" {
		cfg.ListenAddr = addr
	} else if port := strings.TrimSpace(os.Getenv("RESERVATION_PORT")); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			invalid = append(invalid, "RESERVATION_PORT")
		} else {
			cfg.ListenAddr = fmt.Sprintf(":%d", n)
		}
	}

	if dir := strings.TrimSpace(os.Getenv("RESERVATION_DATA_DIR")); dir != "" {
		cfg.DataDir = dir
	}

	if backend := strings.TrimSpace(os.Getenv("RESERVATION_STORE_BACKEND")); backend != "" {
		switch StoreBackend(backend) {
		case BackendFlatFile, BackendSQLite:
			cfg.StoreBackend = StoreBackend(backend)
		default:
			invalid = append(invalid, "RESERVATION_STORE_BACKEND")
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("RESERVATION_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if seed := strings.TrimSpace(os.Getenv("RESERVATION_SEED_FILE")); seed != "" {
		cfg.SeedFile = seed
	}

	if pacing := strings.TrimSpace(os.Getenv("RESERVATION_NOTIFY_PACING")); pacing != "" {
		d, err := time.ParseDuration(pacing)
		if err != nil || d < 0 {
			invalid = append(invalid, "RESERVATION_NOTIFY_PACING")
		} else {
			cfg.NotifyPacing = d
		}
	}

	if limit := strings.TrimSpace(os.Getenv("RESERVATION_MAX_CLIENTS")); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			invalid = append(invalid, "RESERVATION_MAX_CLIENTS")
		} else {
			cfg.MaxClients = n
		}
	}

	if level := strings.TrimSpace(os.Getenv("RESERVATION_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
