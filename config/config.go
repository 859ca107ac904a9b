package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sixpeteunder/orientdb-odm/validator"
)

// Adapter names accepted by ODM_ADAPTER.
const (
	AdapterHTTP     = "http"
	AdapterEmbedded = "embedded"
)

type Config struct {
	Env      string `json:"env" validate:"oneof=development production test"`
	LogLevel string `json:"logLevel" validate:"oneof=debug info warn error"`

	// Server connection
	Host     string        `json:"host" validate:"required_if=Adapter http"`
	Port     int           `json:"port" validate:"gte=1,lte=65535"`
	User     string        `json:"user" validate:"required_if=Adapter http"`
	Password string        `json:"password"`
	Database string        `json:"database" validate:"required_if=Adapter http"`
	Timeout  time.Duration `json:"timeout" validate:"gte=0"`
	Retries  int           `json:"retries" validate:"gte=0,lte=10"`

	// Mapper and adapter selection
	Adapter           string            `json:"adapter" validate:"required,adapter"`
	EmbeddedPath      string            `json:"embeddedPath" validate:"required_if=Adapter embedded"`
	DocumentDirs      map[string]string `json:"documentDirs"`
	MismatchTolerance bool              `json:"mismatchTolerance"`
}

var AppConfig *Config

// Load reads the configuration from the environment, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := GetEnvInt("ODB_PORT", 2480)
	if err != nil {
		return nil, err
	}
	timeout, err := GetEnvDuration("ODB_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	retries, err := GetEnvInt("ODB_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	tolerant, err := GetEnvBool("ODM_MISMATCH_TOLERANCE", false)
	if err != nil {
		return nil, err
	}
	dirs, err := ParseDocumentDirs(GetEnv("ODM_DOCUMENT_DIRS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:               GetEnv("ENV", "development"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		Host:              GetEnv("ODB_HOST", "localhost"),
		Port:              port,
		User:              GetEnv("ODB_USER", "admin"),
		Password:          GetEnv("ODB_PASSWORD", ""),
		Database:          GetEnv("ODB_DATABASE", ""),
		Timeout:           timeout,
		Retries:           retries,
		Adapter:           GetEnv("ODM_ADAPTER", AdapterHTTP),
		EmbeddedPath:      GetEnv("ODM_EMBEDDED_PATH", "./data/orientdb-odm.db"),
		DocumentDirs:      dirs,
		MismatchTolerance: tolerant,
	}

	if err := validator.New().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = cfg
	return cfg, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func GetEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

// GetEnvDuration accepts Go durations ("5s") and plain seconds ("5").
func GetEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

// ParseDocumentDirs reads "path=namespace,path2=namespace2". A path without
// "=" maps to the empty namespace.
func ParseDocumentDirs(value string) (map[string]string, error) {
	dirs := make(map[string]string)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		path, ns, _ := strings.Cut(entry, "=")
		path, ns = strings.TrimSpace(path), strings.TrimSpace(ns)
		if path == "" {
			return nil, fmt.Errorf("ODM_DOCUMENT_DIRS entry %q has no path", entry)
		}
		if _, dup := dirs[path]; dup {
			return nil, fmt.Errorf("ODM_DOCUMENT_DIRS lists %s twice", path)
		}
		dirs[path] = ns
	}
	return dirs, nil
}
