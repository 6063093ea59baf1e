package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Match       MatchConfig       `yaml:"match"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Kiosk       KioskConfig       `yaml:"kiosk"`
	Database    DatabaseConfig    `yaml:"database"`
	Web         WebConfig         `yaml:"web"`
	Log         LogConfig         `yaml:"log"`
}

type MatchConfig struct {
	Threshold     float64 `yaml:"threshold"`
	Index         string  `yaml:"index"`           // linear or hnsw
	HNSWIndexPath string  `yaml:"hnsw_index_path"` // optional, index is rebuilt on startup if empty
}

// UseHNSW reports whether face matching should go through the approximate index.
func (c *MatchConfig) UseHNSW() bool {
	return c.Index == "hnsw"
}

type CredentialsConfig struct {
	PINLength           int `yaml:"pin_length"`
	IDNumberLength      int `yaml:"id_number_length"`
	MaxGenerateAttempts int `yaml:"max_generate_attempts"`
}

type EmbeddingConfig struct {
	URL     string `yaml:"url"`
	Dim     int    `yaml:"dim"`
	MaxSide int    `yaml:"max_side"` // frames larger than this are downscaled before upload
}

type KioskConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay"`
	Language   string        `yaml:"language"` // messages shown on the kiosk screen
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite, mysql or postgres
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	SessionSecret  string `yaml:"-"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma separated, localhost is always allowed
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the configuration described by the embedded defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	d := Defaults()

	return &Config{
		Match: MatchConfig{
			Threshold:     envFloat("MATCH_THRESHOLD", d.Match.Threshold),
			Index:         envString("MATCH_INDEX", d.Match.Index),
			HNSWIndexPath: envString("HNSW_INDEX_PATH", d.Match.HNSWIndexPath),
		},
		Credentials: CredentialsConfig{
			PINLength:           envInt("PIN_LENGTH", d.Credentials.PINLength),
			IDNumberLength:      envInt("ID_NUMBER_LENGTH", d.Credentials.IDNumberLength),
			MaxGenerateAttempts: envInt("CREDENTIAL_MAX_GENERATE_ATTEMPTS", d.Credentials.MaxGenerateAttempts),
		},
		Embedding: EmbeddingConfig{
			URL:     envString("EMBEDDING_URL", d.Embedding.URL),
			Dim:     envInt("EMBEDDING_DIM", d.Embedding.Dim),
			MaxSide: envInt("EMBEDDING_MAX_SIDE", d.Embedding.MaxSide),
		},
		Kiosk: KioskConfig{
			RetryDelay: envDuration("KIOSK_RETRY_DELAY", d.Kiosk.RetryDelay),
			Language:   envString("KIOSK_LANGUAGE", d.Kiosk.Language),
		},
		Database: DatabaseConfig{
			Driver:       envString("DATABASE_DRIVER", d.Database.Driver),
			URL:          envString("DATABASE_URL", d.Database.URL),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envString("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
	}
}
