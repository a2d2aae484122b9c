package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64

	// WoRMS taxonomic registry.
	WormsBaseURL   string
	WormsTimeout   time.Duration
	WormsBatchSize int
	WormsCacheSize int

	// Suitability datasets.
	DatasetDir    string
	H3Resolution  int
	ScoringStrict bool

	// Optional Kafka report sink.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	wormsTimeout, err := parsePositiveDuration("WORMS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	wormsBatchSize, err := parsePositiveInt("WORMS_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	wormsCacheSize, err := parsePositiveInt("WORMS_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	// Resolution 0 is a valid (coarsest) cell resolution.
	h3Resolution, err := parseNonNegativeInt("H3_RESOLUTION", 7)
	if err != nil {
		return nil, err
	}
	maxUpload, err := parsePositiveInt("MAX_UPLOAD_BYTES", 50<<20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MaxUploadBytes:  int64(maxUpload),

		WormsBaseURL:   envOrDefault("WORMS_BASE_URL", "https://www.marinespecies.org/rest"),
		WormsTimeout:   wormsTimeout,
		WormsBatchSize: wormsBatchSize,
		WormsCacheSize: wormsCacheSize,

		DatasetDir:    envOrDefault("DATASET_DIR", "data/datasets"),
		H3Resolution:  h3Resolution,
		ScoringStrict: os.Getenv("SCORING_STRICT") == "true",

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "screening-reports"),
	}

	if cfg.WormsBaseURL == "" {
		return nil, errors.New("WORMS_BASE_URL is required")
	}
	if cfg.DatasetDir == "" {
		return nil, errors.New("DATASET_DIR is required")
	}
	if cfg.H3Resolution > 15 {
		return nil, errors.New("H3_RESOLUTION must be between 0 and 15")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is empty")
		}
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
