package internal

import (
	"fmt"
	"os"
	"quorum/domain"
	"quorum/errors"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StoreBadger = "badger"
	StoreMongo  = "mongo"
	StoreBolt   = "bolt"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR,default=:8080"`
	AdminAddr string `env:"ADMIN_ADDR,default=:9090"`
	DebugPort int    `env:"DEBUG_PORT,default=0"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	BoltFilepath   string `env:"BOLT_FILEPATH,default=./data/quorum.bolt"`
	MongoURI       string `env:"MONGO_URI"`
	MongoDatabase  string `env:"MONGO_DATABASE,default=quorum"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=./data/bluge"`
	LimitMessages  int    `env:"LIMIT_MESSAGES,default=100"`
	SearchLimit    int    `env:"SEARCH_LIMIT,default=20"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	IndexBufferSize      int           `env:"INDEX_BUFFER_SIZE,default=1024"`
	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,default=1024"`
	IndexBatchSize       int           `env:"INDEX_BATCH_SIZE,default=50"`
	IndexBufferTimeout   time.Duration `env:"INDEX_BUFFER_TIMEOUT,default=2s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=5s"`

	MaxMessageSize     int           `env:"MAX_MESSAGE_SIZE,default=4000"`
	MaxAttachmentBytes int           `env:"MAX_ATTACHMENT_BYTES,default=5242880"`
	MaxFrameBytes      int64         `env:"MAX_FRAME_BYTES,default=8388608"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST,default=10"`
	RateLimitInterval  time.Duration `env:"RATE_LIMIT_INTERVAL,default=200ms"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS,default=*"`
	PublicGroups       string        `env:"PUBLIC_GROUPS,default=lobby"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=500ms"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=8"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// LoadConfig reads a .env file when there is one, the environment wins over it.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger:
	case StoreBolt:
		if c.BoltFilepath == "" {
			return fmt.Errorf("%w: BOLT_FILEPATH is required by the bolt driver", errors.ErrValidation)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI is required by the mongo driver", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownStoreDriver, c.StoreDriver)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	if c.ConnectionBufferSize <= 0 || c.IndexBufferSize <= 0 || c.TelemetryBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", errors.ErrValidation)
	}
	if c.RateLimitInterval <= 0 {
		return fmt.Errorf("%w: RATE_LIMIT_INTERVAL must be positive", errors.ErrValidation)
	}
	return nil
}

func (c Config) PublicGroupIDs() []domain.GroupID {
	return domain.ParseGroupIDs(c.PublicGroups)
}

func (c Config) AllowedOriginList() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w: CHARACTER_REPLACEMENT must be a single character, got %q", errors.ErrValidation, str)
	}
	return r[0], nil
}
