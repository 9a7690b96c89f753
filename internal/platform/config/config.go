// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"wheatleaf_backend/internal/platform/preprocess"
)

const (
	RuntimeONNX      = "onnx"
	RuntimeTFServing = "tfserving"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Model    ModelConfig
	Cache    CacheConfig
	DB       DBConfig
	Gemini   GeminiConfig
	Vision   VisionConfig
	JWT      JWTConfig
	Telegram TelegramConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ShutdownTimeout time.Duration
	AllowOrigins    []string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LogConfig struct {
	Level string
}

type ModelConfig struct {
	Runtime           string
	Path              string
	MetadataPath      string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	ImageSize         int
	Layout            string
	Normalize         bool
	MaxPixels         int
	Warmup            bool

	TFServingURL     string
	TFServingName    string
	TFServingVersion string
	TFServingTimeout time.Duration
}

// Spec returns the preprocessing spec described by the model settings.
func (m ModelConfig) Spec() (preprocess.Spec, error) {
	layout, err := preprocess.ParseLayout(m.Layout)
	if err != nil {
		return preprocess.Spec{}, err
	}
	spec := preprocess.Spec{Width: m.ImageSize, Height: m.ImageSize, Layout: layout, Normalize: m.Normalize}
	return spec, spec.Validate()
}

type CacheConfig struct {
	RedisHost     string // empty disables the prediction cache
	RedisPort     string
	RedisPassword string
	TTL           time.Duration
	Namespace     string
}

// Enabled reports whether a Redis host is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisHost != ""
}

type DBConfig struct {
	Driver         string // "", "postgres" or "sqlite"; empty disables history
	SQLitePath     string
	User           string
	Password       string
	Name           string
	Host           string
	Port           string
	InstanceName   string // Cloud SQL instance connection name
	SSLMode        string
	ConnectTimeout time.Duration
	Migrate        bool
}

type GeminiConfig struct {
	Enabled bool
	Model   string
	Timeout time.Duration
}

type VisionConfig struct {
	Enabled  bool
	MinScore float32
	Timeout  time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type TelegramConfig struct {
	Token          string
	UpdateTimeout  int
	RequestTimeout time.Duration
	Debug          bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 2.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("MODEL_RUNTIME", RuntimeONNX)
	v.SetDefault("MODEL_PATH", "./models/wheat_leaf.onnx")
	v.SetDefault("MODEL_METADATA_PATH", "")
	v.SetDefault("ONNXRUNTIME_LIB_PATH", "")
	v.SetDefault("MODEL_INPUT_NAME", "input")
	v.SetDefault("MODEL_OUTPUT_NAME", "output")
	v.SetDefault("MODEL_IMAGE_SIZE", 128)
	v.SetDefault("MODEL_LAYOUT", string(preprocess.LayoutNHWC))
	v.SetDefault("MODEL_NORMALIZE", false)
	v.SetDefault("MODEL_MAX_PIXELS", 40_000_000)
	v.SetDefault("MODEL_WARMUP", false)
	v.SetDefault("TFSERVING_URL", "http://localhost:8501")
	v.SetDefault("TFSERVING_MODEL", "wheat_leaf")
	v.SetDefault("TFSERVING_VERSION", "")
	v.SetDefault("TFSERVING_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("CACHE_TTL", 24*time.Hour)
	v.SetDefault("CACHE_NAMESPACE", "predictions")

	v.SetDefault("DB_DRIVER", "")
	v.SetDefault("DB_SQLITE_PATH", "wheatleaf.db")
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "wheatleaf")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("INSTANCE_CONNECTION_NAME", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_CONNECT_TIMEOUT", 60*time.Second)
	v.SetDefault("RUN_MIGRATIONS", false)

	v.SetDefault("GEMINI_ENABLED", false)
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("GEMINI_TIMEOUT", 15*time.Second)

	v.SetDefault("VISION_GATE_ENABLED", false)
	v.SetDefault("VISION_GATE_MIN_SCORE", 0.6)
	v.SetDefault("VISION_TIMEOUT", 5*time.Second)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "wheatleaf")
	v.SetDefault("JWT_TTL", 24*time.Hour)

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_UPDATE_TIMEOUT", 60)
	v.SetDefault("TELEGRAM_REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("TELEGRAM_DEBUG", false)
}

// Load reads .env (if present) and the process environment into a Config.
// Each call uses a fresh viper instance.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetString("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			AllowOrigins:    splitList(v.GetString("CORS_ALLOW_ORIGINS")),
			RateLimitRPS:    v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst:  v.GetInt("RATE_LIMIT_BURST"),
		},
		Log: LogConfig{Level: v.GetString("LOG_LEVEL")},
		Model: ModelConfig{
			Runtime:           strings.ToLower(v.GetString("MODEL_RUNTIME")),
			Path:              v.GetString("MODEL_PATH"),
			MetadataPath:      v.GetString("MODEL_METADATA_PATH"),
			SharedLibraryPath: v.GetString("ONNXRUNTIME_LIB_PATH"),
			InputName:         v.GetString("MODEL_INPUT_NAME"),
			OutputName:        v.GetString("MODEL_OUTPUT_NAME"),
			ImageSize:         v.GetInt("MODEL_IMAGE_SIZE"),
			Layout:            v.GetString("MODEL_LAYOUT"),
			Normalize:         v.GetBool("MODEL_NORMALIZE"),
			MaxPixels:         v.GetInt("MODEL_MAX_PIXELS"),
			Warmup:            v.GetBool("MODEL_WARMUP"),
			TFServingURL:      v.GetString("TFSERVING_URL"),
			TFServingName:     v.GetString("TFSERVING_MODEL"),
			TFServingVersion:  v.GetString("TFSERVING_VERSION"),
			TFServingTimeout:  v.GetDuration("TFSERVING_TIMEOUT"),
		},
		Cache: CacheConfig{
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			TTL:           v.GetDuration("CACHE_TTL"),
			Namespace:     v.GetString("CACHE_NAMESPACE"),
		},
		DB: DBConfig{
			Driver:         strings.ToLower(v.GetString("DB_DRIVER")),
			SQLitePath:     v.GetString("DB_SQLITE_PATH"),
			User:           v.GetString("DB_USER"),
			Password:       v.GetString("DB_PASSWORD"),
			Name:           v.GetString("DB_NAME"),
			Host:           v.GetString("DB_HOST"),
			Port:           v.GetString("DB_PORT"),
			InstanceName:   v.GetString("INSTANCE_CONNECTION_NAME"),
			SSLMode:        v.GetString("DB_SSLMODE"),
			ConnectTimeout: v.GetDuration("DB_CONNECT_TIMEOUT"),
			Migrate:        v.GetBool("RUN_MIGRATIONS"),
		},
		Gemini: GeminiConfig{
			Enabled: v.GetBool("GEMINI_ENABLED"),
			Model:   v.GetString("GEMINI_MODEL"),
			Timeout: v.GetDuration("GEMINI_TIMEOUT"),
		},
		Vision: VisionConfig{
			Enabled:  v.GetBool("VISION_GATE_ENABLED"),
			MinScore: float32(v.GetFloat64("VISION_GATE_MIN_SCORE")),
			Timeout:  v.GetDuration("VISION_TIMEOUT"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		Telegram: TelegramConfig{
			Token:          v.GetString("TELEGRAM_BOT_TOKEN"),
			UpdateTimeout:  v.GetInt("TELEGRAM_UPDATE_TIMEOUT"),
			RequestTimeout: v.GetDuration("TELEGRAM_REQUEST_TIMEOUT"),
			Debug:          v.GetBool("TELEGRAM_DEBUG"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at request time.
func (c *Config) Validate() error {
	switch c.Model.Runtime {
	case RuntimeONNX:
		if c.Model.Path == "" {
			return fmt.Errorf("config: MODEL_PATH is required for the onnx runtime")
		}
	case RuntimeTFServing:
		if c.Model.TFServingURL == "" || c.Model.TFServingName == "" {
			return fmt.Errorf("config: TFSERVING_URL and TFSERVING_MODEL are required for the tfserving runtime")
		}
	default:
		return fmt.Errorf("config: unknown MODEL_RUNTIME %q", c.Model.Runtime)
	}
	if _, err := c.Model.Spec(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.DB.Driver {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.JWT.Secret == "" {
		return fmt.Errorf("config: JWT_SECRET is required when history is enabled")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
