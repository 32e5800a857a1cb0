// Package config loads server configuration from an optional .env file, an
// optional YAML file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when BUILDER_CONFIG is unset. A missing file is not an error.
const DefaultPath = "config.yaml"

// LLM providers.
const (
	LLMNone   = "none"
	LLMOpenAI = "openai"
	LLMOllama = "ollama"
	LLMGemini = "gemini"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Deploy   DeployConfig   `yaml:"deploy"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// FrontendURL is where OAuth callbacks redirect after sign-in.
	FrontendURL string `yaml:"frontend_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	GitHub    OAuthConfig   `yaml:"github"`
	Google    OAuthConfig   `yaml:"google"`
}

type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether both client credentials are set.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	RateLimit int           `yaml:"rate_limit"`
	Window    time.Duration `yaml:"window"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether exports should be uploaded to object storage.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
}

type DeployConfig struct {
	VercelToken  string `yaml:"vercel_token"`
	NetlifyToken string `yaml:"netlify_token"`
	RailwayToken string `yaml:"railway_token"`
	Docker       bool   `yaml:"docker"`
	DockerImage  string `yaml:"docker_image"`
	DockerHost   string `yaml:"docker_host"`
}

type JobsConfig struct {
	PruneSchedule string `yaml:"prune_schedule"`
	KeepAuto      int    `yaml:"keep_auto"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			FrontendURL:  "http://localhost:3000",
		},
		Database: DatabaseConfig{Path: "data/builder.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth:     AuthConfig{TokenTTL: 72 * time.Hour},
		LLM: LLMConfig{
			Provider: LLMNone,
			Timeout:  90 * time.Second,
		},
		Redis:   RedisConfig{RateLimit: 30, Window: time.Minute},
		Storage: StorageConfig{Bucket: "app-builder-exports"},
		Deploy:  DeployConfig{DockerImage: "nginx:alpine"},
		Jobs:    JobsConfig{PruneSchedule: "0 0 3 * * *", KeepAuto: 50},
	}
}

// Load builds the configuration. An empty path falls back to BUILDER_CONFIG
// and then DefaultPath.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("BUILDER_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.Server.FrontendURL, "FRONTEND_URL")
	setInt(&cfg.Server.Port, "PORT", &errs)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCSV(v)
	}

	setString(&cfg.Database.Path, "DB_PATH")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "JWT_TTL", &errs)
	setString(&cfg.Auth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	setString(&cfg.Auth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&cfg.Auth.GitHub.CallbackURL, "GITHUB_CALLBACK_URL")
	setString(&cfg.Auth.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Auth.Google.CallbackURL, "GOOGLE_REDIRECT_URI")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT", &errs)

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.RateLimit, "RATE_LIMIT", &errs)
	setDuration(&cfg.Redis.Window, "RATE_WINDOW", &errs)

	setString(&cfg.Storage.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Storage.Bucket, "MINIO_BUCKET")
	setBool(&cfg.Storage.UseSSL, "MINIO_USE_SSL", &errs)

	setString(&cfg.Deploy.VercelToken, "VERCEL_TOKEN")
	setString(&cfg.Deploy.NetlifyToken, "NETLIFY_TOKEN")
	setString(&cfg.Deploy.RailwayToken, "RAILWAY_TOKEN")
	setBool(&cfg.Deploy.Docker, "DOCKER_DEPLOY", &errs)
	setString(&cfg.Deploy.DockerImage, "DOCKER_DEPLOY_IMAGE")
	setString(&cfg.Deploy.DockerHost, "DOCKER_DEPLOY_HOST")

	setString(&cfg.Jobs.PruneSchedule, "PRUNE_SCHEDULE")
	setInt(&cfg.Jobs.KeepAuto, "PRUNE_KEEP_AUTO", &errs)

	return errors.Join(errs...)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret (JWT_SECRET) must be at least 16 characters")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	switch c.LLM.Provider {
	case LLMNone, LLMOpenAI, LLMOllama, LLMGemini:
	case "":
		c.LLM.Provider = LLMNone
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if (c.LLM.Provider == LLMOpenAI || c.LLM.Provider == LLMGemini) && c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required for provider %s", c.LLM.Provider)
	}
	if c.Redis.Addr != "" && (c.Redis.RateLimit <= 0 || c.Redis.Window <= 0) {
		return errors.New("config: redis.rate_limit and redis.window must be positive")
	}
	if c.Jobs.KeepAuto < 0 {
		return errors.New("config: jobs.keep_auto must not be negative")
	}
	return nil
}

// SlogLevel maps Log.Level onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string, errs *[]error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return
	}
	*dst = n
}

func setBool(dst *bool, key string, errs *[]error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a boolean", key, v))
		return
	}
	*dst = b
}

func setDuration(dst *time.Duration, key string, errs *[]error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not a duration", key, v))
		return
	}
	*dst = d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
