package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names in the order they are checked.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config aggregates every setting of the service.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	OpenAI OpenAIConfig
	Ark    ArkConfig
	Gemini GeminiConfig
	Mock   MockConfig
	Log    LogConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	ark, err := loadArkConfig()
	if err != nil {
		return nil, err
	}

	mock, err := loadMockConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store:  store,
		OpenAI: loadOpenAIConfig(),
		Ark:    ark,
		Gemini: loadGeminiConfig(),
		Mock:   mock,
		Log:    loadLogConfig(),
	}, nil
}

// Provider returns the first provider with a credential, or ProviderMock.
func (c *Config) Provider() string {
	switch {
	case c.OpenAI.Enabled():
		return ProviderOpenAI
	case c.Ark.Enabled():
		return ProviderArk
	case c.Gemini.Enabled():
		return ProviderGemini
	default:
		return ProviderMock
	}
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are passed through as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig selects and locates the session backend.
type StoreConfig struct {
	Driver        string
	Path          string
	SQLiteDSN     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DefaultStorePath is where the file backend keeps sessions, relative to the working directory.
const DefaultStorePath = "server/assistant_sessions.json"

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreFile))
	switch driver {
	case StoreFile, StoreSQLite, StoreRedis:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	db := 0
	if override, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return StoreConfig{}, err
	} else if override != nil {
		db = *override
	}

	return StoreConfig{
		Driver:        driver,
		Path:          getEnvOrDefault("STORE_PATH", DefaultStorePath),
		SQLiteDSN:     getEnvOrDefault("SQLITE_DSN", "server/assistant_sessions.db"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:       db,
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "assistant:"),
	}, nil
}

// OpenAIConfig holds the credential for the raw streaming proxy.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled reports whether the proxy has a key.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL: strings.TrimRight(getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

// ArkConfig describes the Volcengine Ark model used through eino.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether a model and a credential pair are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an eino chat model from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

func loadArkConfig() (ArkConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ArkConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ArkConfig{}, err
	}

	return ArkConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// GeminiConfig holds the Gemini API key. GENAI_API_KEY is accepted as an alias.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether a key is present.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadGeminiConfig() GeminiConfig {
	key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GENAI_API_KEY"))
	}
	return GeminiConfig{
		APIKey: key,
		Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
	}
}

// MockConfig shapes the synthesized chunk stream.
type MockConfig struct {
	ChunkSize     int
	ChunkInterval time.Duration
}

const (
	DefaultChunkSize     = 8
	DefaultChunkInterval = 40 * time.Millisecond
)

func loadMockConfig() (MockConfig, error) {
	size := DefaultChunkSize
	if override, err := parseOptionalIntEnv("MOCK_CHUNK_SIZE"); err != nil {
		return MockConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return MockConfig{}, fmt.Errorf("invalid MOCK_CHUNK_SIZE value %d: must be positive", *override)
		}
		size = *override
	}

	interval, err := parseDurationEnv("MOCK_CHUNK_INTERVAL", DefaultChunkInterval)
	if err != nil {
		return MockConfig{}, err
	}
	if interval <= 0 {
		return MockConfig{}, fmt.Errorf("invalid MOCK_CHUNK_INTERVAL value %s: must be positive", interval)
	}

	return MockConfig{ChunkSize: size, ChunkInterval: interval}, nil
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level string
	JSON  bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		JSON:  strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
