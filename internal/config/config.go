package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Provider 标识大模型供应商。
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Session: session, Log: log}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。API Key 不在这里：它随会话由用户提供。
type AIConfig struct {
	Provider    Provider
	Model       string
	VisionModel string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("LLM_PROVIDER", string(ProviderGemini))))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI, ProviderMock:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q: want gemini, ark, openai or mock", provider)
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens != nil && *maxTokens < 1 {
		return AIConfig{}, fmt.Errorf("invalid LLM_MAX_TOKENS value %d: must be positive", *maxTokens)
	}

	model := getEnvOrDefault("LLM_MODEL", defaultModel(provider))
	if model == "" {
		return AIConfig{}, fmt.Errorf("LLM_MODEL is required for provider %s", provider)
	}

	return AIConfig{
		Provider:    provider,
		Model:       model,
		VisionModel: getEnvOrDefault("LLM_VISION_MODEL", model),
		BaseURL:     getEnvOrDefault("LLM_BASE_URL", defaultBaseURL(provider)),
		Region:      getEnvOrDefault("LLM_REGION", defaultRegion(provider)),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func defaultModel(p Provider) string {
	switch p {
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderMock:
		return "mock"
	default:
		// Ark 的模型是用户自己的推理接入点，没有通用默认值。
		return ""
	}
}

func defaultBaseURL(p Provider) string {
	switch p {
	case ProviderArk:
		return "https://ark.cn-beijing.volces.com/api/v3"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

func defaultRegion(p Provider) string {
	if p == ProviderArk {
		return "cn-beijing"
	}
	return ""
}

// SessionConfig 描述会话与图片处理的限制。
type SessionConfig struct {
	HistoryWindow  int
	DefaultName    string
	MaxImageBytes  int64
	MaxImagePixels int64
	MaxImageSide   int
	JPEGQuality    int
}

func loadSessionConfig() (SessionConfig, error) {
	window := 8
	if override, err := parseOptionalIntEnv("CHAT_HISTORY_WINDOW"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return SessionConfig{}, fmt.Errorf("invalid CHAT_HISTORY_WINDOW value %d: must not be negative", *override)
		}
		window = *override
	}

	maxBytes := int64(10 << 20)
	if override, err := parseOptionalIntEnv("IMAGE_MAX_BYTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid IMAGE_MAX_BYTES value %d: must be positive", *override)
		}
		maxBytes = int64(*override)
	}

	maxPixels := int64(40_000_000)
	if override, err := parseOptionalIntEnv("IMAGE_MAX_PIXELS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid IMAGE_MAX_PIXELS value %d: must be positive", *override)
		}
		maxPixels = int64(*override)
	}

	maxSide := 1024
	if override, err := parseOptionalIntEnv("IMAGE_MAX_DIMENSION"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		// 0 表示不缩放。
		if *override < 0 {
			return SessionConfig{}, fmt.Errorf("invalid IMAGE_MAX_DIMENSION value %d", *override)
		}
		maxSide = *override
	}

	quality := 90
	if override, err := parseOptionalIntEnv("IMAGE_JPEG_QUALITY"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 || *override > 100 {
			return SessionConfig{}, fmt.Errorf("invalid IMAGE_JPEG_QUALITY value %d: want 1-100", *override)
		}
		quality = *override
	}

	return SessionConfig{
		HistoryWindow:  window,
		DefaultName:    getEnvOrDefault("CHARACTER_DEFAULT_NAME", "Alex"),
		MaxImageBytes:  maxBytes,
		MaxImagePixels: maxPixels,
		MaxImageSide:   maxSide,
		JPEGQuality:    quality,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want json or console", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
