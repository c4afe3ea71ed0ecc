// Package config manages guildbot configuration: YAML file loading with
// environment overrides, the known-model registry, and encrypted secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"guildbot/pkg/logx"
)

// Global config instance with mutex protection.
// dataDir is set once during LoadConfig and never changes - it defines where all
// guildbot files (secrets, database) are stored.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config  *Config
	dataDir string
	logger  *logx.Logger
	mu      sync.RWMutex
)

const (
	// ConfigFilename is the YAML config file looked up in the data directory.
	ConfigFilename = "guildbot.yaml"
	// DataDirName holds secrets and the database, relative to the working directory.
	DataDirName = ".guildbot"
	// DatabaseFilename is the sqlite database file inside DataDirName.
	DatabaseFilename = "guildbot.db"

	// Provider constants.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	// Bot token secret name (secrets file or environment).
	EnvBotToken = "GUILDBOT_TOKEN"

	// Model name constants.
	ModelClaudeSonnet4    = "claude-sonnet-4-5"
	ModelClaudeOpus45     = "claude-opus-4-5"
	ModelGPT4o            = "gpt-4o"
	ModelOpenAIO3Mini     = "o3-mini"
	ModelGemini25Flash    = "gemini-2.5-flash"
	DefaultGeneratorModel = ModelClaudeSonnet4
	DefaultUtilityModel   = ModelClaudeSonnet4

	// Docker sandbox runtime defaults (applied when not specified in config).
	DefaultSandboxImage  = "golang:alpine"
	DefaultSandboxCPUs   = "1"
	DefaultSandboxMemory = "512m"
	DefaultSandboxPIDs   = int64(256)
)

// getLogger returns the config logger, initializing it if needed.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...interface{}) {
	getLogger().Info(format, args...)
}

// PlatformConfig contains chat-platform connection settings.
type PlatformConfig struct {
	APIBaseURL string `yaml:"api_base_url"` // REST endpoint base
	GatewayURL string `yaml:"gateway_url"`  // websocket event stream
	GuildID    string `yaml:"guild_id"`     // home guild the bot serves
	BotUserID  string `yaml:"bot_user_id"`  // the bot's own user id (mention detection)
}

// DockerSandboxConfig controls containerized snippet execution.
// When disabled the sandbox falls back to a plain subprocess.
type DockerSandboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image"`
	Network string `yaml:"network"` // "none" keeps snippets offline except the platform API
	CPUs    string `yaml:"cpus"`
	Memory  string `yaml:"memory"`
	PIDs    int64  `yaml:"pids"`
}

// CodeModeConfig controls the code-request subsystem.
type CodeModeConfig struct {
	Enabled            bool                `yaml:"enabled"`
	CategoryAllowlist  []string            `yaml:"category_allowlist"`   // category ids where mentions qualify
	PermissionRole     string              `yaml:"permission_role"`      // role id required to trigger
	GeneratorModel     string              `yaml:"generator_model"`
	ClassifierModel    string              `yaml:"classifier_model"`
	SummarizerModel    string              `yaml:"summarizer_model"`
	MaxGenerationSteps int                 `yaml:"max_generation_steps"` // agentic loop cap
	ApprovalTimeoutSec int                 `yaml:"approval_timeout_sec"` // button wait window
	SandboxTimeoutSec  int                 `yaml:"sandbox_timeout_sec"`  // watchdog wall clock
	SandboxToken       string              `yaml:"sandbox_token"`        // optional narrower credential; empty = bot token
	Docker             DockerSandboxConfig `yaml:"docker"`
}

// ChatConfig controls conversational replies to non-code mentions.
type ChatConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// StreaksConfig controls commit-streak tracking.
type StreaksConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CommitsChannel string `yaml:"commits_channel"` // channel id watched for commit evidence
	DigestCron     string `yaml:"digest_cron"`     // e.g. "daily:09:00"
	DigestChannel  string `yaml:"digest_channel"`  // leaderboard destination; empty = commits channel
}

// WelcomeConfig controls the welcomer, auto-thread, and evergreen repost features.
type WelcomeConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Channel          string   `yaml:"channel"`           // welcome message destination
	ShowcaseChannels []string `yaml:"showcase_channels"` // every post gets a discussion thread
	EvergreenChannel string   `yaml:"evergreen_channel"`
	EvergreenMessage string   `yaml:"evergreen_message"`
	EvergreenCron    string   `yaml:"evergreen_cron"` // e.g. "weekly:Monday:08:00"
}

// MetricsConfig controls the prometheus endpoint and usage queries.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Port          int    `yaml:"port"`           // /metrics + /healthz listen port
	PrometheusURL string `yaml:"prometheus_url"` // scraping server, for the usage command
}

// Config is the root configuration structure loaded from guildbot.yaml.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	CodeMode CodeModeConfig `yaml:"codemode"`
	Chat     ChatConfig     `yaml:"chat"`
	Streaks  StreaksConfig  `yaml:"streaks"`
	Welcome  WelcomeConfig  `yaml:"welcome"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// GetConfig returns a copy of the current configuration.
// Returns an error if LoadConfig has not been called.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting replaces the global config. Test helper only.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// GetDataDir returns the directory holding secrets and the database.
func GetDataDir() string {
	mu.RLock()
	defer mu.RUnlock()
	if dataDir == "" {
		return DataDirName
	}
	return dataDir
}

// DatabasePath returns the sqlite file path inside the data directory.
func DatabasePath() string {
	return filepath.Join(GetDataDir(), DatabaseFilename)
}

// LoadConfig loads configuration with precedence: defaults < YAML file < environment.
// workDir is the directory containing guildbot.yaml and the .guildbot data dir;
// empty means the current directory.
func LoadConfig(workDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if workDir == "" {
		workDir = "."
	}

	cfg := defaultConfig()

	configPath := filepath.Join(workDir, ConfigFilename)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
		getLogger().Info("Loaded configuration from %s", configPath)
	case os.IsNotExist(err):
		getLogger().Info("No %s found, using defaults + environment", ConfigFilename)
	default:
		return fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	config = cfg
	dataDir = filepath.Join(workDir, DataDirName)
	return nil
}

// defaultConfig returns the baseline configuration before YAML and env are applied.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			APIBaseURL: "https://discord.com/api/v10",
			GatewayURL: "wss://gateway.discord.gg/?v=10&encoding=json",
		},
		CodeMode: CodeModeConfig{
			Enabled:            true,
			GeneratorModel:     DefaultGeneratorModel,
			ClassifierModel:    DefaultUtilityModel,
			SummarizerModel:    DefaultUtilityModel,
			MaxGenerationSteps: 10,
			ApprovalTimeoutSec: 60,
			SandboxTimeoutSec:  120,
		},
		Chat: ChatConfig{
			Model:     DefaultUtilityModel,
			MaxTokens: 1024,
		},
		Streaks: StreaksConfig{
			DigestCron: "daily:09:00",
		},
		Welcome: WelcomeConfig{
			EvergreenCron: "weekly:Monday",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides applies GUILDBOT_* environment variables over the loaded file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUILDBOT_GUILD_ID"); v != "" {
		cfg.Platform.GuildID = v
	}
	if v := os.Getenv("GUILDBOT_API_BASE_URL"); v != "" {
		cfg.Platform.APIBaseURL = v
	}
	if v := os.Getenv("GUILDBOT_GATEWAY_URL"); v != "" {
		cfg.Platform.GatewayURL = v
	}
	if v := os.Getenv("GUILDBOT_BOT_USER_ID"); v != "" {
		cfg.Platform.BotUserID = v
	}
	if v := os.Getenv("GUILDBOT_SANDBOX_TOKEN"); v != "" {
		cfg.CodeMode.SandboxToken = v
	}
	if v := os.Getenv("GUILDBOT_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("GUILDBOT_PROMETHEUS_URL"); v != "" {
		cfg.Metrics.PrometheusURL = v
	}
}

// applyDefaults fills fields that must never be empty, after YAML/env application.
func applyDefaults(cfg *Config) {
	if cfg.CodeMode.MaxGenerationSteps <= 0 {
		cfg.CodeMode.MaxGenerationSteps = 10
	}
	if cfg.CodeMode.ApprovalTimeoutSec <= 0 {
		cfg.CodeMode.ApprovalTimeoutSec = 60
	}
	if cfg.CodeMode.SandboxTimeoutSec <= 0 {
		cfg.CodeMode.SandboxTimeoutSec = 120
	}
	if cfg.CodeMode.GeneratorModel == "" {
		cfg.CodeMode.GeneratorModel = DefaultGeneratorModel
	}
	if cfg.CodeMode.ClassifierModel == "" {
		cfg.CodeMode.ClassifierModel = DefaultUtilityModel
	}
	if cfg.CodeMode.SummarizerModel == "" {
		cfg.CodeMode.SummarizerModel = DefaultUtilityModel
	}
	if cfg.CodeMode.Docker.Enabled {
		if cfg.CodeMode.Docker.Image == "" {
			cfg.CodeMode.Docker.Image = DefaultSandboxImage
		}
		if cfg.CodeMode.Docker.Network == "" {
			cfg.CodeMode.Docker.Network = "bridge"
		}
		if cfg.CodeMode.Docker.CPUs == "" {
			cfg.CodeMode.Docker.CPUs = DefaultSandboxCPUs
		}
		if cfg.CodeMode.Docker.Memory == "" {
			cfg.CodeMode.Docker.Memory = DefaultSandboxMemory
		}
		if cfg.CodeMode.Docker.PIDs <= 0 {
			cfg.CodeMode.Docker.PIDs = DefaultSandboxPIDs
		}
	}
	if cfg.Chat.MaxTokens <= 0 {
		cfg.Chat.MaxTokens = 1024
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = DefaultUtilityModel
	}
	if cfg.Streaks.Enabled && cfg.Streaks.DigestChannel == "" {
		cfg.Streaks.DigestChannel = cfg.Streaks.CommitsChannel
	}
	if cfg.Metrics.Port <= 0 {
		cfg.Metrics.Port = 9090
	}
}

// validateConfig checks required fields and cross-field constraints.
func validateConfig(cfg *Config) error {
	if cfg.Platform.GuildID == "" {
		return fmt.Errorf("platform.guild_id is required (or GUILDBOT_GUILD_ID)")
	}
	if cfg.Platform.APIBaseURL == "" {
		return fmt.Errorf("platform.api_base_url cannot be empty")
	}
	if cfg.Platform.GatewayURL == "" {
		return fmt.Errorf("platform.gateway_url cannot be empty")
	}
	if cfg.CodeMode.Enabled {
		if _, err := GetModelProvider(cfg.CodeMode.GeneratorModel); err != nil {
			return fmt.Errorf("codemode.generator_model: %w", err)
		}
		if _, err := GetModelProvider(cfg.CodeMode.ClassifierModel); err != nil {
			return fmt.Errorf("codemode.classifier_model: %w", err)
		}
		if _, err := GetModelProvider(cfg.CodeMode.SummarizerModel); err != nil {
			return fmt.Errorf("codemode.summarizer_model: %w", err)
		}
	}
	if cfg.Streaks.Enabled && cfg.Streaks.CommitsChannel == "" {
		return fmt.Errorf("streaks.commits_channel is required when streaks are enabled")
	}
	if cfg.Welcome.Enabled && cfg.Welcome.Channel == "" {
		return fmt.Errorf("welcome.channel is required when the welcomer is enabled")
	}
	return nil
}

// GetBotToken returns the platform bot token from the secrets file or environment.
func GetBotToken() (string, error) {
	token, err := GetSecret(EnvBotToken)
	if err != nil {
		return "", fmt.Errorf("bot token not found: set %s in secrets file or environment", EnvBotToken)
	}
	return token, nil
}

// GetSandboxToken returns the credential generated scripts authenticate with.
// Operators may configure a narrower-scoped token; the default is the bot's own.
func GetSandboxToken() (string, error) {
	mu.RLock()
	override := ""
	if config != nil {
		override = config.CodeMode.SandboxToken
	}
	mu.RUnlock()

	if override != "" {
		return override, nil
	}
	return GetBotToken()
}

// GetAPIKey returns the API key for a given provider.
// Checks secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		// Ollama doesn't use API keys - return host URL instead
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}
