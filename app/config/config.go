package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

type Config struct {
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
	LLM    LLM    `yaml:"llm"`
	Agent  Agent  `yaml:"agent"`
	Google Google `yaml:"google"`
	Auth   Auth   `yaml:"auth"`
	Store  Store  `yaml:"store"`
	MCP    MCP    `yaml:"mcp"`
}

type Server struct {
	// Address to listen on
	Listen string `yaml:"listen" example:":8080" validate:"required"`
	// Frontend origin allowed by CORS
	FrontendURL string `yaml:"frontend_url" example:"http://localhost:3000" validate:"required"`
	// Max upload size in megabytes
	BodyLimitMB int `yaml:"body_limit_mb" example:"10" validate:"min=1"`
	// Deadline for a single request, including the agent run
	RequestTimeout time.Duration `yaml:"request_timeout" example:"90s"`
	// Receipt uploads allowed per user per minute
	ReceiptsPerMinute int `yaml:"receipts_per_minute" example:"10" validate:"min=1"`
}

type LLM struct {
	// OpenAI-compatible base url
	BaseURL string `yaml:"base_url" example:"https://generativelanguage.googleapis.com/v1beta/openai/" validate:"required"`
	// API token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Model name
	Model string `yaml:"model" example:"gemini-2.0-flash" validate:"required"`
	// Sampling temperature
	Temperature float64 `yaml:"temperature" example:"0"`
	// HTTP timeout for a single model call
	Timeout time.Duration `yaml:"timeout" example:"60s"`
}

type Agent struct {
	// Max decide steps per run
	MaxIterations int `yaml:"max_iterations" example:"10" validate:"min=1,max=50"`
	// Tool invocations dispatched in parallel within one act step
	ToolConcurrency int `yaml:"tool_concurrency" example:"1" validate:"min=1,max=16"`
	// Offer the finish_task tool to the model
	StructuredOutcome bool `yaml:"structured_outcome" example:"true"`
}

type Google struct {
	// OAuth client id
	ClientID string `yaml:"client_id" example:"1234567890-abc.apps.googleusercontent.com" validate:"required"`
	// OAuth client secret
	ClientSecret string `yaml:"client_secret" example:"GOCSPX-abc123" validate:"required"`
	// Token endpoint, Google's by default
	TokenURL string `yaml:"token_url" example:"https://oauth2.googleapis.com/token" validate:"required,url"`
	// Sheets API endpoint override, empty means the default one
	SheetsEndpoint string `yaml:"sheets_endpoint" example:"https://sheets.googleapis.com/"`
	// Sheets API calls per second for the whole process
	RequestsPerSecond float64 `yaml:"requests_per_second" example:"1" validate:"gt=0"`
}

type Auth struct {
	// HS256 secret used to sign user JWTs
	JWTSecret string `yaml:"jwt_secret" validate:"required"`
	// Expected audience, empty disables the check
	Audience string `yaml:"audience" example:"authenticated"`
}

type Store struct {
	// Storage driver: file or redis
	Driver string `yaml:"driver" example:"file" validate:"oneof=file redis"`
	// JSON lines file for the file driver
	Path  string `yaml:"path" example:"data/registry.jsonl"`
	Redis Redis  `yaml:"redis"`
	// Base64 encoded 32 byte key sealing refresh tokens at rest
	TokenKey string `yaml:"token_key" validate:"required,base64"`
}

type Redis struct {
	Addr     string `yaml:"addr" example:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" example:"0"`
	// Key prefix
	Prefix string `yaml:"prefix" example:"receiptagent"`
}

type MCP struct {
	// Serve the tool set over MCP at /mcp
	Enabled bool `yaml:"enabled" example:"false"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

// Secrets lists configured values that must never reach a log sink.
func (c *Config) Secrets() []string {
	values := []string{
		c.LLM.Token,
		c.Google.ClientSecret,
		c.Auth.JWTSecret,
		c.Store.TokenKey,
		c.Store.Redis.Password,
		c.Log.Telegram.Token,
	}

	result := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			result = append(result, v)
		}
	}

	return result
}

func Load() (*Config, error) {
	return LoadFile(defaultPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var result Config

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	if result.Store.Driver == "redis" && result.Store.Redis.Addr == "" {
		return nil, oops.Errorf("failed to validate config: store.redis.addr is required for the redis driver")
	}

	return &result, nil
}

func applyDefaults(c *Config) {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.BodyLimitMB == 0 {
		c.Server.BodyLimitMB = 10
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 90 * time.Second
	}
	if c.Server.ReceiptsPerMinute == 0 {
		c.Server.ReceiptsPerMinute = 10
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.ToolConcurrency == 0 {
		c.Agent.ToolConcurrency = 1
	}
	if c.Google.TokenURL == "" {
		c.Google.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.Google.RequestsPerSecond == 0 {
		c.Google.RequestsPerSecond = 1
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/registry.jsonl"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "receiptagent"
	}
}
