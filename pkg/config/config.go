package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Sources   SourcesConfig   `json:"sources"`
	Providers ProvidersConfig `json:"providers"`
	Queue     QueueConfig     `json:"queue"`
	Logging   LoggingConfig   `json:"logging"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"CHATRELAY_GATEWAY_HOST"`
	Port int    `json:"port" env:"CHATRELAY_GATEWAY_PORT"`
}

type SourcesConfig struct {
	WeChat WeChatConfig `json:"wechat"`
	WeCom  WeComConfig  `json:"wecom"`
	Feishu FeishuConfig `json:"feishu"`
}

// WeChatConfig covers the plain-signature platform: an Official Account
// that verifies webhooks with a shared token and delivers replies through
// the customer-service message API.
type WeChatConfig struct {
	Enabled    bool   `json:"enabled" env:"CHATRELAY_SOURCES_WECHAT_ENABLED"`
	Token      string `json:"token" env:"CHATRELAY_SOURCES_WECHAT_TOKEN"`
	AppID      string `json:"app_id" env:"CHATRELAY_SOURCES_WECHAT_APP_ID"`
	AppSecret  string `json:"app_secret" env:"CHATRELAY_SOURCES_WECHAT_APP_SECRET"`
	APIBase    string `json:"api_base" env:"CHATRELAY_SOURCES_WECHAT_API_BASE"`
	ChunkBytes int    `json:"chunk_bytes" env:"CHATRELAY_SOURCES_WECHAT_CHUNK_BYTES"`
}

// WeComConfig covers the encrypted-envelope platform. Outbound delivery
// needs an app secret and agent id; those can differ per (provider, model)
// pair, so Bindings maps "provider/model" keys to overrides and Default is
// the fallback binding.
type WeComConfig struct {
	Enabled        bool                         `json:"enabled" env:"CHATRELAY_SOURCES_WECOM_ENABLED"`
	Token          string                       `json:"token" env:"CHATRELAY_SOURCES_WECOM_TOKEN"`
	EncodingAESKey string                       `json:"encoding_aes_key" env:"CHATRELAY_SOURCES_WECOM_ENCODING_AES_KEY"`
	CorpID         string                       `json:"corp_id" env:"CHATRELAY_SOURCES_WECOM_CORP_ID"`
	APIBase        string                       `json:"api_base" env:"CHATRELAY_SOURCES_WECOM_API_BASE"`
	ChunkBytes     int                          `json:"chunk_bytes" env:"CHATRELAY_SOURCES_WECOM_CHUNK_BYTES"`
	Default        CredentialBinding            `json:"default"`
	Bindings       map[string]CredentialBinding `json:"bindings"`
}

type CredentialBinding struct {
	AppSecret string `json:"app_secret"`
	AgentID   int64  `json:"agent_id"`
}

type FeishuConfig struct {
	Enabled           bool   `json:"enabled" env:"CHATRELAY_SOURCES_FEISHU_ENABLED"`
	AppID             string `json:"app_id" env:"CHATRELAY_SOURCES_FEISHU_APP_ID"`
	AppSecret         string `json:"app_secret" env:"CHATRELAY_SOURCES_FEISHU_APP_SECRET"`
	VerificationToken string `json:"verification_token" env:"CHATRELAY_SOURCES_FEISHU_VERIFICATION_TOKEN"`
	ChunkBytes        int    `json:"chunk_bytes" env:"CHATRELAY_SOURCES_FEISHU_CHUNK_BYTES"`
}

type ProvidersConfig struct {
	DeepSeek ProviderConfig `json:"deepseek"`
	Groq     ProviderConfig `json:"groq"`
	Qwen     ProviderConfig `json:"qwen"`
	GeekAI   ProviderConfig `json:"geekai"`
	Tencent  ProviderConfig `json:"tencent"`
}

// ProviderConfig is one backend's full decoding setup. Near-identical
// backends differ only in these fields, never in code.
type ProviderConfig struct {
	Enabled      bool    `json:"enabled"`
	APIKey       string  `json:"api_key"`
	APIBase      string  `json:"api_base"`
	DefaultModel string  `json:"default_model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Stream       bool    `json:"stream"`
	TimeoutSec   int     `json:"timeout_sec"`
	Proxy        string  `json:"proxy"`
}

type QueueConfig struct {
	DBPath         string `json:"db_path" env:"CHATRELAY_QUEUE_DB_PATH"`
	Workers        int    `json:"workers" env:"CHATRELAY_QUEUE_WORKERS"`
	LeaseSec       int    `json:"lease_sec" env:"CHATRELAY_QUEUE_LEASE_SEC"`
	RetentionHours int    `json:"retention_hours" env:"CHATRELAY_QUEUE_RETENTION_HOURS"`
	CleanupSpec    string `json:"cleanup_spec" env:"CHATRELAY_QUEUE_CLEANUP_SPEC"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"CHATRELAY_LOGGING_ENABLED"`
	Dir           string `json:"dir" env:"CHATRELAY_LOGGING_DIR"`
	Filename      string `json:"filename" env:"CHATRELAY_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"CHATRELAY_LOGGING_MAX_SIZE_MB"`
	RetentionDays int    `json:"retention_days" env:"CHATRELAY_LOGGING_RETENTION_DAYS"`
}

func GetConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatrelay")
}

func DefaultConfig() *Config {
	configDir := GetConfigDir()
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18080,
		},
		Sources: SourcesConfig{
			WeChat: WeChatConfig{
				Enabled:    false,
				APIBase:    "https://api.weixin.qq.com",
				ChunkBytes: 2000,
			},
			WeCom: WeComConfig{
				Enabled:    false,
				APIBase:    "https://qyapi.weixin.qq.com",
				ChunkBytes: 2000,
				Bindings:   map[string]CredentialBinding{},
			},
			Feishu: FeishuConfig{
				Enabled:    false,
				ChunkBytes: 2000,
			},
		},
		Providers: ProvidersConfig{
			DeepSeek: ProviderConfig{
				APIBase:      "https://api.deepseek.com/v1",
				DefaultModel: "deepseek-chat",
				Temperature:  0.7,
				MaxTokens:    4000,
				Stream:       false,
				TimeoutSec:   120,
			},
			Groq: ProviderConfig{
				APIBase:      "https://api.groq.com/openai/v1",
				DefaultModel: "deepseek-r1-distill-llama-70b",
				Temperature:  0.6,
				MaxTokens:    6000,
				Stream:       true,
				TimeoutSec:   120,
			},
			Qwen: ProviderConfig{
				APIBase:      "https://geekai.co/api/v1",
				DefaultModel: "qwq-plus",
				Temperature:  0.7,
				MaxTokens:    8000,
				Stream:       true,
				TimeoutSec:   180,
			},
			GeekAI: ProviderConfig{
				APIBase:      "https://geekai.co/api/v1",
				DefaultModel: "gemma-3-27b-it:free",
				Temperature:  0.7,
				MaxTokens:    8000,
				Stream:       true,
				TimeoutSec:   120,
			},
			Tencent: ProviderConfig{
				APIBase:      "https://hunyuan.cloud.tencent.com/hyllm/v1",
				DefaultModel: "hunyuan",
				Temperature:  0.7,
				MaxTokens:    4000,
				Stream:       false,
				TimeoutSec:   60,
			},
		},
		Queue: QueueConfig{
			DBPath:         filepath.Join(configDir, "queue", "jobs.db"),
			Workers:        4,
			LeaseSec:       300,
			RetentionHours: 24,
			CleanupSpec:    "@hourly",
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Dir:           filepath.Join(configDir, "logs"),
			Filename:      "chatrelay.log",
			MaxSizeMB:     20,
			RetentionDays: 3,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := unmarshalConfigStrict(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) LogFilePath() string {
	filename := c.Logging.Filename
	if filename == "" {
		filename = "chatrelay.log"
	}
	return filepath.Join(c.Logging.Dir, filename)
}

// Binding resolves the WeCom delivery credential for a (provider, model)
// pair, falling back to the platform-wide default.
func (w *WeComConfig) Binding(provider, model string) CredentialBinding {
	if b, ok := w.Bindings[provider+"/"+model]; ok {
		return b
	}
	return w.Default
}
