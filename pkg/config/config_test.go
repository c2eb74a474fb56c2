package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 18080 {
		t.Fatalf("default port %d", cfg.Gateway.Port)
	}
	if cfg.Providers.DeepSeek.DefaultModel != "deepseek-chat" {
		t.Fatalf("default model %q", cfg.Providers.DeepSeek.DefaultModel)
	}
	if cfg.Queue.Workers != 4 || cfg.Queue.LeaseSec != 300 {
		t.Fatalf("queue defaults %+v", cfg.Queue)
	}
}

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{
  "gateway": {"host": "127.0.0.1", "port": 9000, "tls": true}
}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown field") {
		t.Fatalf("expected unknown field error, got: %v", err)
	}
}

func TestLoadConfigRejectsTrailingJSONContent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{"gateway":{"host":"127.0.0.1","port":9000}}{"extra":true}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected trailing json content error")
	}
	if !strings.Contains(err.Error(), "trailing JSON content") {
		t.Fatalf("expected trailing JSON content error, got: %v", err)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CHATRELAY_GATEWAY_PORT", "9999")
	t.Setenv("CHATRELAY_SOURCES_WECHAT_TOKEN", "env-token")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 9999 {
		t.Fatalf("port %d, want env override", cfg.Gateway.Port)
	}
	if cfg.Sources.WeChat.Token != "env-token" {
		t.Fatalf("token %q, want env override", cfg.Sources.WeChat.Token)
	}
}

func TestLoadConfigFileValuesSurvive(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	content := `{
  "gateway": {"host": "127.0.0.1", "port": 9000},
  "sources": {
    "wecom": {
      "enabled": true,
      "token": "tok",
      "encoding_aes_key": "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWE",
      "corp_id": "ww1",
      "default": {"app_secret": "s", "agent_id": 1000001},
      "bindings": {
        "groq/deepseek-r1-distill-llama-70b": {"app_secret": "s2", "agent_id": 1000002}
      }
    }
  }
}`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 9000 {
		t.Fatalf("gateway %+v", cfg.Gateway)
	}

	b := cfg.Sources.WeCom.Binding("groq", "deepseek-r1-distill-llama-70b")
	if b.AgentID != 1000002 {
		t.Fatalf("bound agent %d, want the specific binding", b.AgentID)
	}
	b = cfg.Sources.WeCom.Binding("deepseek", "deepseek-chat")
	if b.AgentID != 1000001 {
		t.Fatalf("fallback agent %d, want the default binding", b.AgentID)
	}
	// File values must survive the env pass untouched.
	if cfg.Sources.WeCom.ChunkBytes != 2000 {
		t.Fatalf("chunk bytes %d, want the default", cfg.Sources.WeCom.ChunkBytes)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("default config must validate, got %v", errs)
	}

	cfg.Sources.WeCom.Enabled = true
	cfg.Sources.WeCom.Token = "tok"
	cfg.Sources.WeCom.EncodingAESKey = "too-short"
	cfg.Sources.WeCom.CorpID = "ww1"
	cfg.Sources.WeCom.Default = CredentialBinding{AppSecret: "s", AgentID: 1}
	cfg.Queue.LeaseSec = 5

	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatalf("expected validation errors")
	}
	joined := ""
	for _, e := range errs {
		joined += e.Error() + "\n"
	}
	if !strings.Contains(joined, "encoding_aes_key") {
		t.Fatalf("missing aes key error in %q", joined)
	}
	if !strings.Contains(joined, "lease_sec") {
		t.Fatalf("missing lease error in %q", joined)
	}
}
