package config

import "fmt"

// Validate returns configuration problems found in cfg.
// It does not mutate cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port must be in (0,65535]"))
	}

	if cfg.Sources.WeChat.Enabled {
		if cfg.Sources.WeChat.Token == "" {
			errs = append(errs, fmt.Errorf("sources.wechat.token is required when wechat is enabled"))
		}
		if cfg.Sources.WeChat.AppID == "" || cfg.Sources.WeChat.AppSecret == "" {
			errs = append(errs, fmt.Errorf("sources.wechat.app_id and app_secret are required when wechat is enabled"))
		}
		if cfg.Sources.WeChat.ChunkBytes <= 0 {
			errs = append(errs, fmt.Errorf("sources.wechat.chunk_bytes must be > 0"))
		}
	}

	if cfg.Sources.WeCom.Enabled {
		if cfg.Sources.WeCom.Token == "" {
			errs = append(errs, fmt.Errorf("sources.wecom.token is required when wecom is enabled"))
		}
		if len(cfg.Sources.WeCom.EncodingAESKey) != 43 {
			errs = append(errs, fmt.Errorf("sources.wecom.encoding_aes_key must be 43 characters"))
		}
		if cfg.Sources.WeCom.CorpID == "" {
			errs = append(errs, fmt.Errorf("sources.wecom.corp_id is required when wecom is enabled"))
		}
		if cfg.Sources.WeCom.Default.AppSecret == "" || cfg.Sources.WeCom.Default.AgentID == 0 {
			errs = append(errs, fmt.Errorf("sources.wecom.default binding (app_secret, agent_id) is required when wecom is enabled"))
		}
		if cfg.Sources.WeCom.ChunkBytes <= 0 {
			errs = append(errs, fmt.Errorf("sources.wecom.chunk_bytes must be > 0"))
		}
	}

	if cfg.Sources.Feishu.Enabled {
		if cfg.Sources.Feishu.AppID == "" || cfg.Sources.Feishu.AppSecret == "" {
			errs = append(errs, fmt.Errorf("sources.feishu.app_id and app_secret are required when feishu is enabled"))
		}
		if cfg.Sources.Feishu.VerificationToken == "" {
			errs = append(errs, fmt.Errorf("sources.feishu.verification_token is required when feishu is enabled"))
		}
	}

	providers := map[string]ProviderConfig{
		"deepseek": cfg.Providers.DeepSeek,
		"groq":     cfg.Providers.Groq,
		"qwen":     cfg.Providers.Qwen,
		"geekai":   cfg.Providers.GeekAI,
		"tencent":  cfg.Providers.Tencent,
	}
	for name, p := range providers {
		if !p.Enabled {
			continue
		}
		if p.APIKey == "" {
			errs = append(errs, fmt.Errorf("providers.%s.api_key is required when %s is enabled", name, name))
		}
		if p.APIBase == "" {
			errs = append(errs, fmt.Errorf("providers.%s.api_base is required when %s is enabled", name, name))
		}
		if p.DefaultModel == "" {
			errs = append(errs, fmt.Errorf("providers.%s.default_model is required when %s is enabled", name, name))
		}
		if p.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("providers.%s.max_tokens must be > 0", name))
		}
		if p.TimeoutSec <= 0 {
			errs = append(errs, fmt.Errorf("providers.%s.timeout_sec must be > 0", name))
		}
	}

	if cfg.Queue.Workers <= 0 {
		errs = append(errs, fmt.Errorf("queue.workers must be > 0"))
	}
	if cfg.Queue.LeaseSec < 30 {
		errs = append(errs, fmt.Errorf("queue.lease_sec must be >= 30"))
	}
	if cfg.Queue.DBPath == "" {
		errs = append(errs, fmt.Errorf("queue.db_path is required"))
	}

	return errs
}
