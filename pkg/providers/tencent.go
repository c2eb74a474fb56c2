package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
)

// TencentHandler calls the Hunyuan OpenAI-compatibility endpoint over raw
// HTTP. The endpoint rejects some go-openai defaults, so the request body is
// assembled by hand and kept minimal.
type TencentHandler struct {
	handlerCore
	cfg        config.ProviderConfig
	httpClient *http.Client
}

// NewTencentFactory returns a factory for the Hunyuan backend.
func NewTencentFactory(name, display string, cfg config.ProviderConfig, q Enqueuer) Factory {
	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	return func(target message.DispatchTarget) (Handler, error) {
		model := target.Model
		if model == "" {
			model = cfg.DefaultModel
		}
		return &TencentHandler{
			handlerCore: handlerCore{name: name, display: display, model: model, queue: q},
			cfg:         cfg,
			httpClient:  httpClient,
		}, nil
	}
}

func (h *TencentHandler) Generate(ctx context.Context, job *message.DeferredJob) (string, error) {
	requestBody := map[string]interface{}{
		"model": job.Model,
		"messages": []map[string]string{
			{"role": "user", "content": job.Query},
		},
	}
	if h.cfg.Temperature > 0 {
		requestBody["temperature"] = h.cfg.Temperature
	}
	if h.cfg.MaxTokens > 0 {
		requestBody["max_tokens"] = h.cfg.MaxTokens
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.cfg.APIBase+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)

	logger.DebugCF("providers", "Chat completion request", map[string]interface{}{
		logger.FieldProvider: h.name,
		logger.FieldModel:    job.Model,
	})

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty choices", h.name)
	}
	return apiResponse.Choices[0].Message.Content, nil
}
