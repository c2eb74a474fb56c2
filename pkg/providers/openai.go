package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
)

// OpenAIHandler talks to any OpenAI-compatible chat completion endpoint.
// DeepSeek, Groq, Qwen and GeekAI differ only in base URL, credentials and
// decoding parameters, so they all share this implementation.
type OpenAIHandler struct {
	handlerCore
	cfg    config.ProviderConfig
	client *openai.Client
}

func newOpenAIClient(cfg config.ProviderConfig) (*openai.Client, error) {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		cc.BaseURL = strings.TrimSuffix(cfg.APIBase, "/")
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	cc.HTTPClient = httpClient

	return openai.NewClientWithConfig(cc), nil
}

// NewOpenAIFactory returns a factory producing handlers for one configured
// backend. The HTTP client is built once and shared across instances.
func NewOpenAIFactory(name, display string, cfg config.ProviderConfig, q Enqueuer) (Factory, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return func(target message.DispatchTarget) (Handler, error) {
		model := target.Model
		if model == "" {
			model = cfg.DefaultModel
		}
		return &OpenAIHandler{
			handlerCore: handlerCore{name: name, display: display, model: model, queue: q},
			cfg:         cfg,
			client:      client,
		}, nil
	}, nil
}

func (h *OpenAIHandler) Generate(ctx context.Context, job *message.DeferredJob) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: job.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: job.Query},
		},
		Temperature: float32(h.cfg.Temperature),
		MaxTokens:   h.cfg.MaxTokens,
	}

	logger.DebugCF("providers", "Chat completion request", map[string]interface{}{
		logger.FieldProvider: h.name,
		logger.FieldModel:    job.Model,
		"stream":             h.cfg.Stream,
	})

	if h.cfg.Stream {
		return h.generateStream(ctx, req)
	}

	resp, err := h.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", h.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty choices", h.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// generateStream accumulates a streamed completion into a single string.
// Some backends enforce streaming for long generations, so the chunked
// transfer is an upstream detail, not something callers see.
func (h *OpenAIHandler) generateStream(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Stream = true
	stream, err := h.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat stream: %w", h.name, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%s chat stream recv: %w", h.name, err)
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	return sb.String(), nil
}
