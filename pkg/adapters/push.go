package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chatrelay/pkg/config"
)

// tokenExpirySlack renews access tokens well before the platform's stated
// expiry so an in-flight send never races the cutoff.
const tokenExpirySlack = 60 * time.Second

// textPusher is the outbound side of a WeChat-family platform: one API
// call per text chunk, authenticated by a cached access token.
type textPusher interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// pushClient handles token caching and the errcode/errmsg response
// convention shared by the WeChat and WeCom push APIs.
type pushClient struct {
	httpClient *http.Client
	tokenURL   string
	sendURL    string
	buildBody  func(recipientID, text string) interface{}

	mu     sync.Mutex
	token  string
	expiry time.Time
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type sendResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *pushClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.ErrCode != 0 || tok.AccessToken == "" {
		return "", fmt.Errorf("token API error %d: %s", tok.ErrCode, tok.ErrMsg)
	}

	c.token = tok.AccessToken
	c.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.token, nil
}

func (c *pushClient) SendText(ctx context.Context, recipientID, text string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(c.buildBody(recipientID, text))
	if err != nil {
		return fmt.Errorf("failed to marshal send payload: %w", err)
	}

	sendURL := c.sendURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read send response: %w", err)
	}

	var sent sendResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		return fmt.Errorf("failed to parse send response: %w", err)
	}
	if sent.ErrCode != 0 {
		// Expired tokens surface here too; drop the cache so the next
		// chunk re-authenticates.
		if sent.ErrCode == 40001 || sent.ErrCode == 42001 {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return fmt.Errorf("send API error %d: %s", sent.ErrCode, sent.ErrMsg)
	}
	return nil
}

// newWeChatPusher targets the Official Account customer-service API.
func newWeChatPusher(cfg config.WeChatConfig) *pushClient {
	return &pushClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokenURL: fmt.Sprintf("%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
			cfg.APIBase, url.QueryEscape(cfg.AppID), url.QueryEscape(cfg.AppSecret)),
		sendURL: cfg.APIBase + "/cgi-bin/message/custom/send",
		buildBody: func(recipientID, text string) interface{} {
			return map[string]interface{}{
				"touser":  recipientID,
				"msgtype": "text",
				"text":    map[string]string{"content": text},
			}
		},
	}
}

// newWeComPusher targets the enterprise app push API for one credential
// binding.
func newWeComPusher(cfg config.WeComConfig, binding config.CredentialBinding) *pushClient {
	return &pushClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokenURL: fmt.Sprintf("%s/cgi-bin/gettoken?corpid=%s&corpsecret=%s",
			cfg.APIBase, url.QueryEscape(cfg.CorpID), url.QueryEscape(binding.AppSecret)),
		sendURL: cfg.APIBase + "/cgi-bin/message/send",
		buildBody: func(recipientID, text string) interface{} {
			return map[string]interface{}{
				"touser":  recipientID,
				"msgtype": "text",
				"agentid": binding.AgentID,
				"text":    map[string]string{"content": text},
			}
		},
	}
}
