package adapters

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
	"chatrelay/pkg/wxcrypt"
)

// WeChatAdapter handles the Official Account platform: plain SHA-1
// signature verification and cleartext XML envelopes.
type WeChatAdapter struct {
	cfg     config.WeChatConfig
	pusher  textPusher
	limiter *rate.Limiter
}

// NewWeChatFactory builds the wechat adapter factory. The push client and
// its send pacing are shared by every adapter instance so the access-token
// cache and the rate limit hold across concurrent jobs.
func NewWeChatFactory(cfg config.WeChatConfig) Factory {
	pusher := newWeChatPusher(cfg)
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return func(message.DispatchTarget) (SourceAdapter, error) {
		return &WeChatAdapter{cfg: cfg, pusher: pusher, limiter: limiter}, nil
	}
}

func (a *WeChatAdapter) Name() string { return "wechat" }

func (a *WeChatAdapter) ContentType() string { return "application/xml; charset=utf-8" }

func (a *WeChatAdapter) Verify(r *http.Request) *VerifyResult {
	q := r.URL.Query()
	signature := q.Get("signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")
	echostr := q.Get("echostr")

	expected := wxcrypt.PlainSignature(a.cfg.Token, timestamp, nonce)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		logger.WarnC("wechat", "Signature verification failed")
		return &VerifyResult{StatusCode: http.StatusForbidden, Body: []byte("Verification failed")}
	}
	return &VerifyResult{StatusCode: http.StatusOK, Body: []byte(echostr)}
}

func (a *WeChatAdapter) ExtractMessage(r *http.Request) (*message.InboundMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(a.Name(), raw)
}

func (a *WeChatAdapter) FormatResponse(result *message.ProcessingResult, msg *message.InboundMessage) ([]byte, error) {
	return buildReply(msg, replyContent(result))
}

func (a *WeChatAdapter) Send(ctx context.Context, recipientID, text, modelLabel string) error {
	return sendChunked(ctx, a.pusher, a.limiter, recipientID, text, modelLabel, a.cfg.ChunkBytes)
}
