package adapters

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
	"chatrelay/pkg/wxcrypt"
)

// WeComAdapter handles the enterprise platform: every envelope travels
// inside the wxcrypt authenticated-encryption wrapper, and outbound
// delivery uses a per-(provider, model) app credential binding.
type WeComAdapter struct {
	cfg     config.WeComConfig
	codec   *wxcrypt.Codec
	pusher  textPusher
	limiter *rate.Limiter

	// Echoed back in the encrypted synchronous reply; set by
	// ExtractMessage, which always precedes FormatResponse on the
	// per-request adapter instance.
	reqNonce string
}

type encryptedPush struct {
	XMLName xml.Name `xml:"xml"`
	Encrypt string   `xml:"Encrypt"`
}

type encryptedReply struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature cdata    `xml:"MsgSignature"`
	TimeStamp    int64    `xml:"TimeStamp"`
	Nonce        cdata    `xml:"Nonce"`
}

// NewWeComFactory builds the wecom adapter factory. One push client per
// configured credential binding is created up front; the factory picks the
// binding for the requested (provider, model) pair, defaulting when no
// specific binding exists.
func NewWeComFactory(cfg config.WeComConfig) (Factory, error) {
	codec, err := wxcrypt.NewCodec(cfg.Token, cfg.EncodingAESKey, cfg.CorpID)
	if err != nil {
		return nil, err
	}

	pushers := map[config.CredentialBinding]*pushClient{
		cfg.Default: newWeComPusher(cfg, cfg.Default),
	}
	for _, binding := range cfg.Bindings {
		if _, ok := pushers[binding]; !ok {
			pushers[binding] = newWeComPusher(cfg, binding)
		}
	}
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	return func(target message.DispatchTarget) (SourceAdapter, error) {
		binding := cfg.Binding(target.Provider, target.Model)
		pusher, ok := pushers[binding]
		if !ok {
			pusher = pushers[cfg.Default]
		}
		return &WeComAdapter{
			cfg:     cfg,
			codec:   codec,
			pusher:  pusher,
			limiter: limiter,
		}, nil
	}, nil
}

func (a *WeComAdapter) Name() string { return "wecom" }

func (a *WeComAdapter) ContentType() string { return "application/xml; charset=utf-8" }

func (a *WeComAdapter) Verify(r *http.Request) *VerifyResult {
	q := r.URL.Query()
	echo, err := a.codec.DecryptVerified(
		q.Get("msg_signature"), q.Get("timestamp"), q.Get("nonce"), q.Get("echostr"))
	if err != nil {
		if errors.Is(err, wxcrypt.ErrInvalidSignature) {
			logger.WarnC("wecom", "Challenge signature verification failed")
			return &VerifyResult{StatusCode: http.StatusForbidden, Body: []byte("Verification failed")}
		}
		logger.ErrorCF("wecom", "Challenge decryption failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return &VerifyResult{StatusCode: http.StatusInternalServerError, Body: []byte("Verification error")}
	}
	return &VerifyResult{StatusCode: http.StatusOK, Body: echo}
}

func (a *WeComAdapter) ExtractMessage(r *http.Request) (*message.InboundMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	var push encryptedPush
	if err := xml.Unmarshal(raw, &push); err != nil {
		return nil, fmt.Errorf("malformed encrypted envelope: %w", err)
	}

	q := r.URL.Query()
	plain, err := a.codec.DecryptVerified(
		q.Get("msg_signature"), q.Get("timestamp"), q.Get("nonce"), push.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("envelope decryption failed: %w", err)
	}
	a.reqNonce = q.Get("nonce")

	return parseEnvelope(a.Name(), plain)
}

func (a *WeComAdapter) FormatResponse(result *message.ProcessingResult, msg *message.InboundMessage) ([]byte, error) {
	plain, err := buildReply(msg, replyContent(result))
	if err != nil {
		return nil, err
	}

	ciphertext, err := a.codec.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt reply: %w", err)
	}

	now := time.Now().Unix()
	nonce := a.reqNonce
	if nonce == "" {
		nonce = strconv.FormatInt(now, 10)
	}
	reply := encryptedReply{
		Encrypt:      cdata{ciphertext},
		MsgSignature: cdata{a.codec.Signature(strconv.FormatInt(now, 10), nonce, ciphertext)},
		TimeStamp:    now,
		Nonce:        cdata{nonce},
	}
	return xml.Marshal(reply)
}

func (a *WeComAdapter) Send(ctx context.Context, recipientID, text, modelLabel string) error {
	return sendChunked(ctx, a.pusher, a.limiter, recipientID, text, modelLabel, a.cfg.ChunkBytes)
}
