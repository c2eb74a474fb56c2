package adapters

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"golang.org/x/time/rate"

	"chatrelay/pkg/config"
	"chatrelay/pkg/format"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
)

// FeishuAdapter handles the Lark/Feishu open platform: JSON event pushes
// with an in-band url_verification challenge, outbound delivery through
// the IM API.
type FeishuAdapter struct {
	cfg     config.FeishuConfig
	client  *lark.Client
	limiter *rate.Limiter
}

func NewFeishuFactory(cfg config.FeishuConfig) Factory {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret)
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return func(message.DispatchTarget) (SourceAdapter, error) {
		return &FeishuAdapter{cfg: cfg, client: client, limiter: limiter}, nil
	}
}

type feishuChallenge struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Challenge string `json:"challenge"`
}

type feishuEvent struct {
	Header struct {
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event struct {
		Sender struct {
			SenderID struct {
				OpenID string `json:"open_id"`
			} `json:"sender_id"`
		} `json:"sender"`
		Message struct {
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
			CreateTime  string `json:"create_time"`
			ChatID      string `json:"chat_id"`
		} `json:"message"`
	} `json:"event"`
}

func (a *FeishuAdapter) Name() string { return "feishu" }

func (a *FeishuAdapter) ContentType() string { return "application/json" }

// Verify covers the GET leg of the dispatch protocol. Feishu performs its
// challenge inside POST bodies (see Challenge), so a bare GET just gets an
// acknowledgement.
func (a *FeishuAdapter) Verify(*http.Request) *VerifyResult {
	return &VerifyResult{StatusCode: http.StatusOK, Body: []byte("ok")}
}

// Challenge answers the url_verification handshake that Feishu sends as a
// POST before enabling event delivery.
func (a *FeishuAdapter) Challenge(_ *http.Request, body []byte) (*VerifyResult, bool) {
	var ch feishuChallenge
	if err := json.Unmarshal(body, &ch); err != nil || ch.Type != "url_verification" {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(ch.Token), []byte(a.cfg.VerificationToken)) != 1 {
		logger.WarnC("feishu", "Challenge token mismatch")
		return &VerifyResult{StatusCode: http.StatusForbidden, Body: []byte(`{"error":"invalid token"}`), ContentType: a.ContentType()}, true
	}
	resp, _ := json.Marshal(map[string]string{"challenge": ch.Challenge})
	return &VerifyResult{StatusCode: http.StatusOK, Body: resp, ContentType: a.ContentType()}, true
}

func (a *FeishuAdapter) ExtractMessage(r *http.Request) (*message.InboundMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	var ev feishuEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if ev.Header.Token != a.cfg.VerificationToken {
		return nil, fmt.Errorf("event token mismatch")
	}
	if ev.Header.EventType != "im.message.receive_v1" {
		return nil, fmt.Errorf("unsupported event type %q", ev.Header.EventType)
	}

	msg := &message.InboundMessage{
		Source:   a.Name(),
		SenderID: ev.Event.Sender.SenderID.OpenID,
		TargetID: ev.Event.Message.ChatID,
	}
	if ms, err := strconv.ParseInt(ev.Event.Message.CreateTime, 10, 64); err == nil {
		msg.CreatedAt = time.UnixMilli(ms)
	}

	switch ev.Event.Message.MessageType {
	case "text":
		var content struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(ev.Event.Message.Content), &content); err != nil {
			return nil, fmt.Errorf("malformed text content: %w", err)
		}
		msg.Type = message.TypeText
		msg.Content = content.Text
	case "image":
		var content struct {
			ImageKey string `json:"image_key"`
		}
		if err := json.Unmarshal([]byte(ev.Event.Message.Content), &content); err != nil {
			return nil, fmt.Errorf("malformed image content: %w", err)
		}
		msg.Type = message.TypeImage
		msg.MediaID = content.ImageKey
	default:
		return nil, fmt.Errorf("unsupported message type %q", ev.Event.Message.MessageType)
	}
	return msg, nil
}

// FormatResponse acknowledges the event push. Feishu never renders the
// webhook response body, so the ack only carries a status for logs; the
// placeholder semantics still hold (no final answer in the sync reply).
func (a *FeishuAdapter) FormatResponse(result *message.ProcessingResult, _ *message.InboundMessage) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"code": 0,
		"msg":  replyContent(result),
	})
}

func (a *FeishuAdapter) Send(ctx context.Context, recipientID, text, modelLabel string) error {
	chunks := format.SplitByBytes(text, a.cfg.ChunkBytes)
	for i, chunk := range chunks {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		content, err := json.Marshal(map[string]string{
			"text": format.ChunkPrefix(modelLabel, i+1) + chunk,
		})
		if err != nil {
			return err
		}

		req := larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(larkim.ReceiveIdTypeOpenId).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				ReceiveId(recipientID).
				MsgType(larkim.MsgTypeText).
				Content(string(content)).
				Build()).
			Build()

		resp, err := a.client.Im.Message.Create(ctx, req)
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if !resp.Success() {
			return fmt.Errorf("chunk %d/%d: send API error %d: %s", i+1, len(chunks), resp.Code, resp.Msg)
		}
	}
	return nil
}
