package adapters

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay/pkg/config"
	"chatrelay/pkg/message"
)

func newFeishuTestAdapter(t *testing.T) SourceAdapter {
	t.Helper()
	factory := NewFeishuFactory(config.FeishuConfig{
		Enabled:           true,
		AppID:             "cli_app",
		AppSecret:         "secret",
		VerificationToken: "verif-token",
	})
	a, err := factory(message.DispatchTarget{Source: "feishu", Provider: "deepseek"})
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	return a
}

func TestFeishuChallenge(t *testing.T) {
	t.Parallel()

	a := newFeishuTestAdapter(t)
	ch, ok := a.(Challenger)
	if !ok {
		t.Fatalf("feishu adapter must implement Challenger")
	}

	body := []byte(`{"type":"url_verification","token":"verif-token","challenge":"ch-42"}`)
	res, handled := ch.Challenge(httptest.NewRequest(http.MethodPost, "/feishu/deepseek", nil), body)
	if !handled {
		t.Fatalf("url_verification not handled")
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", res.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal(res.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["challenge"] != "ch-42" {
		t.Fatalf("challenge %q, want ch-42", out["challenge"])
	}

	body = []byte(`{"type":"url_verification","token":"wrong","challenge":"ch-42"}`)
	res, handled = ch.Challenge(httptest.NewRequest(http.MethodPost, "/feishu/deepseek", nil), body)
	if !handled {
		t.Fatalf("bad token challenge still belongs to the challenge path")
	}
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", res.StatusCode)
	}

	// Ordinary events fall through to message extraction.
	body = []byte(`{"header":{"event_type":"im.message.receive_v1","token":"verif-token"}}`)
	if _, handled = ch.Challenge(httptest.NewRequest(http.MethodPost, "/feishu/deepseek", nil), body); handled {
		t.Fatalf("event push must not be treated as a challenge")
	}
}

func TestFeishuExtractMessage(t *testing.T) {
	t.Parallel()

	a := newFeishuTestAdapter(t)

	event := `{
  "header": {"event_type": "im.message.receive_v1", "token": "verif-token"},
  "event": {
    "sender": {"sender_id": {"open_id": "ou_abc"}},
    "message": {
      "message_type": "text",
      "chat_id": "oc_chat",
      "create_time": "1700000000000",
      "content": "{\"text\":\"你好\"}"
    }
  }
}`
	msg, err := a.ExtractMessage(httptest.NewRequest(http.MethodPost, "/feishu/deepseek", strings.NewReader(event)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if msg.Type != message.TypeText || msg.Content != "你好" {
		t.Fatalf("got %+v", msg)
	}
	if msg.SenderID != "ou_abc" {
		t.Fatalf("sender %q", msg.SenderID)
	}

	badToken := strings.Replace(event, "verif-token", "spoofed", 1)
	if _, err := a.ExtractMessage(httptest.NewRequest(http.MethodPost, "/feishu/deepseek", strings.NewReader(badToken))); err == nil {
		t.Fatalf("expected token mismatch error")
	}
}
