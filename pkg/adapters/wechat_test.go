package adapters

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"chatrelay/pkg/config"
	"chatrelay/pkg/message"
	"chatrelay/pkg/wxcrypt"
)

func newWeChatTestAdapter(t *testing.T) SourceAdapter {
	t.Helper()
	factory := NewWeChatFactory(config.WeChatConfig{
		Enabled: true,
		Token:   "test-token",
		AppID:   "wxappid",
	})
	a, err := factory(message.DispatchTarget{Source: "wechat", Provider: "deepseek"})
	if err != nil {
		t.Fatalf("build adapter: %v", err)
	}
	return a
}

func verifyRequest(token, timestamp, nonce, echostr string, tamper bool) *http.Request {
	sig := wxcrypt.PlainSignature(token, timestamp, nonce)
	if tamper {
		sig = wxcrypt.PlainSignature(token, timestamp, nonce+"x")
	}
	q := url.Values{}
	q.Set("signature", sig)
	q.Set("timestamp", timestamp)
	q.Set("nonce", nonce)
	q.Set("echostr", echostr)
	return httptest.NewRequest(http.MethodGet, "/wechat/deepseek?"+q.Encode(), nil)
}

func TestWeChatVerify(t *testing.T) {
	t.Parallel()

	a := newWeChatTestAdapter(t)

	res := a.Verify(verifyRequest("test-token", "1700000000", "n1", "echo-me", false))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("valid challenge: status %d, want 200", res.StatusCode)
	}
	if string(res.Body) != "echo-me" {
		t.Fatalf("valid challenge: body %q, want echostr", res.Body)
	}

	res = a.Verify(verifyRequest("test-token", "1700000000", "n1", "echo-me", true))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("tampered challenge: status %d, want 403", res.StatusCode)
	}
	if strings.Contains(string(res.Body), "echo-me") {
		t.Fatalf("tampered challenge must not leak the echostr")
	}
}

func TestWeChatExtractMessage(t *testing.T) {
	t.Parallel()

	a := newWeChatTestAdapter(t)

	cases := []struct {
		name    string
		body    string
		want    message.Type
		wantErr bool
	}{
		{
			name: "text",
			body: `<xml><ToUserName><![CDATA[gh_account]]></ToUserName><FromUserName><![CDATA[user123]]></FromUserName><CreateTime>1700000000</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[你好]]></Content></xml>`,
			want: message.TypeText,
		},
		{
			name: "image",
			body: `<xml><ToUserName><![CDATA[gh_account]]></ToUserName><FromUserName><![CDATA[user123]]></FromUserName><CreateTime>1700000000</CreateTime><MsgType><![CDATA[image]]></MsgType><PicUrl><![CDATA[http://example.com/p.jpg]]></PicUrl><MediaId><![CDATA[media42]]></MediaId></xml>`,
			want: message.TypeImage,
		},
		{
			name: "event",
			body: `<xml><ToUserName><![CDATA[gh_account]]></ToUserName><FromUserName><![CDATA[user123]]></FromUserName><CreateTime>1700000000</CreateTime><MsgType><![CDATA[event]]></MsgType><Event><![CDATA[subscribe]]></Event></xml>`,
			want: message.TypeEvent,
		},
		{
			name:    "unsupported type",
			body:    `<xml><MsgType><![CDATA[voice]]></MsgType></xml>`,
			wantErr: true,
		},
		{
			name:    "not xml",
			body:    `{"hello":"world"}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/wechat/deepseek", strings.NewReader(tc.body))
			msg, err := a.ExtractMessage(r)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if msg.Type != tc.want {
				t.Fatalf("type %q, want %q", msg.Type, tc.want)
			}
			if msg.SenderID != "user123" || msg.TargetID != "gh_account" {
				t.Fatalf("sender/target %q/%q", msg.SenderID, msg.TargetID)
			}
			if msg.Source != "wechat" {
				t.Fatalf("source %q, want wechat", msg.Source)
			}
		})
	}
}

func TestWeChatFormatResponse(t *testing.T) {
	t.Parallel()

	a := newWeChatTestAdapter(t)
	msg := &message.InboundMessage{
		Source:   "wechat",
		Type:     message.TypeText,
		SenderID: "user123",
		TargetID: "gh_account",
		Content:  "hi",
	}

	// Async result must carry the placeholder, never an answer.
	out, err := a.FormatResponse(&message.ProcessingResult{Async: true, Content: "leaked answer"}, msg)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var reply struct {
		ToUserName   string `xml:"ToUserName"`
		FromUserName string `xml:"FromUserName"`
		MsgType      string `xml:"MsgType"`
		Content      string `xml:"Content"`
	}
	if err := xml.Unmarshal(out, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Content != PlaceholderText {
		t.Fatalf("async content %q, want placeholder", reply.Content)
	}
	if reply.ToUserName != "user123" || reply.FromUserName != "gh_account" {
		t.Fatalf("reply direction not swapped: to=%q from=%q", reply.ToUserName, reply.FromUserName)
	}
	if reply.MsgType != "text" {
		t.Fatalf("msg type %q, want text", reply.MsgType)
	}

	// Sync result carries its own content.
	out, err = a.FormatResponse(&message.ProcessingResult{Content: "direct answer"}, msg)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if err := xml.Unmarshal(out, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Content != "direct answer" {
		t.Fatalf("sync content %q", reply.Content)
	}

	// Empty sync result falls back to the fixed notice.
	out, err = a.FormatResponse(&message.ProcessingResult{}, msg)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if err := xml.Unmarshal(out, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Content != FallbackText {
		t.Fatalf("empty content %q, want fallback", reply.Content)
	}
}
