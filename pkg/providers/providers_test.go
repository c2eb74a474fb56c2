package providers

import (
	"errors"
	"reflect"
	"testing"

	"chatrelay/pkg/config"
	"chatrelay/pkg/message"
)

type recordingQueue struct {
	jobs    []*message.DeferredJob
	failing bool
}

func (q *recordingQueue) Enqueue(job *message.DeferredJob) error {
	if q.failing {
		return errors.New("queue unavailable")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func testProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Enabled:      true,
		APIKey:       "sk-test",
		APIBase:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		Temperature:  0.7,
		MaxTokens:    4000,
		TimeoutSec:   30,
	}
}

func newTestHandler(t *testing.T, q Enqueuer, model string) Handler {
	t.Helper()
	factory, err := NewOpenAIFactory("deepseek", "DeepSeek", testProviderConfig(), q)
	if err != nil {
		t.Fatalf("build factory: %v", err)
	}
	h, err := factory(message.DispatchTarget{Source: "wechat", Provider: "deepseek", Model: model})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h
}

func TestProcessTextEnqueues(t *testing.T) {
	t.Parallel()

	q := &recordingQueue{}
	h := newTestHandler(t, q, "")

	result := h.Process(&message.InboundMessage{
		Source:   "wechat",
		Type:     message.TypeText,
		SenderID: "user1",
		Content:  "what is go",
	})
	if !result.Async {
		t.Fatalf("text message must defer")
	}
	if result.Content != "" {
		t.Fatalf("deferred result must not carry an answer, got %q", result.Content)
	}
	if result.ProviderLabel != "DeepSeek/deepseek-chat" {
		t.Fatalf("label %q", result.ProviderLabel)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	job := q.jobs[0]
	want := &message.DeferredJob{
		ID:       job.ID,
		Source:   "wechat",
		Provider: "deepseek",
		Model:    "deepseek-chat",
		SenderID: "user1",
		Query:    "what is go",
	}
	if !reflect.DeepEqual(job, want) {
		t.Fatalf("job %+v, want %+v", job, want)
	}
}

func TestProcessModelOverride(t *testing.T) {
	t.Parallel()

	q := &recordingQueue{}
	h := newTestHandler(t, q, "deepseek-coder")

	if h.Model() != "deepseek-coder" {
		t.Fatalf("model %q, want override", h.Model())
	}
	result := h.Process(&message.InboundMessage{Type: message.TypeText, Source: "wechat", SenderID: "u", Content: "q"})
	if result.Model != "deepseek-coder" {
		t.Fatalf("result model %q", result.Model)
	}
	if q.jobs[0].Model != "deepseek-coder" {
		t.Fatalf("job model %q", q.jobs[0].Model)
	}
}

func TestProcessNonTextIsSynchronous(t *testing.T) {
	t.Parallel()

	q := &recordingQueue{}
	h := newTestHandler(t, q, "")

	cases := []*message.InboundMessage{
		{Source: "wechat", Type: message.TypeImage, SenderID: "u", MediaID: "m1"},
		{Source: "wechat", Type: message.TypeEvent, SenderID: "u", Event: "subscribe"},
		{Source: "wechat", Type: message.TypeText, SenderID: "u"}, // empty text
	}
	for _, msg := range cases {
		result := h.Process(msg)
		if result.Async {
			t.Fatalf("%s message must answer synchronously", msg.Type)
		}
		if result.Content != TextOnlyNotice {
			t.Fatalf("content %q, want the fixed notice", result.Content)
		}
	}
	if len(q.jobs) != 0 {
		t.Fatalf("non-text messages must not enqueue, got %d jobs", len(q.jobs))
	}
}

func TestProcessEnqueueFailureStaysSynchronous(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, &recordingQueue{failing: true}, "")
	result := h.Process(&message.InboundMessage{Source: "wechat", Type: message.TypeText, SenderID: "u", Content: "q"})
	if result.Async {
		t.Fatalf("failed enqueue must not promise a deferred answer")
	}
	if result.Content == "" {
		t.Fatalf("failed enqueue must explain itself to the user")
	}
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	cfg := &config.ProvidersConfig{
		DeepSeek: testProviderConfig(),
		Tencent: config.ProviderConfig{
			Enabled:      true,
			APIKey:       "k",
			APIBase:      "https://hunyuan.cloud.tencent.com/hyllm/v1",
			DefaultModel: "hunyuan",
			TimeoutSec:   30,
		},
	}
	reg, err := BuildRegistry(cfg, &recordingQueue{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"deepseek", "tencent"}) {
		t.Fatalf("names %v", got)
	}

	_, err = reg.Resolve(message.DispatchTarget{Provider: "groq"})
	var unknown *ErrUnknownProvider
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}

	h, err := reg.Resolve(message.DispatchTarget{Provider: "tencent"})
	if err != nil {
		t.Fatalf("resolve tencent: %v", err)
	}
	if h.Label() != "Tencent/hunyuan" {
		t.Fatalf("label %q", h.Label())
	}
}
