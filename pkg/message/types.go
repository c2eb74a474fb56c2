package message

import "time"

type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeEvent Type = "event"
)

// InboundMessage is the normalized form of one platform push notification.
// Built once by a source adapter and handed to exactly one provider handler.
type InboundMessage struct {
	Source    string    `json:"source"`
	Type      Type      `json:"type"`
	SenderID  string    `json:"sender_id"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content,omitempty"`
	MediaID   string    `json:"media_id,omitempty"`
	Event     string    `json:"event,omitempty"`
}

// DispatchTarget is parsed from the request path. Model may be empty, in
// which case the provider handler fills in its default.
type DispatchTarget struct {
	Source   string `json:"source"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ProcessingResult is the synchronous outcome of handling one inbound
// message. When Async is true, Content is at most a transient placeholder;
// the real answer travels through the adapter's out-of-band send path.
type ProcessingResult struct {
	Content       string `json:"content,omitempty"`
	ProviderLabel string `json:"provider_label"`
	Model         string `json:"model"`
	Async         bool   `json:"async"`
}

// DeferredJob is the durable unit of generation work. It crosses a process
// boundary, so it must round-trip through JSON.
type DeferredJob struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	SenderID string `json:"sender_id"`
	Query    string `json:"query"`
}
