package adapters

import (
	"context"
	"net/http"

	"chatrelay/pkg/message"
)

// Fixed strings every platform shares. The async placeholder never carries
// the real answer; delivery of that goes through Send.
const (
	PlaceholderText = "正在思考，请稍候..."
	FallbackText    = "No response from AI provider"
)

// VerifyResult is the raw HTTP reply to a platform challenge request.
// An empty ContentType means text/plain.
type VerifyResult struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// SourceAdapter translates one messaging platform's wire format into and
// out of the internal message model. Instances are cheap and bound to one
// dispatch target; construct them through the registry per use.
type SourceAdapter interface {
	Name() string

	// Verify answers the platform's GET challenge. It must always produce
	// a well-formed result, never an error or panic.
	Verify(r *http.Request) *VerifyResult

	// ExtractMessage parses the platform push envelope. Malformed or
	// unsupported envelopes surface as errors; the caller drops the
	// request without touching a provider.
	ExtractMessage(r *http.Request) (*message.InboundMessage, error)

	// FormatResponse builds the synchronous reply envelope. An async
	// result embeds the fixed placeholder, never the final answer.
	FormatResponse(result *message.ProcessingResult, msg *message.InboundMessage) ([]byte, error)

	// ContentType is the media type of FormatResponse envelopes.
	ContentType() string

	// Send delivers the finished answer out-of-band, split into
	// byte-bounded chunks with the model label and 1-based index
	// prefixed. Partial delivery is not retried here.
	Send(ctx context.Context, recipientID, text, modelLabel string) error
}

// Challenger is an optional capability for platforms that deliver their
// verification challenge inside a POST body instead of a GET query.
type Challenger interface {
	Challenge(r *http.Request, body []byte) (*VerifyResult, bool)
}
