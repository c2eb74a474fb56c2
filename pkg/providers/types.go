package providers

import (
	"context"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
)

// TextOnlyNotice is the synchronous answer for image and event messages.
const TextOnlyNotice = "Sorry, I can only process text messages."

// Enqueuer is the provider-facing slice of the deferred task queue.
type Enqueuer interface {
	Enqueue(job *message.DeferredJob) error
}

// Handler wraps one AI backend, bound to one resolved model. Process runs
// on the synchronous webhook path and must return fast; Generate runs only
// inside the task executor workers.
type Handler interface {
	Name() string
	Model() string

	// Label is the user-visible backend identity, "Display/model".
	Label() string
	Process(msg *message.InboundMessage) *message.ProcessingResult
	Generate(ctx context.Context, job *message.DeferredJob) (string, error)
}

// handlerCore implements the accept contract every backend shares: text
// messages become deferred jobs, everything else gets the fixed notice.
type handlerCore struct {
	name    string
	display string
	model   string
	queue   Enqueuer
}

func (h *handlerCore) Name() string  { return h.name }
func (h *handlerCore) Model() string { return h.model }

func (h *handlerCore) Label() string {
	return h.display + "/" + h.model
}

func (h *handlerCore) Process(msg *message.InboundMessage) *message.ProcessingResult {
	if msg.Type != message.TypeText || msg.Content == "" {
		return &message.ProcessingResult{
			Content:       TextOnlyNotice,
			ProviderLabel: h.display,
			Model:         h.model,
		}
	}

	job := &message.DeferredJob{
		Source:   msg.Source,
		Provider: h.name,
		Model:    h.model,
		SenderID: msg.SenderID,
		Query:    msg.Content,
	}
	if err := h.queue.Enqueue(job); err != nil {
		logger.ErrorCF("providers", "Failed to enqueue deferred job", map[string]interface{}{
			logger.FieldProvider: h.name,
			logger.FieldModel:    h.model,
			logger.FieldError:    err.Error(),
		})
		return &message.ProcessingResult{
			Content:       "Sorry, the service is temporarily unavailable. Please try again later.",
			ProviderLabel: h.Label(),
			Model:         h.model,
		}
	}

	logger.InfoCF("providers", "Deferred job enqueued", map[string]interface{}{
		logger.FieldProvider: h.name,
		logger.FieldModel:    h.model,
		logger.FieldJobID:    job.ID,
		logger.FieldSenderID: msg.SenderID,
	})
	return &message.ProcessingResult{
		ProviderLabel: h.Label(),
		Model:         h.model,
		Async:         true,
	}
}
