package dispatch

import (
	"context"
	"fmt"

	"chatrelay/pkg/adapters"
	"chatrelay/pkg/format"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
	"chatrelay/pkg/providers"
	"chatrelay/pkg/queue"
)

// NewExecutor builds the worker-side job function: generate the answer with
// the provider named in the job, then deliver it through the originating
// platform's adapter. Jobs may run more than once after a lease expiry, so
// a duplicate delivery is possible and accepted.
func NewExecutor(adapterReg *adapters.Registry, providerReg *providers.Registry) queue.Executor {
	return func(ctx context.Context, job *message.DeferredJob) error {
		target := message.DispatchTarget{Source: job.Source, Provider: job.Provider, Model: job.Model}

		adapter, err := adapterReg.Resolve(target)
		if err != nil {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
		handler, err := providerReg.Resolve(target)
		if err != nil {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}

		answer, err := handler.Generate(ctx, job)
		if err != nil {
			logger.ErrorCF("dispatch", "Generation failed", map[string]interface{}{
				logger.FieldJobID:    job.ID,
				logger.FieldProvider: job.Provider,
				logger.FieldModel:    job.Model,
				logger.FieldError:    err.Error(),
			})
			notice := fmt.Sprintf("Sorry, there was an error processing your request with %s: %v", handler.Label(), err)
			if sendErr := adapter.Send(ctx, job.SenderID, notice, job.Model); sendErr != nil {
				logger.ErrorCF("dispatch", "Failed to send error notification", map[string]interface{}{
					logger.FieldJobID: job.ID,
					logger.FieldError: sendErr.Error(),
				})
			}
			return err
		}

		text := format.ReplyText(job.Source, handler.Label(), answer)
		if err := adapter.Send(ctx, job.SenderID, text, job.Model); err != nil {
			return fmt.Errorf("job %s: deliver answer: %w", job.ID, err)
		}

		logger.InfoCF("dispatch", "Answer delivered", map[string]interface{}{
			logger.FieldJobID:    job.ID,
			logger.FieldSource:   job.Source,
			logger.FieldProvider: job.Provider,
			logger.FieldModel:    job.Model,
			logger.FieldSenderID: job.SenderID,
		})
		return nil
	}
}
