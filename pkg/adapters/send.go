package adapters

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"chatrelay/pkg/format"
)

// sendChunked splits text into byte-bounded chunks and pushes them in
// order, pacing through the platform's shared rate limiter. A failing
// chunk aborts the rest; chunks already delivered stay delivered.
func sendChunked(ctx context.Context, p textPusher, limiter *rate.Limiter, recipientID, text, modelLabel string, chunkBytes int) error {
	chunks := format.SplitByBytes(text, chunkBytes)
	for i, chunk := range chunks {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		payload := format.ChunkPrefix(modelLabel, i+1) + chunk
		if err := p.SendText(ctx, recipientID, payload); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}
