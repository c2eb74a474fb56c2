package queue

import (
	"time"

	"github.com/robfig/cron/v3"

	"chatrelay/pkg/logger"
)

// Janitor prunes finished jobs on a schedule so the queue database does
// not grow without bound.
type Janitor struct {
	cron *cron.Cron
}

// StartJanitor schedules pruning of done/failed jobs older than retention.
// spec uses cron syntax ("@hourly" by default).
func StartJanitor(q *Queue, spec string, retention time.Duration) (*Janitor, error) {
	if spec == "" {
		spec = "@hourly"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := q.PruneFinished(retention)
		if err != nil {
			logger.ErrorCF("queue", "Janitor prune failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
			return
		}
		if n > 0 {
			logger.InfoCF("queue", "Pruned finished jobs", map[string]interface{}{
				"deleted": n,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &Janitor{cron: c}, nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}
