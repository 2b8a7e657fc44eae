package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Watch refreshes the job every interval until it is done, the session
// loses its job, or ctx ends. A failed refresh is retried on the next
// tick; only losing the job stops the watch with an error.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("watch interval %v: must be positive", interval)
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		err := c.RefreshStatus(ctx)
		snap := c.Snapshot()
		switch {
		case snap.JobID == "":
			if err == nil {
				err = ErrNoJob
			}
			return err
		case err != nil:
			c.logger.WithError(err).WithField("job_id", snap.JobID).Warn("refresh failed, retrying")
		case snap.Status.Done():
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
