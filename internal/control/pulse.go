package control

import (
	"context"
	"time"
)

// issuePulse sends cmd repeatedly until d has elapsed. The command is always
// sent at least once. It returns the number of sends.
func issuePulse(ctx context.Context, api FlightAPI, cmd Command, d, reissue time.Duration) (int, error) {
	deadline := time.Now().Add(d)
	sent := 0
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := api.Progress(ctx, cmd); err != nil {
			return sent, err
		}
		sent++

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return sent, nil
		}
		if reissue <= 0 {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			continue
		}
		wait := min(reissue, remaining)
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-timer.C:
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
