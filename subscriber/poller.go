package subscriber

import (
	"context"
	"time"

	"rootcart/domain"
)

// startPolling launches the fallback poller unless one is already running.
// Shopper sessions have no snapshot to poll.
func (c *Client) startPolling(ctx context.Context) {
	if c.opts.Role != RoleAdmin || ctx.Err() != nil {
		return
	}
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		return
	}
	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel, c.pollDone = cancel, done
	go c.poll(pctx, done)
}

// stopPolling cancels the poller and waits for it to exit.
func (c *Client) stopPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel == nil {
		return
	}
	c.pollCancel()
	<-c.pollDone
	c.pollCancel, c.pollDone = nil, nil
}

func (c *Client) poll(ctx context.Context, done chan struct{}) {
	c.pollers.Add(1)
	defer func() {
		c.pollers.Add(-1)
		close(done)
	}()
	c.logger.WithField("interval", c.opts.PollInterval.String()).Info("stream down, polling dashboard stats")

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		if err := c.fetchStats(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Warn("dashboard stats poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchStats(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	var env domain.StatsEnvelope
	if err := c.api.getJSON(rctx, "/api/dashboard/stats", &env); err != nil {
		return err
	}
	c.setSnapshot(env.Data, env.Degraded)
	return nil
}
