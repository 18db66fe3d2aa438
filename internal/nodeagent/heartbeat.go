package nodeagent

import (
	"context"
	"time"

	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/retry"
	"github.com/ridgehpc/ridge/internal/rpcwire"
)

// RunHeartbeatLoop sends periodic heartbeats to the controller until ctx is
// cancelled, per spec.md §4.1's UpdateHeartbeat contract. interval should be
// well under the cluster's slurmd_timeout.
func (a *Agent) RunHeartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	backoff := &retry.ExponentialBackoff{
		InitialDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second,
		Multiplier: 2.0, Jitter: 0.1, MaxAttempts: 3,
	}
	err := retry.Retry(ctx, backoff, func() error {
		hbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := a.ctrl.Heartbeat(hbCtx, &rpcwire.HeartbeatRequest{
			NodeName: a.cfg.NodeName,
			CPUsFree: a.freeCPUs(),
		})
		return err
	})
	if err != nil {
		log.WithNodeID(a.cfg.NodeName).Warn().Err(err).Msg("heartbeat failed")
	}
}
