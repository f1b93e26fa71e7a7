// Package host holds adapters shared by host implementations.
package host

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure Paced implements the interface.
var _ driven.CommandExecutor = (*Paced)(nil)

// Paced throttles commands sent to a host that cannot absorb bursts.
// It uses a token bucket; waiting respects context cancellation.
type Paced struct {
	next    driven.CommandExecutor
	limiter *rate.Limiter
}

// NewPaced wraps next with a limiter allowing perSecond commands with the
// given burst. A non-positive rate disables pacing and returns next as is.
func NewPaced(next driven.CommandExecutor, perSecond float64, burst int) driven.CommandExecutor {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Paced{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// NewPacedFromSettings builds a pacer from the host settings.
func NewPacedFromSettings(next driven.CommandExecutor, cfg domain.HostSettings) driven.CommandExecutor {
	return NewPaced(next, cfg.CommandsPerSecond, cfg.Burst)
}

// Execute waits for a token and forwards the command.
func (p *Paced) Execute(ctx context.Context, cmd domain.Command, opts domain.ExecOptions) (domain.CommandResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing %s: %w", cmd.Name, err)
	}
	return p.next.Execute(ctx, cmd, opts)
}
