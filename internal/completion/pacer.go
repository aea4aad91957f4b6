package completion

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out calls to the completion service. The first call goes
// through immediately; each later one waits until delay has passed since
// the previous. A nil Pacer never waits.
type Pacer struct {
	lim *rate.Limiter
}

func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return nil
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(delay), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}
