package eventstream

import (
	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/bkmsync/pkg/config"
)

// newBackOff builds the cenkalti/backoff ExponentialBackOff configured
// from the reconnect settings, matching the spec's
// min(max_delay, base*multiplier^attempt) * (1 +/- jitter) formula: the
// library's NextBackOff already applies randomization to the current
// interval before advancing it by Multiplier, capped at MaxInterval.
func newBackOff(cfg config.Reconnect) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay()
	b.MaxInterval = cfg.MaxDelay()
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0 // retry forever; the caller decides when to stop
	b.Reset()
	return b
}
