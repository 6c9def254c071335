// Package reachability implements the connectivity prober that
// supplements OS-level online/offline notifications: a ticker-driven
// probe of the remote service, surfacing transitions so the sync
// scheduler can suppress or resume cycles.
package reachability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/rs/zerolog"
)

// Prober periodically checks whether the remote service is reachable
// and reports transitions on TransitionCh.
type Prober struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	online bool
	stopCh chan struct{}

	TransitionCh chan bool
}

// New builds a Prober polling baseURL's health endpoint every interval,
// with requests bounded by timeout.
func New(baseURL string, interval, timeout time.Duration) *Prober {
	return &Prober{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		interval:     interval,
		logger:       log.WithComponent("reachability"),
		online:       true,
		stopCh:       make(chan struct{}),
		TransitionCh: make(chan bool, 4),
	}
}

// Start begins the probe loop in its own goroutine.
func (p *Prober) Start() {
	go p.run()
}

// Stop halts the probe loop.
func (p *Prober) Stop() {
	close(p.stopCh)
}

// Online reports the prober's last-observed connectivity state.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *Prober) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), p.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", nil)
	reachable := false
	if err == nil {
		resp, doErr := p.httpClient.Do(req)
		if doErr == nil {
			resp.Body.Close()
			reachable = resp.StatusCode < 500
		}
	}

	p.mu.Lock()
	changed := reachable != p.online
	p.online = reachable
	p.mu.Unlock()

	if changed {
		p.logger.Info().Bool("online", reachable).Msg("reachability transition")
		select {
		case p.TransitionCh <- reachable:
		default:
		}
	}
}
