package eventstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/gorilla/websocket"
)

// Client maintains the inbound event stream for one namespace. Each
// successfully translated inbound event is emitted as an operation on
// EnvelopeCh. A signal is emitted on RehydrateCh whenever the
// stream reaches Connected(stable), signaling the kernel should fetch
// a baseline for the namespace root and dispatch a hydrate_node.
type Client struct {
	namespace string
	wsURL     string
	cfg       config.Reconnect
	dialer    *websocket.Dialer

	mu    sync.Mutex
	state State

	EnvelopeCh  chan types.Operation
	RehydrateCh chan struct{}
	StateCh     chan State
}

// NewClient builds a Client for namespace, dialing wsURL (expected to
// already encode the namespace, e.g. ".../ws/<namespace>").
func NewClient(namespace, wsURL string, cfg config.Reconnect) *Client {
	return &Client{
		namespace:   namespace,
		wsURL:       wsURL,
		cfg:         cfg,
		dialer:      websocket.DefaultDialer,
		state:       StateDisconnected,
		EnvelopeCh:  make(chan types.Operation, 256),
		RehydrateCh: make(chan struct{}, 1),
		StateCh:     make(chan State, 16),
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	select {
	case c.StateCh <- s:
	default:
	}
}

// Run drives the connect/read/reconnect loop until ctx is canceled.
// Any error or close while connected triggers Reconnecting(backoff);
// the backoff delay resets to attempt 0 only after StateConnectedStable
// is reached.
func (c *Client) Run(ctx context.Context) {
	bo := newBackOff(c.cfg)

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		wasConnected := c.State().IsConnected()
		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			log.WithComponent("eventstream").Warn().Err(err).Str("namespace", c.namespace).Msg("dial failed")
			if wasConnected {
				c.setState(StateDisconnected)
			}
			if !c.sleepBackoff(ctx, bo) {
				return
			}
			c.setState(StateReconnecting)
			continue
		}

		stableAt := time.Now().Add(c.cfg.StableAfter())
		c.setState(StateConnectedUnstable)

		readErr := c.readLoop(ctx, conn, stableAt, &bo)
		conn.Close()
		if readErr == nil && ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateDisconnected)
		if !c.sleepBackoff(ctx, bo) {
			return
		}
		c.setState(StateReconnecting)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), http.Header{})
	return conn, err
}

// readLoop reads frames until error/close/ctx-cancel, translating each
// into an envelope. It reports Connected(stable) once stableAt passes
// without interruption, resetting bo's attempt counter at that point.
// The stability deadline must fire even on a quiet connection with no
// inbound frames, so frame reads happen on their own goroutine and this
// loop selects between them and a timer rather than blocking solely on
// conn.ReadMessage.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, stableAt time.Time, bo **backoff.ExponentialBackOff) error {
	type frame struct {
		data []byte
		err  error
	}
	frames := make(chan frame, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			frames <- frame{data: data, err: err}
			if err != nil {
				return
			}
		}
	}()

	stableTimer := time.NewTimer(time.Until(stableAt))
	defer stableTimer.Stop()

	for {
		select {
		case <-stableTimer.C:
			*bo = newBackOff(c.cfg)
			c.setState(StateConnectedStable)
			select {
			case c.RehydrateCh <- struct{}{}:
			default:
			}

		case f := <-frames:
			if f.err != nil {
				return f.err
			}

			var raw RawEvent
			if err := json.Unmarshal(f.data, &raw); err != nil {
				log.WithComponent("eventstream").Warn().Err(err).Msg("malformed event frame")
				continue
			}
			raw.Namespace = c.namespace

			op, err := Translate(raw)
			if err != nil {
				log.WithComponent("eventstream").Debug().Str("type", raw.Type).Msg("dropping unrecognized/malformed event")
				continue
			}

			select {
			case c.EnvelopeCh <- op:
			case <-ctx.Done():
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// sleepBackoff waits the next backoff delay or returns false if ctx is
// canceled first.
func (c *Client) sleepBackoff(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	metrics.ReconnectAttemptsTotal.WithLabelValues(c.namespace).Inc()
	delay := bo.NextBackOff()
	if delay == backoff.Stop {
		return false
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
