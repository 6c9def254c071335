// Package eventstream implements the Event Stream Client: the
// reconnecting websocket consumer that maintains one inbound channel
// per active namespace and translates server events into operation
// envelopes for the kernel to apply.
package eventstream

// State is the stream's connection state machine, one value per
// namespace client.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateConnecting        State = "connecting"
	StateConnectedUnstable State = "connected_unstable"
	StateConnectedStable   State = "connected_stable"
	StateReconnecting      State = "reconnecting"
)

// IsConnected reports whether s is either connected substate.
func (s State) IsConnected() bool {
	return s == StateConnectedUnstable || s == StateConnectedStable
}
