// ABOUTME: Streaming session state machine states
// ABOUTME: Shared by the sender and receiver session coordinators
package stream

// State is the lifecycle state of a streaming session.
//
// Valid transitions: Idle -> Negotiating -> Streaming -> Stopping -> Idle,
// with Failed reachable from Negotiating and Streaming. A Failed
// session accepts Start again, which clears the recorded failure, and
// Stop, which settles it back to Idle.
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateStreaming
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
