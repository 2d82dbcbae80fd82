package feedbuffer

// State is the lifecycle of the managed connection.
//
//	Disconnected -> Connecting -> Open -> (Closed | Errored) -> Connecting -> ...
//
// ShutDown is terminal and reachable from every state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	case StateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}
