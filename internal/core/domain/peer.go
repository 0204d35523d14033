package domain

// ConnectionState mirrors the ICE connection states reported by the transport.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateChecking
	ConnectionStateConnected
	ConnectionStateCompleted
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

// ConnectionStates lists every state in report order.
var ConnectionStates = []ConnectionState{
	ConnectionStateNew,
	ConnectionStateChecking,
	ConnectionStateConnected,
	ConnectionStateCompleted,
	ConnectionStateDisconnected,
	ConnectionStateFailed,
	ConnectionStateClosed,
}

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "New"
	case ConnectionStateChecking:
		return "Checking"
	case ConnectionStateConnected:
		return "Connected"
	case ConnectionStateCompleted:
		return "Completed"
	case ConnectionStateDisconnected:
		return "Disconnected"
	case ConnectionStateFailed:
		return "Failed"
	case ConnectionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether sampling should stop in this state.
func (s ConnectionState) IsTerminal() bool {
	return s == ConnectionStateFailed || s == ConnectionStateClosed
}

// ClientPhase is the lifecycle of a simulated viewer.
type ClientPhase int32

const (
	ClientIdle ClientPhase = iota
	ClientConnecting
	ClientStreaming
	ClientStopped
	ClientFailed
)

func (p ClientPhase) String() string {
	switch p {
	case ClientIdle:
		return "idle"
	case ClientConnecting:
		return "connecting"
	case ClientStreaming:
		return "streaming"
	case ClientStopped:
		return "stopped"
	case ClientFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether the phase is final. A client never leaves a final phase.
func (p ClientPhase) Done() bool {
	return p == ClientStopped || p == ClientFailed
}
