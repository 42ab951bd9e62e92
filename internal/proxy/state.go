package proxy

// ConnState is the protocol state machine each half runs through.
type ConnState int

const (
	StateHandshake ConnState = iota
	StateStatus
	StateLogin
	StatePlay
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateHandshake:
		return "HANDSHAKE"
	case StateStatus:
		return "STATUS"
	case StateLogin:
		return "LOGIN"
	case StatePlay:
		return "PLAY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
