package client

import "time"

// State is where the client is in the game flow.
type State int

const (
	NeedName       State = iota // No nickname chosen yet
	NotConnected                // Nickname chosen, no server connection
	RefusedName                 // Server rejected the nickname; choose another
	NeedSession                 // In the lobby
	WaitForPlayers              // Seated in a session that has free seats
	NeedMove                    // Game running
	Closed                      // Client closed; no further use
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case NeedName:
		return "NeedName"
	case NotConnected:
		return "NotConnected"
	case RefusedName:
		return "RefusedName"
	case NeedSession:
		return "NeedSession"
	case WaitForPlayers:
		return "WaitForPlayers"
	case NeedMove:
		return "NeedMove"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateEvent is emitted when the client state changes.
type StateEvent struct {
	State     State     // The new state
	Previous  State     // The state before the change
	Timestamp time.Time // When the change happened
}

// StateHandler is called on every state change, synchronously from the
// goroutine that caused it: the caller of a request method, or the read
// loop for a game-over push. It must not block and must not call back into
// request methods.
type StateHandler func(event StateEvent)
