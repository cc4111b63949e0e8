package tcpserver

// ConnHandler serves one accepted connection. The server creates a handler
// per connection and runs Handle in its own goroutine.
type ConnHandler interface {
	// ID returns the identifier the server assigned to the connection.
	//
	// Returns:
	//   - The connection ID (uint32)
	ID() uint32

	// Handle runs the connection's receive and dispatch loop. It returns
	// when the peer disconnects or Close is called, after releasing every
	// resource the connection held.
	Handle()

	// Close unblocks Handle. It must be safe to call more than once and
	// from any goroutine.
	//
	// Returns:
	//   - An error if closing the underlying connection failed
	Close() error
}
