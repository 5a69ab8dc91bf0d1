package core

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// OnFrame registers the handler for inbound frames. Frames are delivered
	// sequentially from one goroutine.
	OnFrame(func(Frame))
	// LocalAddress is this client's transport-level id (socket id).
	LocalAddress() string
	Close()
}
