package core

//go:generate mockgen -destination=mocks/signal.go -package=mocks . SignalConnection

// Frame is a raw encoded envelope ready for the wire.
type Frame []byte

// SignalConnection abstracts the messaging transport of one peer.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking. An error means the frame was
	// dropped.
	TrySend(Frame) error
	Close()
}
