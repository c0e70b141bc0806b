package core

// Frame is a raw outbound payload: a marshaled event or a forwarded
// signaling envelope. Media chunks never travel through frames.
type Frame []byte

// SignalConnection abstracts a session's messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend must
// never block: implementations queue and report backpressure as an
// error instead.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
