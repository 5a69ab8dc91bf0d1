package corefake

import (
	"errors"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/tidwall/gjson"
)

// Signal is a loopback SignalConnection. Sent frames are recorded; Inject
// delivers an inbound frame synchronously.
type Signal struct {
	Address string
	SendErr error

	mu      sync.Mutex
	sent    []core.Frame
	onFrame func(core.Frame)
	closed  bool
}

func NewSignal(address string) *Signal { return &Signal{Address: address} }

func (s *Signal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("signal closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, append(core.Frame(nil), f...))
	return nil
}

func (s *Signal) OnFrame(fn func(core.Frame)) {
	s.mu.Lock()
	s.onFrame = fn
	s.mu.Unlock()
}

func (s *Signal) LocalAddress() string { return s.Address }

func (s *Signal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Signal) Inject(f core.Frame) {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

func (s *Signal) Sent() []core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Frame(nil), s.sent...)
}

// SentEvents returns the frames whose event name is event.
func (s *Signal) SentEvents(event string) []core.Frame {
	var out []core.Frame
	for _, f := range s.Sent() {
		if gjson.GetBytes(f, "event").String() == event {
			out = append(out, f)
		}
	}
	return out
}

func (s *Signal) Reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}
