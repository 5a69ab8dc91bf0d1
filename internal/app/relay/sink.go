package relay

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Sink consumes RTP packets of one remote track.
// *webrtc.TrackLocalStaticRTP satisfies it.
type Sink interface {
	WriteRTP(*rtp.Packet) error
}

type sinkEntry struct {
	sink  Sink
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func (e *sinkEntry) State() SinkState { return SinkState(e.state.Load()) }
func (e *sinkEntry) MarkOk()          { e.state.Store(int32(SinkStateOk)) }
func (e *sinkEntry) MarkMuted()       { e.state.Store(int32(SinkStateMuted)) }
func (e *sinkEntry) MarkDelete()      { e.state.Store(int32(SinkStateDelete)) }
