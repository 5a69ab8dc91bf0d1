// Package relay drains remote tracks, keeps per-track counters and forwards
// packets to attached sinks.
package relay

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type Relay struct {
	Src         core.RemoteTrack
	Participant domain.ParticipantID

	mu    sync.RWMutex
	sinks map[string]*sinkEntry

	packets    atomic.Uint64
	bytes      atomic.Uint64
	lastPacket atomic.Int64
	muted      atomic.Bool
	done       chan struct{}

	cancel context.CancelFunc
}

func newRelay(src core.RemoteTrack, participant domain.ParticipantID, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:         src,
		Participant: participant,
		sinks:       make(map[string]*sinkEntry),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
}

// loop reads RTP packets from the source until it fails or ctx ends.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done, marking all sinks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay read ended")
			r.markAllDelete()
			return
		}
		r.packets.Add(1)
		r.bytes.Add(uint64(len(pkt.Payload)))
		r.lastPacket.Store(time.Now().UnixNano())
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	if len(r.sinks) == 0 {
		r.mu.RUnlock()
		return
	}
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	muted := r.muted.Load()
	var dirty []string
	for key, e := range snapshot {
		switch e.State() {
		case SinkStateDelete:
			dirty = append(dirty, key)
		case SinkStateMuted:
		case SinkStateOk:
			if muted {
				continue
			}
			if err := e.sink.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", key).Msg("sink write failed, dropping sink")
				e.MarkDelete()
				dirty = append(dirty, key)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range dirty {
		if e, ok := r.sinks[key]; ok && e.State() == SinkStateDelete {
			delete(r.sinks, key)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sinks {
		e.MarkDelete()
	}
}

func (r *Relay) addSink(key string, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks[key]; ok {
		old.MarkDelete()
	}
	r.sinks[key] = &sinkEntry{sink: s}
}

func (r *Relay) removeSink(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sinks[key]; ok {
		e.MarkDelete()
		delete(r.sinks, key)
	}
}

// Stats is a point-in-time view of one relay.
type Stats struct {
	Participant domain.ParticipantID `json:"userId"`
	TrackID     string               `json:"trackId"`
	StreamID    string               `json:"streamId"`
	Kind        string               `json:"kind"`
	Packets     uint64               `json:"packets"`
	Bytes       uint64               `json:"bytes"`
	LastPacket  time.Time            `json:"lastPacket,omitzero"`
	Muted       bool                 `json:"muted"`
	Sinks       int                  `json:"sinks"`
}

func (r *Relay) Stats() Stats {
	r.mu.RLock()
	n := len(r.sinks)
	r.mu.RUnlock()
	st := Stats{
		Participant: r.Participant,
		TrackID:     r.Src.ID(),
		StreamID:    r.Src.StreamID(),
		Kind:        r.Src.Kind().String(),
		Packets:     r.packets.Load(),
		Bytes:       r.bytes.Load(),
		Muted:       r.muted.Load(),
		Sinks:       n,
	}
	if ns := r.lastPacket.Load(); ns > 0 {
		st.LastPacket = time.Unix(0, ns)
	}
	return st
}

// Done is closed once the read loop has exited.
func (r *Relay) Done() <-chan struct{} { return r.done }
