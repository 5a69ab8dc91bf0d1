package events

import (
	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// Source is anything that emits session snapshots.
// *orch.Orchestrator and *store.Store satisfy it.
type Source interface {
	OnStateChange(store.StateFunc) func()
	OnParticipantUpdate(store.ParticipantsFunc) func()
}

// Watch publishes every snapshot of src on h. The returned function stops it.
func (h *Hub) Watch(src Source) func() {
	offState := src.OnStateChange(func(st domain.CallState) {
		h.Publish(Event{Type: TypeState, Data: st})
	})
	offRoster := src.OnParticipantUpdate(func(ps domain.Participants) {
		h.Publish(Event{Type: TypeParticipants, Data: ps})
	})
	return func() {
		offState()
		offRoster()
	}
}
