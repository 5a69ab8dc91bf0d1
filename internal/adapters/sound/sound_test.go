package sound

import (
	"sync"
	"testing"

	"github.com/dkeye/VoiceClient/internal/app/events"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) sounds() []SoundEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SoundEvent
	for _, ev := range r.events {
		if s, ok := ev.Data.(SoundEvent); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestRingtonesPlayOnce(t *testing.T) {
	rec := &recorder{}
	s := New(rec)

	s.PlayRingtone(core.RingtoneIncoming)
	s.PlayRingtone(core.RingtoneIncoming)
	s.PlayRingtone(core.RingtoneOutgoing)
	assert.Equal(t, []core.Ringtone{core.RingtoneIncoming, core.RingtoneOutgoing}, s.Active())

	s.StopRingtone(core.RingtoneIncoming)
	s.StopRingtone(core.RingtoneIncoming)
	s.StopAllSounds()
	s.StopAllSounds()
	assert.Empty(t, s.Active())

	assert.Equal(t, []SoundEvent{
		{Action: "play", Ringtone: core.RingtoneIncoming, Loop: true},
		{Action: "play", Ringtone: core.RingtoneOutgoing, Loop: true},
		{Action: "stop", Ringtone: core.RingtoneIncoming},
		{Action: "stop-all"},
	}, rec.sounds())
}

func TestNotificationClickRunsOnce(t *testing.T) {
	rec := &recorder{}
	s := New(rec)
	clicks := 0

	s.ShowNotification(core.Notification{Title: "Incoming audio call", Body: "Bob", OnClick: func() { clicks++ }})
	require.Len(t, rec.events, 1)
	note := rec.events[0].Data.(NotificationEvent)
	assert.Equal(t, events.TypeNotification, rec.events[0].Type)
	assert.Equal(t, core.LevelInfo, note.Level)
	assert.NotEmpty(t, note.Tag)

	assert.True(t, s.Click(note.Tag))
	assert.False(t, s.Click(note.Tag))
	assert.Equal(t, 1, clicks)
	assert.False(t, s.Click("unknown"))
}

func TestOldClickHandlersAreForgotten(t *testing.T) {
	rec := &recorder{}
	s := New(rec)
	for range maxPendingClicks + 1 {
		s.ShowNotification(core.Notification{Title: "n", OnClick: func() {}})
	}
	first := rec.events[0].Data.(NotificationEvent).Tag
	last := rec.events[len(rec.events)-1].Data.(NotificationEvent).Tag
	assert.False(t, s.Click(first))
	assert.True(t, s.Click(last))
}
