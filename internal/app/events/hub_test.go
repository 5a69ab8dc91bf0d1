package events

import (
	"testing"

	"github.com/dkeye/VoiceClient/internal/app/store"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEveryClient(t *testing.T) {
	h := NewHub(4, nil)
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	require.Equal(t, 2, h.Len())

	h.Publish(Event{Type: TypeSound, Data: "x"})
	assert.Equal(t, TypeSound, (<-a.Events()).Type)
	assert.Equal(t, TypeSound, (<-b.Events()).Type)
}

func TestSubscribeReplacesClientWithSameID(t *testing.T) {
	h := NewHub(4, nil)
	old := h.Subscribe("a")
	cur := h.Subscribe("a")
	assert.Equal(t, 1, h.Len())

	_, open := <-old.Events()
	assert.False(t, open)

	h.Unsubscribe(old)
	assert.Equal(t, 1, h.Len(), "stale unsubscribe keeps the new client")
	h.Unsubscribe(cur)
	assert.Zero(t, h.Len())
	assert.ErrorIs(t, cur.TrySend(Event{}), ErrClosed)
}

func TestSlowClientIsDroppedThenKicked(t *testing.T) {
	h := NewHub(1, DropThenKick{Limit: 2})
	c := h.Subscribe("slow")

	h.Publish(Event{Type: "1"})
	h.Publish(Event{Type: "2"})
	assert.Equal(t, 1, c.Dropped())
	assert.Equal(t, 1, h.Len())

	h.Publish(Event{Type: "3"})
	assert.Zero(t, h.Len())
	h.Publish(Event{Type: "4"})
}

func TestSuccessfulSendResetsDropCount(t *testing.T) {
	h := NewHub(1, DropThenKick{Limit: 5})
	c := h.Subscribe("c")
	h.Publish(Event{Type: "1"})
	h.Publish(Event{Type: "2"})
	require.Equal(t, 1, c.Dropped())

	<-c.Events()
	h.Publish(Event{Type: "3"})
	assert.Zero(t, c.Dropped())
}

func TestWatchPublishesSnapshots(t *testing.T) {
	h := NewHub(8, nil)
	c := h.Subscribe("ui")
	st := store.New()
	stop := h.Watch(st)

	st.Mutate(func(s *store.Session) {
		s.Status = domain.StatusRinging
		s.Put(domain.Participant{UserID: "2", Name: "Bob"})
	})

	var types []string
	for range 2 {
		types = append(types, (<-c.Events()).Type)
	}
	assert.ElementsMatch(t, []string{TypeState, TypeParticipants}, types)

	stop()
	st.Mutate(func(s *store.Session) { s.Status = domain.StatusIdle })
	assert.Empty(t, c.Events())
}
