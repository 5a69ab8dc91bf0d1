package calllog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "calls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func state(callID string, status domain.CallStatus, initiator bool, participants int) domain.CallState {
	st := domain.IdleState()
	st.CallID = callID
	st.Status = status
	st.Initiator = initiator
	st.CallType = domain.CallAudio
	st.Chat = domain.ChatContext{ChatType: domain.ChatDirect, ChatID: "chat-" + callID, ChatName: "Bob"}
	for i := range participants {
		st.Participants = append(st.Participants, domain.Participant{UserID: domain.CanonicalID(i + 1), Name: "p"})
	}
	return st
}

func TestOutcomes(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()

	l.Observe(state("out", domain.StatusCalling, true, 1))
	l.Observe(domain.IdleState())

	l.Observe(state("in", domain.StatusRinging, false, 1))
	l.Observe(domain.IdleState())

	connected := state("done", domain.StatusConnected, false, 2)
	connected.StartedAt = time.Now().Add(-time.Minute)
	l.Observe(state("done", domain.StatusRinging, false, 1))
	l.Observe(connected)
	l.Observe(state("done", domain.StatusConnected, false, 3))
	l.Observe(domain.IdleState())

	entries, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byCall := map[string]Entry{}
	for _, e := range entries {
		byCall[e.CallID] = e
	}
	assert.Equal(t, Unanswered, byCall["out"].Outcome)
	assert.Equal(t, Outgoing, byCall["out"].Direction)
	assert.Equal(t, Missed, byCall["in"].Outcome)
	assert.Equal(t, Incoming, byCall["in"].Direction)

	done := byCall["done"]
	assert.Equal(t, Completed, done.Outcome)
	assert.Equal(t, 3, done.Participants)
	assert.Equal(t, "chat-done", done.ChatID)
	assert.Equal(t, domain.ChatDirect, done.ChatType)
	assert.Equal(t, connected.StartedAt.UnixMilli(), done.ConnectedAt.UnixMilli())
	assert.GreaterOrEqual(t, done.Duration(), time.Minute)
	assert.Zero(t, byCall["in"].Duration())

	assert.Equal(t, "done", entries[0].CallID, "newest first")
}

func TestSwitchingCallsFinishesThePreviousOne(t *testing.T) {
	l := openLog(t)
	l.Observe(state("c1", domain.StatusConnected, false, 2))
	l.Observe(state("c2", domain.StatusConnected, false, 2))

	entries, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].CallID)
	assert.Equal(t, Completed, entries[0].Outcome)
}

func TestIdleWithoutCallWritesNothing(t *testing.T) {
	l := openLog(t)
	l.Observe(domain.IdleState())
	l.Observe(state("", domain.StatusCalling, true, 1))
	l.Observe(domain.IdleState())

	entries, err := l.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListLimit(t *testing.T) {
	l := openLog(t)
	for _, id := range []string{"a", "b", "c"} {
		l.Observe(state(id, domain.StatusCalling, true, 1))
		l.Observe(domain.IdleState())
	}
	entries, err := l.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].CallID)
	assert.Equal(t, "b", entries[1].CallID)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.db")
	l, err := Open(path)
	require.NoError(t, err)
	l.Observe(state("a", domain.StatusCalling, true, 1))
	l.Observe(domain.IdleState())
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	entries, err := l.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].CallID)
}
