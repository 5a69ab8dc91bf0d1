package corefake

import (
	"slices"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
)

type Notifier struct {
	mu            sync.Mutex
	playing       map[core.Ringtone]bool
	Played        []core.Ringtone
	Notifications []core.Notification
	StopAllCount  int
}

func (n *Notifier) PlayRingtone(r core.Ringtone) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.playing == nil {
		n.playing = make(map[core.Ringtone]bool)
	}
	n.playing[r] = true
	n.Played = append(n.Played, r)
}

func (n *Notifier) StopRingtone(r core.Ringtone) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.playing, r)
}

func (n *Notifier) StopAllSounds() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.playing)
	n.StopAllCount++
}

func (n *Notifier) ShowNotification(note core.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notifications = append(n.Notifications, note)
}

func (n *Notifier) Playing() []core.Ringtone {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Ringtone
	for r, on := range n.playing {
		if on {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}

func (n *Notifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Notifications))
	for _, note := range n.Notifications {
		out = append(out, note.Title)
	}
	return out
}
