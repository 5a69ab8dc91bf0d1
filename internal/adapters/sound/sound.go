// Package sound implements the ringtone and notification service by
// publishing events for the UI to play and display.
package sound

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/events"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxPendingClicks = 32

type Publisher interface {
	Publish(events.Event)
}

type SoundEvent struct {
	Action   string        `json:"action"`
	Ringtone core.Ringtone `json:"ringtone,omitempty"`
	Loop     bool          `json:"loop,omitempty"`
}

type NotificationEvent struct {
	Tag   string                 `json:"tag"`
	Title string                 `json:"title"`
	Body  string                 `json:"body,omitempty"`
	Icon  string                 `json:"icon,omitempty"`
	Level core.NotificationLevel `json:"level"`
	At    time.Time              `json:"at"`
}

type Service struct {
	pub Publisher

	mu     sync.Mutex
	active map[core.Ringtone]struct{}
	clicks map[string]func()
	order  []string
}

func New(pub Publisher) *Service {
	return &Service{
		pub:    pub,
		active: make(map[core.Ringtone]struct{}),
		clicks: make(map[string]func()),
	}
}

func (s *Service) PlayRingtone(kind core.Ringtone) {
	s.mu.Lock()
	if _, ok := s.active[kind]; ok {
		s.mu.Unlock()
		return
	}
	s.active[kind] = struct{}{}
	s.mu.Unlock()
	log.Debug().Str("module", "adapters.sound").Str("ringtone", string(kind)).Msg("play")
	s.pub.Publish(events.Event{Type: events.TypeSound, Data: SoundEvent{Action: "play", Ringtone: kind, Loop: true}})
}

func (s *Service) StopRingtone(kind core.Ringtone) {
	s.mu.Lock()
	if _, ok := s.active[kind]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, kind)
	s.mu.Unlock()
	s.pub.Publish(events.Event{Type: events.TypeSound, Data: SoundEvent{Action: "stop", Ringtone: kind}})
}

func (s *Service) StopAllSounds() {
	s.mu.Lock()
	had := len(s.active) > 0
	clear(s.active)
	s.mu.Unlock()
	if had {
		s.pub.Publish(events.Event{Type: events.TypeSound, Data: SoundEvent{Action: "stop-all"}})
	}
}

// Active lists the ringtones currently playing.
func (s *Service) Active() []core.Ringtone {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Ringtone, 0, len(s.active))
	for k := range s.active {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s *Service) ShowNotification(n core.Notification) {
	tag := uuid.NewString()
	if n.OnClick != nil {
		s.mu.Lock()
		s.clicks[tag] = n.OnClick
		s.order = append(s.order, tag)
		if len(s.order) > maxPendingClicks {
			delete(s.clicks, s.order[0])
			s.order = s.order[1:]
		}
		s.mu.Unlock()
	}
	level := n.Level
	if level == "" {
		level = core.LevelInfo
	}
	s.pub.Publish(events.Event{Type: events.TypeNotification, Data: NotificationEvent{
		Tag:   tag,
		Title: n.Title,
		Body:  n.Body,
		Icon:  n.Icon,
		Level: level,
		At:    time.Now(),
	}})
}

// Click runs the click callback registered for tag once. It reports
// whether one was found.
func (s *Service) Click(tag string) bool {
	s.mu.Lock()
	fn, ok := s.clicks[tag]
	if ok {
		delete(s.clicks, tag)
		s.order = slices.DeleteFunc(s.order, func(t string) bool { return t == tag })
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	fn()
	return true
}
