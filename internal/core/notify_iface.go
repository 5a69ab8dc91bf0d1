package core

type Ringtone string

const (
	RingtoneIncoming Ringtone = "incoming"
	RingtoneOutgoing Ringtone = "outgoing"
)

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

type Notification struct {
	Title   string
	Body    string
	Icon    string
	Level   NotificationLevel
	OnClick func()
}

// Notifier is the sound and notification service.
type Notifier interface {
	PlayRingtone(Ringtone)
	StopRingtone(Ringtone)
	StopAllSounds()
	ShowNotification(Notification)
}
