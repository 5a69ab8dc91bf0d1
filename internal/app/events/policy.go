package events

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	KickClient
)

// Policy decides what happens to a client whose queue is full.
type Policy interface {
	OnBackPressure(c *Client) BackpressureAction
}

// DropThenKick drops events for a slow client and disconnects it after
// Limit consecutive drops.
type DropThenKick struct {
	Limit int
}

func (p DropThenKick) OnBackPressure(c *Client) BackpressureAction {
	if p.Limit > 0 && c.Dropped() >= p.Limit {
		return KickClient
	}
	return DropEvent
}
