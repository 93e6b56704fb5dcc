package engine

// Player is the playback engine's command surface. The engine only issues
// commands; it never controls audio itself.
type Player interface {
	Load(trackID string) error
	SeekTo(position float64) error
	SetRate(rate float64) error
}

// NopPlayer discards every command.
type NopPlayer struct{}

func (NopPlayer) Load(string) error     { return nil }
func (NopPlayer) SeekTo(float64) error  { return nil }
func (NopPlayer) SetRate(float64) error { return nil }

// Notice is a user-visible message about an optimistic award that was
// reversed.
type Notice struct {
	Seq         int64
	ChallengeID string
	Title       string
	Points      int
	Reason      string
}

// Notifier receives rollback notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}
