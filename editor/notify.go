package editor

// Align tells the UI where a row should land when scrolled into view.
type Align string

const (
	AlignAuto  Align = ""
	AlignSmart Align = "smart"
)

// ScrollHint asks the UI to bring a row of the selected namespace into view.
type ScrollHint struct {
	Namespace string
	Index     int
	Align     Align
}

// Notifier receives scroll hints. Each triggering mutation produces at most
// one hint. ScrollToRow is called without the store lock held, so it may
// read from the store.
type Notifier interface {
	ScrollToRow(ScrollHint)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ScrollHint)

func (f NotifierFunc) ScrollToRow(h ScrollHint) { f(h) }

// ChannelNotifier delivers hints on a channel. A hint is dropped when the
// channel is full.
type ChannelNotifier chan ScrollHint

func (c ChannelNotifier) ScrollToRow(h ScrollHint) {
	select {
	case c <- h:
	default:
	}
}

type nopNotifier struct{}

func (nopNotifier) ScrollToRow(ScrollHint) {}
