package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a notice in the bottom bar.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notice. Repeats counts identical notices raised while it was
// still visible, so a reconnect loop shows "(x4)" instead of flickering.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeats int
	Expires time.Time
}

// FlashModel holds the current notice and feeds the bar through Watch.
type FlashModel struct {
	mu      sync.Mutex
	current FlashMessage
	now     func() time.Time
	watchCh chan FlashMessage
}

func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

func (f *FlashModel) Info(msg string) { f.raise(msg, FlashInfo) }

func (f *FlashModel) Warn(msg string) { f.raise(msg, FlashWarn) }

// Err shows err; a nil error is ignored.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	f.raise(err.Error(), FlashErr)
}

func (f *FlashModel) raise(msg string, level FlashLevel) {
	now := f.now()
	f.mu.Lock()
	if f.current.Text == msg && f.current.Level == level && now.Before(f.current.Expires) {
		f.current.Repeats++
	} else {
		f.current = FlashMessage{Text: msg, Level: level}
	}
	f.current.Expires = now.Add(flashTTL[level])
	fm := f.current
	f.mu.Unlock()

	select {
	case f.watchCh <- fm:
	default:
	}
}

// GetMessage returns the visible notice, or nil once it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch delivers every raised notice. Notices raised while the channel is full are
// still visible through GetMessage.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar renders the current notice.
type FlashBar struct {
	*tview.TextView
	colors map[FlashLevel]string
}

func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{
		TextView: tv,
		colors: map[FlashLevel]string{
			FlashInfo: ColorName(theme.FlashInfoColor),
			FlashWarn: ColorName(theme.FlashWarnColor),
			FlashErr:  ColorName(theme.FlashErrColor),
		},
	}
}

// Update redraws the bar; nil clears it.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	text := tview.Escape(msg.Text)
	if msg.Repeats > 0 {
		text += fmt.Sprintf(" (x%d)", msg.Repeats+1)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", fb.colors[msg.Level], text)
}
