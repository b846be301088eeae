package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// DaemonData is what the header shows about the connected daemon.
type DaemonData struct {
	Addr          string
	State         string
	Live          bool
	Conversations int
	Unread        int
}

// DaemonInfo renders DaemonData in the header.
type DaemonInfo struct {
	*tview.TextView
	theme *Theme
}

// NewDaemonInfo creates the daemon panel.
func NewDaemonInfo(theme *Theme) *DaemonInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &DaemonInfo{TextView: tv, theme: theme}
}

// Update renders d.
func (di *DaemonInfo) Update(d DaemonData) {
	di.Clear()
	fg := ColorName(di.theme.FgColor)
	val := ColorName(di.theme.CounterColor)

	state := d.State
	if state == "" {
		state = "unreachable"
	}
	live := "off"
	if d.Live {
		live = "on"
	}
	_, _ = fmt.Fprintf(di,
		"[%s::b]Daemon:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Live:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]  [%s]%d[-]\n"+
			"[%s::b]Unread:[-:-:-] [%s]%d[-]",
		fg, val, tview.Escape(d.Addr),
		fg, val, state,
		fg, val, live,
		fg, val, d.Conversations,
		fg, val, d.Unread,
	)
}
