package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header banner.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the banner.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	title, fg := ColorName(theme.TitleColor), ColorName(theme.FgColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┬┌┐┌┌┐ ┌─┐─┐ ┬[-:-:-]\n"+
			"[%s::b]││││├┴┐│ │┌┴┬┘[-:-:-]\n"+
			"[%s::b]┴┘└┘└─┘└─┘┴ └─[-:-:-]\n"+
			"[%s]message history[-:-:-]",
		title, title, title, fg)
	return &Logo{TextView: tv}
}
