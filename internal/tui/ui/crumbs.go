package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumbs shows the page stack as a breadcrumb trail.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders the trail; the last name is the active page.
func (c *Crumbs) Update(names []string) {
	c.Clear()
	parts := make([]string, len(names))
	for i, name := range names {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(names)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts[i] = fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", ColorName(fg), ColorName(bg), attr, tview.Escape(name))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " > "))
}
