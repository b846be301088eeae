package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []conversation.Summary
	visible []conversation.Summary
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{
		Table: table,
		theme: theme,
	}
	cl.render()
	return cl
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "r", Description: "Reload"},
		{Key: "1-9", Description: "Jump"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
	}
}

// Update replaces the listed conversations, keeping the cursor on the same conversation
// when it is still visible.
func (cl *ConversationList) Update(convs []conversation.Summary) {
	selected := cl.SelectedConversation()
	cl.convs = convs
	cl.render()
	cl.selectID(selected)
}

// SetFilter narrows the list to conversations whose name, id or last message contains
// filter. An empty filter shows everything.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
	cl.Select(1, 0)
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

// Unread sums the unread counts of every conversation, filtered or not.
func (cl *ConversationList) Unread() int {
	n := 0
	for _, c := range cl.convs {
		n += c.UnreadCount
	}
	return n
}

func (cl *ConversationList) matches(c conversation.Summary) bool {
	if cl.filter == "" {
		return true
	}
	return containsFold(c.DisplayName, cl.filter) ||
		containsFold(c.ConversationID, cl.filter) ||
		containsFold(c.LastMessageBody, cl.filter)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" MSGS", 0},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.convs {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		name := c.DisplayName
		if name == "" {
			name = c.ConversationID
		}
		nameColor := cl.theme.FgColor
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", c.UnreadCount, name)
			nameColor = cl.theme.UnreadColor
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+displayLine(name)).SetExpansion(1).SetTextColor(nameColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+displayLine(c.LastMessageBody)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d ", c.MessageCount)).SetTextColor(cl.theme.CounterColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastMessageTimestamp, time.Now())+" ").SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

func (cl *ConversationList) selectID(id string) {
	if id == "" {
		return
	}
	for i, c := range cl.visible {
		if c.ConversationID == id {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SelectedConversation returns the id of the conversation under the cursor, or "".
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	return cl.ConversationByIndex(row)
}

// ConversationByIndex returns the id of the Nth visible conversation (1-based), or "".
func (cl *ConversationList) ConversationByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ConversationID
}

// formatTimestamp shows the time of day for today and the date otherwise.
func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}
