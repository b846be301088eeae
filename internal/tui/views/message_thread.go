package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays one conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	title    string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := composer.GetText(); text != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "Esc", Description: "Back"},
		{Key: "r", Description: "Reload"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetTitle names the thread after its contact.
func (mt *MessageThread) SetTitle(name string) {
	mt.title = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
}

// SetOnSend sets the callback for a submitted composer line.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders msgs, oldest first, and scrolls to the newest.
func (mt *MessageThread) Update(msgs []store.Message) {
	mt.messages.Clear()
	now := time.Now()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.formatMessage(m, now))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) formatMessage(m store.Message, now time.Time) string {
	author := m.AuthorName
	if author == "" {
		author = m.ConversationID
	}
	color := ui.ColorName(mt.theme.TitleColor)
	status := ""
	if m.Direction == store.DirectionOutgoing {
		author = "You"
		color = ui.ColorName(mt.theme.OutgoingColor)
		status = " " + statusMark(m.Status)
	}

	body := m.Body
	if m.Kind != store.KindText {
		body = fmt.Sprintf("[%s] %s", m.Kind, m.Caption)
		if m.Caption == "" && m.Body != "" {
			body = fmt.Sprintf("[%s] %s", m.Kind, m.Body)
		}
	}

	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s%s[-:-:-]\n%s\n\n",
		color, displayLine(author),
		formatTimestamp(m.Timestamp, now), tview.Escape(status),
		displayText(body))
}

// statusMark renders a delivery status as a short mark.
func statusMark(s store.DeliveryStatus) string {
	switch s {
	case store.StatusSent:
		return "✓"
	case store.StatusDelivered:
		return "✓✓"
	case store.StatusRead:
		return "✓✓ read"
	case store.StatusFailed:
		return "! failed"
	}
	return string(s)
}

// Messages returns the messages text view.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
