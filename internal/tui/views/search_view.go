package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView shows message search results.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []store.SearchResult
}

// NewSearchView creates a new search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			if q := strings.TrimSpace(input.GetText()); q != "" {
				sv.onQuery(q)
			}
		}
	})
	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Tab", Description: "Results"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery sets the callback for a submitted query.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetQuery fills the input, for searches started from the command prompt.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

// Update renders results.
func (sv *SearchView) Update(query string, results []store.SearchResult) {
	sv.data = results
	sv.results.Clear()
	sv.results.SetTitle(fmt.Sprintf(" Results for %q (%d) ", tview.Escape(query), len(results)))

	headers := []string{" CONTACT", " SNIPPET", " TIME"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	now := time.Now()
	for i, r := range results {
		row := i + 1
		who := r.Message.AuthorName
		if r.Message.Direction == store.DirectionOutgoing || who == "" {
			who = r.Message.ConversationID
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+displayLine(who)).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+sv.highlight(r.Snippet)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(r.Message.Timestamp, now)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	if len(results) > 0 {
		sv.results.Select(1, 0)
	}
}

// highlight turns the <<match>> markers of a snippet into color tags.
func (sv *SearchView) highlight(snippet string) string {
	s := displayLine(snippet)
	color := ui.ColorName(sv.theme.UnreadColor)
	s = strings.Replace(s, "<<", "["+color+"::b]", 1)
	return strings.Replace(s, ">>", "[-:-:-]", 1)
}

// SelectedConversation returns the conversation of the selected result, or "".
func (sv *SearchView) SelectedConversation() string {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(sv.data) {
		return ""
	}
	return sv.data[idx].Message.ConversationID
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
