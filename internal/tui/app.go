// Package tui is a terminal client for a running inboxd.
package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/tui/client"
	"github.com/matheus3301/inbox/internal/tui/keys"
	"github.com/matheus3301/inbox/internal/tui/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageSearch        = "search"
	pageHelp          = "help"

	refreshInterval   = 5 * time.Second
	reconnectInterval = 3 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	client   *client.Client
	registry *keys.Registry
	flash    *ui.FlashModel

	pages      *ui.Pages
	body       *tview.Flex
	prompt     *ui.Prompt
	promptOpen bool
	daemonInfo *ui.DaemonInfo
	menu       *ui.Menu
	crumbs     *ui.Crumbs
	flashBar   *ui.FlashBar

	list   *views.ConversationList
	thread *views.MessageThread
	search *views.SearchView
	help   *views.HelpView

	streamMu sync.Mutex
	stream   *client.Stream
	live     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for the daemon behind c.
func NewApp(c *client.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:        tview.NewApplication(),
		theme:      theme,
		vm:         model.NewViewModel(c),
		client:     c,
		registry:   keys.NewRegistry(),
		flash:      ui.NewFlashModel(),
		pages:      ui.NewPages(),
		prompt:     ui.NewPrompt(theme),
		daemonInfo: ui.NewDaemonInfo(theme),
		menu:       ui.NewMenu(theme),
		crumbs:     ui.NewCrumbs(theme),
		flashBar:   ui.NewFlashBar(theme),
		list:       views.NewConversationList(theme),
		thread:     views.NewMessageThread(theme),
		search:     views.NewSearchView(theme),
		help:       views.NewHelpView(theme),
		ctx:        ctx,
		cancel:     cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.Global(keys.Rune(':', func() { a.openPrompt(ui.PromptCommand) }))
	a.registry.Global(keys.Rune('?', func() { a.pages.Push(pageHelp) }))
	a.registry.Global(keys.Key(tcell.KeyEscape, a.back))

	a.registry.Page(pageConversations, keys.Rune('q', a.Stop))
	a.registry.Page(pageConversations, keys.Rune('/', func() { a.openPrompt(ui.PromptFilter) }))
	a.registry.Page(pageConversations, keys.Rune('r', func() { go a.reloadConversations() }))
	a.registry.Page(pageConversations, keys.Rune('0', func() { a.list.SetFilter("") }))
	for n := 1; n <= 9; n++ {
		a.registry.Page(pageConversations, keys.Rune(rune('0'+n), func() {
			if id := a.list.ConversationByIndex(n); id != "" {
				a.openConversation(id)
			}
		}))
	}

	a.registry.Page(pageThread, keys.Rune('i', func() { a.app.SetFocus(a.thread.Composer()) }))
	a.registry.Page(pageThread, keys.Rune('r', func() {
		if id := a.vm.ActiveID(); id != "" {
			a.openConversation(id)
		}
	}))

	a.registry.Page(pageSearch, keys.Key(tcell.KeyTab, func() { a.app.SetFocus(a.search.Input()) }))
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if id := a.list.ConversationByIndex(row); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.flash.Err(err)
			}
		}()
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if id := a.search.SelectedConversation(); id != "" {
			a.openConversation(id)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			if strings.TrimSpace(text) == "" {
				return
			}
			cmd, err := ParseCommand(text)
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.runCommand(cmd)
		case ui.PromptFilter:
			a.list.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func(top ui.Page, stack []ui.Page) {
		names := make([]string, len(stack))
		for i, p := range stack {
			names[i] = p.Name()
		}
		a.crumbs.Update(names)
		a.menu.Update(top.Hints())
		a.focusCurrent()
	})
}

func (a *App) setupLayout() {
	a.pages.Register(pageConversations, a.list)
	a.pages.Register(pageThread, a.thread)
	a.pages.Register(pageSearch, a.search)
	a.pages.Register(pageHelp, a.help)

	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.daemonInfo, 0, 1, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 18, 0, false)

	a.body = tview.NewFlex().SetDirection(tview.FlexRow)
	a.layoutBody()

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	root.SetBackgroundColor(a.theme.BgColor)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageConversations)
}

func (a *App) layoutBody() {
	a.body.Clear()
	if a.promptOpen {
		a.body.AddItem(a.prompt, 3, 0, true)
	}
	a.body.AddItem(a.pages, 0, 1, !a.promptOpen)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptOpen {
		return ev
	}

	switch a.app.GetFocus() {
	case a.thread.Composer():
		if ev.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return ev
	case a.search.Input():
		switch ev.Key() {
		case tcell.KeyEscape:
			a.back()
			return nil
		case tcell.KeyTab:
			a.app.SetFocus(a.search.Results())
			return nil
		}
		return ev
	}

	if a.registry.HandleEvent(a.pages.Current(), ev) {
		return nil
	}
	return ev
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageConversations:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) openPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.promptOpen = true
	a.layoutBody()
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.promptOpen = false
	a.layoutBody()
	a.focusCurrent()
}

// back pops the current page. On the conversation list it clears the filter.
func (a *App) back() {
	switch a.pages.Current() {
	case pageConversations:
		if a.list.Filter() != "" {
			a.list.SetFilter("")
		}
		return
	case pageThread:
		a.leaveConversation(a.vm.CloseConversation())
	}
	a.pages.Pop()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case CmdQuit:
		a.Stop()
	case CmdSearch:
		a.pages.Push(pageSearch)
		a.search.SetQuery(cmd.Args)
		a.runSearch(cmd.Args)
	case CmdOpen:
		a.openConversation(a.resolveConversation(cmd.Args))
	case CmdReload:
		go a.reloadConversations()
	case CmdHelp:
		a.pages.Push(pageHelp)
	}
}

// resolveConversation matches arg against conversation ids, then contact names. An
// unknown arg is used as an id as is.
func (a *App) resolveConversation(arg string) string {
	convs := a.vm.Conversations()
	for _, c := range convs {
		if c.ConversationID == arg {
			return arg
		}
	}
	for _, c := range convs {
		if strings.EqualFold(c.DisplayName, arg) {
			return c.ConversationID
		}
	}
	return arg
}

func (a *App) openConversation(id string) {
	prev := a.vm.ActiveID()
	go func() {
		if err := a.vm.OpenConversation(a.ctx, id); err != nil {
			a.flash.Err(err)
			return
		}
		if prev != "" && prev != id {
			a.leaveConversation(prev)
		}
		a.joinConversation(id)
		a.app.QueueUpdateDraw(func() {
			a.thread.SetTitle(a.vm.DisplayName(id))
			a.thread.Update(a.vm.Messages())
			if a.pages.Current() == pageThread {
				a.pages.Refresh()
				return
			}
			a.pages.Push(pageThread)
		})
	}()
}

func (a *App) joinConversation(id string) {
	a.streamMu.Lock()
	defer a.streamMu.Unlock()
	if a.stream == nil {
		return
	}
	if err := a.stream.Join(id); err != nil {
		a.flash.Warn("live updates for this conversation failed: " + err.Error())
	}
}

func (a *App) leaveConversation(id string) {
	if id == "" {
		return
	}
	a.streamMu.Lock()
	defer a.streamMu.Unlock()
	if a.stream != nil {
		_ = a.stream.Leave(id)
	}
}

func (a *App) runSearch(query string) {
	go func() {
		results, err := a.vm.Search(a.ctx, query)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.search.Update(query, results)
			if len(results) > 0 {
				a.app.SetFocus(a.search.Results())
			} else {
				a.flash.Info("no messages match " + query)
			}
		})
	}()
}

func (a *App) reloadConversations() {
	if err := a.vm.LoadConversations(a.ctx); err != nil {
		a.flash.Err(err)
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.list.Update(a.vm.Conversations())
		a.updateDaemonInfo()
	})
}

func (a *App) refreshHealth() {
	err := a.vm.LoadHealth(a.ctx)
	var apiErr *client.APIError
	if err != nil && !errors.As(err, &apiErr) {
		a.flash.Err(err)
	}
	a.app.QueueUpdateDraw(a.updateDaemonInfo)
}

func (a *App) updateDaemonInfo() {
	d := ui.DaemonData{
		Addr: a.client.BaseURL(),
		Live: a.live.Load(),
	}
	if h := a.vm.Health(); h != nil {
		d.State = h.State
	}
	convs := a.vm.Conversations()
	d.Conversations = len(convs)
	for _, c := range convs {
		d.Unread += c.UnreadCount
	}
	a.daemonInfo.Update(d)
}

// streamLoop keeps a push subscription open, reconnecting until the app stops.
func (a *App) streamLoop() {
	for a.ctx.Err() == nil {
		s, err := a.client.Subscribe(a.ctx)
		if err != nil {
			if a.ctx.Err() != nil {
				return
			}
			a.setLive(false)
			if !sleepCtx(a.ctx, reconnectInterval) {
				return
			}
			continue
		}

		a.streamMu.Lock()
		a.stream = s
		a.streamMu.Unlock()
		a.setLive(true)
		if id := a.vm.ActiveID(); id != "" {
			a.joinConversation(id)
		}
		// Catch up on whatever happened while disconnected.
		go a.reloadConversations()

		for ev := range s.Events() {
			a.applyEvent(ev)
		}

		a.streamMu.Lock()
		a.stream = nil
		a.streamMu.Unlock()
		if a.ctx.Err() != nil {
			return
		}
		a.setLive(false)
		if err := s.Err(); err != nil {
			a.flash.Warn("live updates lost, reconnecting: " + err.Error())
		}
		if !sleepCtx(a.ctx, reconnectInterval) {
			return
		}
	}
}

func (a *App) applyEvent(ev client.Event) {
	change := a.vm.Apply(ev)
	if change.Has(model.ChangeThread) {
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(a.vm.Messages())
		})
	}
	if change.Has(model.ChangeConversations) {
		a.reloadConversations()
	}
}

func (a *App) setLive(live bool) {
	if a.live.Swap(live) != live {
		a.app.QueueUpdateDraw(a.updateDaemonInfo)
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refreshHealth()
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.flash.GetMessage())
			})
		case msg := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(&msg)
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run loads the initial state and blocks until the user quits.
func (a *App) Run() error {
	go func() {
		a.refreshHealth()
		a.reloadConversations()
		go a.streamLoop()
		a.refreshLoop()
	}()
	return a.app.Run()
}

// Stop shuts the TUI down and closes the push subscription.
func (a *App) Stop() {
	a.cancel()
	a.streamMu.Lock()
	if a.stream != nil {
		_ = a.stream.Close()
	}
	a.streamMu.Unlock()
	a.app.Stop()
}
