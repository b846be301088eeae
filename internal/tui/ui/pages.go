package ui

import "github.com/rivo/tview"

// Page is a Component that can be shown.
type Page interface {
	tview.Primitive
	Component
}

// Pages is a stack of registered pages on top of tview.Pages.
type Pages struct {
	*tview.Pages
	pages    map[string]Page
	stack    []string
	onChange func(top Page, stack []Page)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		pages: make(map[string]Page),
	}
}

// Register adds a hidden page under key.
func (p *Pages) Register(key string, page Page) {
	p.pages[key] = page
	p.AddPage(key, page, true, false)
}

// SetOnChange sets a callback fired after every stack change.
func (p *Pages) SetOnChange(fn func(top Page, stack []Page)) {
	p.onChange = fn
}

// Push shows the page registered under key on top of the stack. Pushing the page that
// is already on top is a no-op.
func (p *Pages) Push(key string) {
	if p.Current() == key {
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, key)
	p.ShowPage(key)
	p.SendToFront(key)
	p.notify()
}

// Pop removes the top page and shows the previous one. The last page is never popped.
// It returns the key of the removed page, or "".
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

// Reset clears the stack down to the page under key.
func (p *Pages) Reset(key string) {
	for _, k := range p.stack {
		p.HidePage(k)
	}
	p.stack = []string{key}
	p.ShowPage(key)
	p.SendToFront(key)
	p.notify()
}

// Current returns the key of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Refresh re-fires the change callback, for pages whose name changed.
func (p *Pages) Refresh() {
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange == nil || len(p.stack) == 0 {
		return
	}
	stack := make([]Page, len(p.stack))
	for i, k := range p.stack {
		stack[i] = p.pages[k]
	}
	p.onChange(stack[len(stack)-1], stack)
}
