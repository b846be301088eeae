// Package keys maps key presses to actions, per page.
package keys

import "github.com/gdamore/tcell/v2"

// Action is one key binding.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Handler func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	return a.match(ev.Key(), ev.Rune())
}

func (a *Action) match(k tcell.Key, ch rune) bool {
	if a.Key != tcell.KeyRune {
		return k == a.Key
	}
	return k == tcell.KeyRune && ch == a.Rune
}

// Registry holds the global bindings and those of each page. Page bindings win over
// global ones; within a scope the first registered match wins.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// Global registers a binding active on every page.
func (r *Registry) Global(a *Action) {
	r.global = append(r.global, a)
}

// Page registers a binding active only on page.
func (r *Registry) Page(page string, a *Action) {
	r.pages[page] = append(r.pages[page], a)
}

// Rune is shorthand for a printable-key action.
func Rune(ch rune, fn func()) *Action {
	return &Action{Key: tcell.KeyRune, Rune: ch, Handler: fn}
}

// Key is shorthand for a special-key action.
func Key(k tcell.Key, fn func()) *Action {
	return &Action{Key: k, Handler: fn}
}

// HandleEvent runs the first action matching ev on page. It reports whether one ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	return r.handle(page, ev.Key(), ev.Rune())
}

func (r *Registry) handle(page string, k tcell.Key, ch rune) bool {
	for _, a := range r.pages[page] {
		if a.match(k, ch) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.match(k, ch) {
			a.Handler()
			return true
		}
	}
	return false
}
