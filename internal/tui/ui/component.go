package ui

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
}

// Component is implemented by every page of the client.
type Component interface {
	Name() string
	Hints() []MenuHint
}
