package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type fakePage struct {
	*tview.Box
	name string
}

func (p fakePage) Name() string      { return p.name }
func (p fakePage) Hints() []MenuHint { return nil }

func newFakePages() *Pages {
	p := NewPages()
	for _, name := range []string{"list", "thread", "help"} {
		p.Register(name, fakePage{Box: tview.NewBox(), name: name})
	}
	return p
}

func TestPagesStack(t *testing.T) {
	p := newFakePages()
	var trail []string
	p.SetOnChange(func(top Page, stack []Page) {
		trail = trail[:0]
		for _, s := range stack {
			trail = append(trail, s.Name())
		}
	})

	p.Reset("list")
	p.Push("thread")
	p.Push("thread")
	p.Push("help")
	if got := strings.Join(trail, ">"); got != "list>thread>help" {
		t.Fatalf("stack = %s", got)
	}
	if front, _ := p.GetFrontPage(); front != "help" {
		t.Errorf("front page = %q", front)
	}

	if popped := p.Pop(); popped != "help" {
		t.Errorf("Pop() = %q", popped)
	}
	p.Pop()
	if p.Current() != "list" {
		t.Errorf("Current() = %q", p.Current())
	}
	if popped := p.Pop(); popped != "" {
		t.Errorf("last page popped: %q", popped)
	}
}

func TestFlashModel(t *testing.T) {
	f := NewFlashModel()
	if f.GetMessage() != nil {
		t.Fatal("fresh model should have no message")
	}
	f.Err(errors.New("boom"))
	msg := f.GetMessage()
	if msg == nil || msg.Text != "boom" || msg.Level != FlashErr {
		t.Fatalf("message = %+v", msg)
	}
	select {
	case got := <-f.Watch():
		if got.Text != "boom" {
			t.Errorf("watched = %+v", got)
		}
	default:
		t.Error("Watch() did not receive the message")
	}
}

func TestColorName(t *testing.T) {
	if got := ColorName(tcell.ColorDodgerBlue); got != "dodgerblue" {
		t.Errorf("ColorName(dodgerblue) = %q", got)
	}
	if got := ColorName(tcell.NewRGBColor(1, 2, 3)); got != "#010203" {
		t.Errorf("ColorName(rgb) = %q", got)
	}
}

func TestFlashRepeatsAndExpiry(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Warn("reconnecting")
	f.Warn("reconnecting")
	if msg := f.GetMessage(); msg == nil || msg.Repeats != 1 {
		t.Fatalf("message = %+v, want one repeat", msg)
	}

	f.Info("other")
	if msg := f.GetMessage(); msg == nil || msg.Repeats != 0 || msg.Text != "other" {
		t.Fatalf("message = %+v, want fresh notice", msg)
	}

	now = now.Add(6 * time.Second)
	if msg := f.GetMessage(); msg != nil {
		t.Errorf("info should expire after 5s, got %+v", msg)
	}

	f.Err(nil)
	if msg := f.GetMessage(); msg != nil {
		t.Errorf("nil error raised %+v", msg)
	}
}
