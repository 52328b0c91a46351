package memory

import (
	"fmt"
	"testing"
)

func TestWindowKeepsLast(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Add("chat1", RoleUser, fmt.Sprintf("msg %d", i))
	}
	got := w.History("chat1")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Text != "msg 3" || got[2].Text != "msg 5" {
		t.Errorf("history = %v", got)
	}
}

func TestWindowAsText(t *testing.T) {
	w := NewWindow(DefaultLimit)
	w.Add("chat1", RoleUser, "how much did we spend?")
	w.Add("chat1", RoleAssistant, "You spent $120 so far.")

	want := "user: how much did we spend?\nassistant: You spent $120 so far."
	if got := w.AsText("chat1"); got != want {
		t.Errorf("AsText() = %q, want %q", got, want)
	}
}

func TestWindowKeysIndependent(t *testing.T) {
	w := NewWindow(DefaultLimit)
	w.Add("chat1", RoleUser, "hello")
	if got := w.AsText("chat2"); got != "" {
		t.Errorf("AsText(chat2) = %q, want empty", got)
	}
}

func TestWindowClear(t *testing.T) {
	w := NewWindow(DefaultLimit)
	w.Add("chat1", RoleUser, "hello")
	w.Clear("chat1")
	if got := w.History("chat1"); len(got) != 0 {
		t.Errorf("history after Clear = %v", got)
	}
}
