package drawer

import (
	"context"
	"errors"
	"testing"
	"time"
)

type client struct{ ID string }

func TestDrawerModes(t *testing.T) {
	var d Drawer[client]
	if _, err := d.SaveOp(); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed drawer should not save, got %v", err)
	}

	d.OpenAdd()
	if op, err := d.SaveOp(); err != nil || op != OpCreate {
		t.Fatalf("add should create: %s %v", op, err)
	}
	if d.Title("Client") != "Add Client" {
		t.Fatalf("unexpected title %q", d.Title("Client"))
	}

	if err := d.OpenWith(ModeEdit, client{ID: "7"}); err != nil {
		t.Fatalf("open edit: %v", err)
	}
	if op, err := d.SaveOp(); err != nil || op != OpUpdate {
		t.Fatalf("edit should update: %s %v", op, err)
	}
	if e, ok := d.Entity(); !ok || e.ID != "7" {
		t.Fatalf("edit should carry entity")
	}

	if err := d.OpenWith(ModeView, client{ID: "7"}); err != nil {
		t.Fatalf("open view: %v", err)
	}
	if !d.ReadOnly() || d.ShowSave() {
		t.Fatalf("view mode must be read-only without save")
	}
	if _, err := d.SaveOp(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("view should not save, got %v", err)
	}
	if err := d.AttachFile("photo.png"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("view should not accept files, got %v", err)
	}
}

func TestDrawerCloseReasonsConverge(t *testing.T) {
	for _, reason := range []CloseReason{CloseOverlay, CloseButton, CloseEscape} {
		var d Drawer[client]
		_ = d.OpenWith(ModeEdit, client{ID: "1"})
		_ = d.AttachFile("sheet.xlsx")
		d.Close(reason)
		if d.IsOpen() || d.BodyLocked() || d.File() != "" || d.Mode() != "" {
			t.Fatalf("%s: drawer not fully reset", reason)
		}
		if _, ok := d.Entity(); ok {
			t.Fatalf("%s: entity should be cleared", reason)
		}
	}
}

func TestConfirmRunsOnce(t *testing.T) {
	c := NewConfirms(time.Minute)
	runs := 0
	p := c.OpenRequest(Request{Title: "Delete", Message: "Delete 1 card?", Return: "/cards?table=1"}, func(context.Context) (string, error) {
		runs++
		return "Card moved to pool", nil
	})
	if _, ok := c.Lookup(p.Token, ""); !ok {
		t.Fatalf("expected prompt lookup to succeed")
	}
	got, msg, err := c.Confirm(context.Background(), p.Token, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if msg != "Card moved to pool" || got.Return != "/cards?table=1" {
		t.Fatalf("confirm = %+v %q", got, msg)
	}
	if _, _, err := c.Confirm(context.Background(), p.Token, ""); !errors.Is(err, ErrNoPending) {
		t.Fatalf("second confirm should be a no-op, got %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
}

func TestConfirmDismissDiscards(t *testing.T) {
	for _, reason := range []CloseReason{CloseOverlay, CloseButton, CloseEscape} {
		c := NewConfirms(time.Minute)
		ran := false
		p := c.Open("Toggle", "Deactivate?", func(context.Context) (string, error) {
			ran = true
			return "", nil
		})
		if _, ok := c.Dismiss(p.Token, "", reason); !ok {
			t.Fatalf("%s: dismiss should find the prompt", reason)
		}
		if _, _, err := c.Confirm(context.Background(), p.Token, ""); !errors.Is(err, ErrNoPending) {
			t.Fatalf("%s: expected ErrNoPending, got %v", reason, err)
		}
		if ran || c.Len() != 0 {
			t.Fatalf("%s: pending action should be discarded", reason)
		}
	}
}

func TestConfirmExpires(t *testing.T) {
	c := NewConfirms(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	p := c.Open("Delete", "", func(context.Context) (string, error) { return "", nil })
	now = now.Add(2 * time.Minute)
	if _, _, err := c.Confirm(context.Background(), p.Token, ""); !errors.Is(err, ErrNoPending) {
		t.Fatalf("expired confirm should fail, got %v", err)
	}
}

func TestConfirmBelongsToOwner(t *testing.T) {
	c := NewConfirms(time.Minute)
	runs := 0
	p := c.OpenRequest(Request{Title: "Delete Client", Owner: "session-a"}, func(context.Context) (string, error) {
		runs++
		return "Client deleted", nil
	})
	if _, ok := c.Lookup(p.Token, "session-b"); ok {
		t.Fatalf("another session should not see the prompt")
	}
	if _, _, err := c.Confirm(context.Background(), p.Token, "session-b"); !errors.Is(err, ErrNoPending) {
		t.Fatalf("confirm from another session = %v, want ErrNoPending", err)
	}
	if _, ok := c.Dismiss(p.Token, "session-b", CloseButton); ok {
		t.Fatalf("another session should not dismiss the prompt")
	}
	if runs != 0 || c.Len() != 1 {
		t.Fatalf("runs = %d, pending = %d", runs, c.Len())
	}
	if _, msg, err := c.Confirm(context.Background(), p.Token, "session-a"); err != nil || msg != "Client deleted" {
		t.Fatalf("owner confirm = %q, %v", msg, err)
	}
	if runs != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
}

func TestConfirmSlotKeepsNewestPrompt(t *testing.T) {
	c := NewConfirms(time.Minute)
	noop := func(context.Context) (string, error) { return "", nil }
	first := c.OpenRequest(Request{Title: "Confirm Upload", Owner: "a", Slot: "upload"}, noop)
	other := c.OpenRequest(Request{Title: "Confirm Upload", Owner: "b", Slot: "upload"}, noop)
	second := c.OpenRequest(Request{Title: "Confirm Upload", Owner: "a", Slot: "upload"}, noop)
	c.OpenRequest(Request{Title: "Delete", Owner: "a"}, noop)

	if _, ok := c.Lookup(first.Token, "a"); ok {
		t.Fatalf("older upload prompt should be replaced")
	}
	if _, ok := c.Lookup(second.Token, "a"); !ok {
		t.Fatalf("newest upload prompt should stay")
	}
	if _, ok := c.Lookup(other.Token, "b"); !ok {
		t.Fatalf("another owner's upload prompt should stay")
	}
	if c.Len() != 3 {
		t.Fatalf("pending = %d, want 3", c.Len())
	}
}
