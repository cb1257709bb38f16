package selection

import (
	"strings"
	"testing"

	"github.com/phillip-england/cardsuite/internal/cardflow"
)

func TestSingleToggle(t *testing.T) {
	s := NewSingle("")
	s.Toggle("1")
	if id, ok := s.Selected(); !ok || id != "1" {
		t.Fatalf("expected 1 selected, got %q %v", id, ok)
	}
	s.Toggle("2")
	if !s.IsSelected("2") || s.IsSelected("1") {
		t.Fatalf("selection should move to 2")
	}
	s.Toggle("2")
	if s.Cardinality() != None {
		t.Fatalf("clicking the selected row should clear it")
	}
}

func TestGateList(t *testing.T) {
	none := GateList(None, true)
	if !none.Add || none.Edit || none.View || none.Delete || none.Toggle {
		t.Fatalf("unexpected gate with no selection: %+v", none)
	}
	active := GateList(One, true)
	if !active.Edit || !active.View || !active.Delete || !active.Toggle || active.ToggleLabel != "Deactivate" {
		t.Fatalf("unexpected gate for active row: %+v", active)
	}
	if GateList(One, false).ToggleLabel != "Activate" {
		t.Fatalf("inactive row should offer Activate")
	}
}

func TestMultiRangeSelect(t *testing.T) {
	m := NewMulti([]string{"a", "b", "c", "d", "e"})
	m.Toggle("b")
	m.ToggleRange("d")
	if got := strings.Join(m.IDs(), ","); got != "b,c,d" {
		t.Fatalf("range select: got %s", got)
	}
	m.ToggleRange("c")
	if got := strings.Join(m.IDs(), ","); got != "b" {
		t.Fatalf("range deselect should clear c..d, got %s", got)
	}
}

func TestMultiRangeWithoutAnchorToggles(t *testing.T) {
	m := NewMulti([]string{"a", "b"})
	m.ToggleRange("b")
	if got := strings.Join(m.IDs(), ","); got != "b" {
		t.Fatalf("got %s", got)
	}
}

func TestMultiSelectAllVisible(t *testing.T) {
	m := NewMulti([]string{"a", "b"})
	m.SelectAllVisible()
	if !m.AllVisibleSelected() || m.Count() != 2 {
		t.Fatalf("expected both rows selected")
	}
	m.SelectAllVisible()
	if m.Count() != 0 {
		t.Fatalf("second select-all should clear")
	}
}

func TestMultiSelectionSurvivesPageChange(t *testing.T) {
	m := NewMulti([]string{"a", "b"})
	m.Toggle("a")
	m.SetVisible([]string{"c", "d"})
	if !m.IsSelected("a") {
		t.Fatalf("selection should survive a page change")
	}
	if got := strings.Join(m.IDs(), ","); got != "a" {
		t.Fatalf("got %s", got)
	}
}

func TestMultiReplaceAllAndTargets(t *testing.T) {
	m := NewMulti([]string{"a", "b"})
	if got := strings.Join(m.Targets(), ","); got != "a,b" {
		t.Fatalf("empty selection should target visible rows, got %s", got)
	}
	m.ReplaceAll([]string{"x", "y", "z"})
	if m.Count() != 3 || m.Cardinality() != Many {
		t.Fatalf("expected 3 selected")
	}
	if len(m.Targets()) != 3 {
		t.Fatalf("targets should be the selection")
	}
}

func TestGateCardsByCardinality(t *testing.T) {
	none := GateCards(cardflow.Pending, 0)
	if !none.Add || !none.Upload || none.Edit || none.View {
		t.Fatalf("zero selected: %+v", none)
	}
	if none.Enabled(cardflow.Verify) {
		t.Fatalf("bulk actions need a selection")
	}

	one := GateCards(cardflow.Pending, 1)
	if one.Add || one.Upload || !one.Edit || !one.View || !one.Enabled(cardflow.Verify) {
		t.Fatalf("one selected: %+v", one)
	}

	many := GateCards(cardflow.Verified, 3)
	if many.Add || many.Edit || many.View {
		t.Fatalf("many selected should only allow bulk actions: %+v", many)
	}
	for _, a := range []cardflow.Action{cardflow.Approve, cardflow.Unverify, cardflow.Delete} {
		if !many.Enabled(a) {
			t.Fatalf("expected %s enabled", a)
		}
	}
}

func TestGateCardsPerTab(t *testing.T) {
	pool := GateCards(cardflow.Pool, 2)
	if !pool.Enabled(cardflow.DeletePermanent) || pool.Enabled(cardflow.Delete) {
		t.Fatalf("pool should offer only permanent delete: %+v", pool.Bulk)
	}
	dl := GateCards(cardflow.Download, 2)
	if len(dl.Bulk) != 0 || !dl.Downloadable {
		t.Fatalf("download tab: %+v", dl)
	}
}
