package cardflow

import (
	"errors"
	"testing"
)

func TestTargetFollowsWorkflow(t *testing.T) {
	cases := []struct {
		action Action
		from   Status
		want   Status
	}{
		{Verify, Pending, Verified},
		{Unverify, Verified, Pending},
		{Approve, Verified, Approved},
		{Unapprove, Approved, Verified},
		{MarkDownloaded, Approved, Download},
		{Retrieve, Pool, Pending},
		{Delete, Pending, Pool},
		{Delete, Verified, Pool},
	}
	for _, tc := range cases {
		got, removed, err := Target(tc.action, tc.from)
		if err != nil {
			t.Fatalf("%s from %s: %v", tc.action, tc.from, err)
		}
		if removed || got != tc.want {
			t.Fatalf("%s from %s: got %s removed=%v, want %s", tc.action, tc.from, got, removed, tc.want)
		}
	}
}

func TestTargetRejectsInvalidTransitions(t *testing.T) {
	for _, tc := range []struct {
		action Action
		from   Status
	}{
		{Verify, Approved},
		{Delete, Approved},
		{Delete, Download},
		{Retrieve, Pending},
		{DeletePermanent, Pending},
		{Action("explode"), Pending},
	} {
		if _, _, err := Target(tc.action, tc.from); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s from %s: expected ErrInvalidTransition, got %v", tc.action, tc.from, err)
		}
	}
}

func TestPoolThenRetrieveReturnsToPending(t *testing.T) {
	status := Pending
	next, _, err := Target(Delete, status)
	if err != nil || next != Pool {
		t.Fatalf("soft delete: %s %v", next, err)
	}
	back, _, err := Target(Retrieve, next)
	if err != nil || back != Pending {
		t.Fatalf("retrieve: %s %v", back, err)
	}
}

func TestHardDeleteOnlyFromPool(t *testing.T) {
	_, removed, err := Target(DeletePermanent, Pool)
	if err != nil || !removed {
		t.Fatalf("expected removal from pool, got removed=%v err=%v", removed, err)
	}
	if !NeedsConfirm(DeletePermanent) {
		t.Fatalf("hard delete must require confirmation")
	}
}

func TestDeleteForTab(t *testing.T) {
	cases := map[Status]Action{Pending: Delete, Verified: Delete, Pool: DeletePermanent}
	for tab, want := range cases {
		got, ok := DeleteFor(tab)
		if !ok || got != want {
			t.Fatalf("tab %s: got %s ok=%v", tab, got, ok)
		}
	}
	for _, tab := range []Status{Approved, Download} {
		if _, ok := DeleteFor(tab); ok {
			t.Fatalf("tab %s should not offer delete", tab)
		}
	}
}

func TestRowAndBulkActions(t *testing.T) {
	if got := RowActions(Verified); len(got) != 2 || got[0] != Approve || got[1] != Unverify {
		t.Fatalf("verified row actions: %v", got)
	}
	if got := RowActions(Download); len(got) != 0 {
		t.Fatalf("download tab should have no row actions: %v", got)
	}
	bulk := BulkActions(Pool)
	if len(bulk) != 2 || bulk[0] != Retrieve || bulk[1] != DeletePermanent {
		t.Fatalf("pool bulk actions: %v", bulk)
	}
	if len(RowActions(Pool)) != 1 {
		t.Fatalf("BulkActions must not mutate RowActions")
	}
}

func TestMessages(t *testing.T) {
	if got := SuccessMessage(Verify, 1); got != "Card verified successfully" {
		t.Fatalf("single message: %q", got)
	}
	if got := SuccessMessage(Delete, 3); got != "3 card(s) moved to pool" {
		t.Fatalf("bulk message: %q", got)
	}
	if _, ok := ParseStatus(" Verified "); !ok {
		t.Fatalf("expected status parse")
	}
	if _, ok := ParseStatus("reprint"); ok {
		t.Fatalf("reprint is not a workflow tab")
	}
}
