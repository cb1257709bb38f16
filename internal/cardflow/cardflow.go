// Package cardflow holds the card status workflow: which statuses exist,
// which actions move a card between them, and which actions each status
// tab offers.
package cardflow

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	Pending  Status = "pending"
	Verified Status = "verified"
	Pool     Status = "pool"
	Approved Status = "approved"
	Download Status = "download"
	// Reprint is reported by the admin API but never targeted from the dashboard.
	Reprint Status = "reprint"
)

// Tabs lists the workflow statuses in the order the dashboard shows them.
var Tabs = []Status{Pending, Verified, Pool, Approved, Download}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, tab := range Tabs {
		if s == tab {
			return s, true
		}
	}
	return "", false
}

func (s Status) Label() string {
	switch s {
	case Pending:
		return "Pending"
	case Verified:
		return "Verified"
	case Pool:
		return "Pool"
	case Approved:
		return "Approved"
	case Download:
		return "Download"
	case Reprint:
		return "Reprint"
	default:
		return string(s)
	}
}

type Action string

const (
	Verify          Action = "verify"
	Unverify        Action = "unverify"
	Approve         Action = "approve"
	Unapprove       Action = "unapprove"
	MarkDownloaded  Action = "download"
	Retrieve        Action = "retrieve"
	Delete          Action = "delete"
	DeletePermanent Action = "delete-permanent"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type transition struct {
	from    []Status
	to      Status
	label   string
	single  string
	bulk    string
	confirm bool
}

var transitions = map[Action]transition{
	Verify:          {from: []Status{Pending}, to: Verified, label: "Verify", single: "Card verified successfully", bulk: "verified"},
	Unverify:        {from: []Status{Verified}, to: Pending, label: "Unverify", single: "Card moved back to pending", bulk: "moved to pending"},
	Approve:         {from: []Status{Verified}, to: Approved, label: "Approve", single: "Card approved successfully", bulk: "approved"},
	Unapprove:       {from: []Status{Approved}, to: Verified, label: "Unapprove", single: "Card moved back to verified", bulk: "moved to verified"},
	MarkDownloaded:  {from: []Status{Approved}, to: Download, label: "Download", single: "Card moved to download list", bulk: "moved to download list"},
	Retrieve:        {from: []Status{Pool}, to: Pending, label: "Retrieve", single: "Card retrieved to pending list", bulk: "retrieved to pending"},
	Delete:          {from: []Status{Pending, Verified}, to: Pool, label: "Delete", single: "Card moved to pool", bulk: "moved to pool", confirm: true},
	DeletePermanent: {from: []Status{Pool}, label: "Delete Permanently", single: "Card permanently deleted", bulk: "permanently deleted", confirm: true},
}

func ParseAction(raw string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := transitions[a]
	return a, ok
}

// Target returns the status a card in from ends up in after a. A hard
// delete has no target and reports removed=true.
func Target(a Action, from Status) (to Status, removed bool, err error) {
	t, ok := transitions[a]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, a)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, t.to == "", nil
		}
	}
	return "", false, fmt.Errorf("%w: cannot %s a %s card", ErrInvalidTransition, a, from)
}

// IsHardDelete reports whether a removes cards instead of moving them.
func IsHardDelete(a Action) bool {
	return a == DeletePermanent
}

func (a Action) Label() string {
	if t, ok := transitions[a]; ok {
		return t.label
	}
	return string(a)
}

// NeedsConfirm reports whether a must go through the confirm modal.
func NeedsConfirm(a Action) bool {
	return transitions[a].confirm
}

// RowActions are the per-row buttons shown on a tab.
func RowActions(tab Status) []Action {
	switch tab {
	case Pending:
		return []Action{Verify}
	case Verified:
		return []Action{Approve, Unverify}
	case Approved:
		return []Action{MarkDownloaded, Unapprove}
	case Pool:
		return []Action{Retrieve}
	default:
		return nil
	}
}

// BulkActions are the toolbar actions that apply to the selection on a tab.
func BulkActions(tab Status) []Action {
	actions := RowActions(tab)
	if del, ok := DeleteFor(tab); ok {
		actions = append(append([]Action{}, actions...), del)
	}
	return actions
}

// DeleteFor resolves what the delete button means on a tab. Pending and
// verified cards are soft deleted to the pool; pool cards are removed.
// Approved and downloaded cards cannot be deleted.
func DeleteFor(tab Status) (Action, bool) {
	switch tab {
	case Pending, Verified:
		return Delete, true
	case Pool:
		return DeletePermanent, true
	default:
		return "", false
	}
}

// SuccessMessage is the toast text after a acted on count cards.
func SuccessMessage(a Action, count int) string {
	t, ok := transitions[a]
	if !ok {
		return "Done"
	}
	if count == 1 {
		return t.single
	}
	return fmt.Sprintf("%d card(s) %s", count, t.bulk)
}

// ConfirmMessage is the body of the confirm modal for a.
func ConfirmMessage(a Action, count int) string {
	switch a {
	case DeletePermanent:
		return fmt.Sprintf("Permanently delete %d card(s)? This cannot be undone.", count)
	case Delete:
		return fmt.Sprintf("Move %d card(s) to the pool?", count)
	default:
		return fmt.Sprintf("%s %d card(s)?", a.Label(), count)
	}
}
