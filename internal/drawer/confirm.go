package drawer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNoPending = errors.New("no pending confirmation")

// Action runs when a confirmation is accepted and returns the message to
// show on success.
type Action func(ctx context.Context) (string, error)

// Request describes a confirm modal. Return is where the browser goes
// once the modal is answered; Detail is extra data the modal renders,
// such as an upload summary.
//
// Owner is the session that opened the prompt; no other owner can see,
// run or dismiss it. An owner holds at most one prompt per non-empty Slot,
// and opening another replaces the older one.
type Request struct {
	Title   string
	Message string
	Return  string
	Detail  any
	Owner   string
	Slot    string
}

type pendingAction struct {
	req     Request
	run     Action
	expires time.Time
}

// Confirms holds actions waiting for an explicit confirm. Each action runs
// at most once; cancel and expiry discard it.
type Confirms struct {
	mu      sync.Mutex
	pending map[string]pendingAction
	ttl     time.Duration
	now     func() time.Time
}

func NewConfirms(ttl time.Duration) *Confirms {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Confirms{
		pending: make(map[string]pendingAction),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Prompt is the rendered state of an open confirm modal.
type Prompt struct {
	Token string
	Request
}

// Open stores run and returns the token the modal posts back.
func (c *Confirms) Open(title, message string, run Action) Prompt {
	return c.OpenRequest(Request{Title: title, Message: message}, run)
}

func (c *Confirms) OpenRequest(req Request, run Action) Prompt {
	token := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	if req.Slot != "" {
		for old, p := range c.pending {
			if p.req.Owner == req.Owner && p.req.Slot == req.Slot {
				delete(c.pending, old)
			}
		}
	}
	c.pending[token] = pendingAction{
		req:     req,
		run:     run,
		expires: c.now().Add(c.ttl),
	}
	return Prompt{Token: token, Request: req}
}

// Lookup returns owner's prompt for token without consuming it.
func (c *Confirms) Lookup(token, owner string) (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok || p.req.Owner != owner || c.now().After(p.expires) {
		return Prompt{}, false
	}
	return Prompt{Token: token, Request: p.req}, true
}

// Confirm runs owner's action behind token and forgets it. The prompt is
// returned even when the action fails so callers know where to go next.
// A token presented by anyone else is left in place.
func (c *Confirms) Confirm(ctx context.Context, token, owner string) (Prompt, string, error) {
	c.mu.Lock()
	p, ok := c.pending[token]
	if !ok || p.req.Owner != owner {
		c.mu.Unlock()
		return Prompt{}, "", ErrNoPending
	}
	delete(c.pending, token)
	c.mu.Unlock()
	if c.now().After(p.expires) {
		return Prompt{}, "", ErrNoPending
	}
	prompt := Prompt{Token: token, Request: p.req}
	msg, err := p.run(ctx)
	return prompt, msg, err
}

// Dismiss drops owner's action behind token. Overlay, cancel and Escape
// all land here.
func (c *Confirms) Dismiss(token, owner string, _ CloseReason) (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok || p.req.Owner != owner {
		return Prompt{}, false
	}
	delete(c.pending, token)
	return Prompt{Token: token, Request: p.req}, true
}

func (c *Confirms) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Confirms) sweepLocked() {
	now := c.now()
	for token, p := range c.pending {
		if now.After(p.expires) {
			delete(c.pending, token)
		}
	}
}
