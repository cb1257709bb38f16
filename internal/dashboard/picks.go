package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/selection"
)

// pickStore keeps each session's card selection per table and tab so it
// survives page changes and reloads.
type pickStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	sets map[string]*pickSet
}

type pickSet struct {
	multi   *selection.Multi
	touched time.Time
}

func newPickStore(ttl time.Duration) *pickStore {
	return &pickStore{ttl: ttl, now: time.Now, sets: make(map[string]*pickSet)}
}

func pickKey(session string, table int64, tab cardflow.Status) string {
	return fmt.Sprintf("%s|%d|%s", session, table, tab)
}

// with runs fn on the selection behind key while holding the store lock.
func (p *pickStore) with(key string, fn func(m *selection.Multi)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, set := range p.sets {
		if now.Sub(set.touched) > p.ttl {
			delete(p.sets, k)
		}
	}
	set, ok := p.sets[key]
	if !ok {
		set = &pickSet{multi: selection.NewMulti(nil)}
		p.sets[key] = set
	}
	set.touched = now
	fn(set.multi)
}

// forget drops every selection held for session.
func (p *pickStore) forget(session string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := session + "|"
	for k := range p.sets {
		if strings.HasPrefix(k, prefix) {
			delete(p.sets, k)
		}
	}
}
