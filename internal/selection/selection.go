// Package selection tracks row selection on list pages and derives which
// toolbar buttons are enabled from it.
package selection

import "github.com/phillip-england/cardsuite/internal/cardflow"

type Cardinality int

const (
	None Cardinality = iota
	One
	Many
)

func cardinalityOf(n int) Cardinality {
	switch {
	case n <= 0:
		return None
	case n == 1:
		return One
	default:
		return Many
	}
}

// Single is the selection model for clients, staff and tables: at most one
// row, and clicking the selected row again clears it.
type Single struct {
	id string
}

func NewSingle(id string) *Single {
	return &Single{id: id}
}

func (s *Single) Toggle(id string) {
	if id == "" || s.id == id {
		s.id = ""
		return
	}
	s.id = id
}

func (s *Single) Clear() {
	s.id = ""
}

func (s *Single) Selected() (string, bool) {
	return s.id, s.id != ""
}

func (s *Single) IsSelected(id string) bool {
	return id != "" && s.id == id
}

func (s *Single) Cardinality() Cardinality {
	if s.id == "" {
		return None
	}
	return One
}

// Multi is the checkbox selection model for cards.
type Multi struct {
	visible []string
	index   map[string]int
	ids     map[string]struct{}
	anchor  string
}

func NewMulti(visible []string) *Multi {
	m := &Multi{ids: make(map[string]struct{})}
	m.SetVisible(visible)
	return m
}

// SetVisible replaces the rows the user can currently see. Existing
// selections survive so a page change does not drop them.
func (m *Multi) SetVisible(visible []string) {
	m.visible = append(m.visible[:0:0], visible...)
	m.index = make(map[string]int, len(visible))
	for i, id := range visible {
		m.index[id] = i
	}
	if _, ok := m.index[m.anchor]; !ok {
		m.anchor = ""
	}
}

func (m *Multi) Toggle(id string) {
	if _, ok := m.ids[id]; ok {
		delete(m.ids, id)
	} else {
		m.ids[id] = struct{}{}
	}
	m.anchor = id
}

// ToggleRange is a shift-click: id is toggled and every visible row
// between the last clicked row and id takes the same state.
func (m *Multi) ToggleRange(id string) {
	end, ok := m.index[id]
	start, hasAnchor := m.index[m.anchor]
	if !ok || !hasAnchor {
		m.Toggle(id)
		return
	}
	_, wasSelected := m.ids[id]
	checked := !wasSelected
	if start > end {
		start, end = end, start
	}
	for _, rowID := range m.visible[start : end+1] {
		if checked {
			m.ids[rowID] = struct{}{}
		} else {
			delete(m.ids, rowID)
		}
	}
	m.anchor = id
}

// SelectAllVisible checks every visible row, or clears them when they are
// all already checked.
func (m *Multi) SelectAllVisible() {
	if m.AllVisibleSelected() {
		for _, id := range m.visible {
			delete(m.ids, id)
		}
		return
	}
	for _, id := range m.visible {
		m.ids[id] = struct{}{}
	}
}

// ReplaceAll selects exactly ids, used when every card of a status is
// selected from the server.
func (m *Multi) ReplaceAll(ids []string) {
	m.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	m.anchor = ""
}

func (m *Multi) Clear() {
	m.ids = make(map[string]struct{})
	m.anchor = ""
}

func (m *Multi) IsSelected(id string) bool {
	_, ok := m.ids[id]
	return ok
}

func (m *Multi) Count() int {
	return len(m.ids)
}

func (m *Multi) Cardinality() Cardinality {
	return cardinalityOf(len(m.ids))
}

func (m *Multi) AllVisibleSelected() bool {
	if len(m.visible) == 0 {
		return false
	}
	for _, id := range m.visible {
		if _, ok := m.ids[id]; !ok {
			return false
		}
	}
	return true
}

// IDs returns the selection with visible rows first, in display order.
func (m *Multi) IDs() []string {
	out := make([]string, 0, len(m.ids))
	seen := make(map[string]struct{}, len(m.ids))
	for _, id := range m.visible {
		if _, ok := m.ids[id]; ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	for id := range m.ids {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Targets is what a bulk download acts on: the selection, or every visible
// row when nothing is selected.
func (m *Multi) Targets() []string {
	if len(m.ids) > 0 {
		return m.IDs()
	}
	return append([]string(nil), m.visible...)
}

// ListGate is the toolbar state of a single-select page.
type ListGate struct {
	Add         bool
	Edit        bool
	View        bool
	Delete      bool
	Toggle      bool
	ToggleLabel string
}

// GateList derives the toolbar of a single-select page. active is the
// status of the selected row.
func GateList(c Cardinality, active bool) ListGate {
	one := c == One
	label := "Deactivate"
	if !active {
		label = "Activate"
	}
	if !one {
		label = "Toggle Status"
	}
	return ListGate{
		Add:         true,
		Edit:        one,
		View:        one,
		Delete:      one,
		Toggle:      one,
		ToggleLabel: label,
	}
}

type ActionButton struct {
	Action  cardflow.Action
	Label   string
	Enabled bool
	Confirm bool
}

// CardGate is the toolbar state of the cards page for one status tab.
type CardGate struct {
	Add          bool
	Upload       bool
	Edit         bool
	View         bool
	Selected     int
	Bulk         []ActionButton
	Downloadable bool
}

func GateCards(tab cardflow.Status, selected int) CardGate {
	c := cardinalityOf(selected)
	gate := CardGate{
		Add:          c == None,
		Upload:       c == None,
		Edit:         c == One,
		View:         c == One,
		Selected:     selected,
		Downloadable: tab == cardflow.Approved || tab == cardflow.Download,
	}
	for _, action := range cardflow.BulkActions(tab) {
		gate.Bulk = append(gate.Bulk, ActionButton{
			Action:  action,
			Label:   action.Label(),
			Enabled: c != None,
			Confirm: cardflow.NeedsConfirm(action),
		})
	}
	return gate
}

// Enabled reports whether action is offered and enabled by g.
func (g CardGate) Enabled(action cardflow.Action) bool {
	for _, b := range g.Bulk {
		if b.Action == action {
			return b.Enabled
		}
	}
	return false
}
