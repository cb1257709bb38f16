// Package drawer models the slide-in edit panel and the confirm modal.
package drawer

import (
	"errors"
	"strings"
)

type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
	ModeView Mode = "view"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAdd:
		return ModeAdd, true
	case ModeEdit:
		return ModeEdit, true
	case ModeView:
		return ModeView, true
	default:
		return "", false
	}
}

type CloseReason string

const (
	CloseOverlay CloseReason = "overlay"
	CloseButton  CloseReason = "button"
	CloseEscape  CloseReason = "escape"
	CloseSaved   CloseReason = "saved"
)

// Op is what saving the drawer does on the server.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

var (
	ErrClosed   = errors.New("drawer is closed")
	ErrReadOnly = errors.New("drawer is read-only")
	ErrNoEntity = errors.New("edit and view need an entity")
)

// Drawer is closed or open in one mode. Edit and view carry the entity
// they were opened for.
type Drawer[T any] struct {
	open       bool
	mode       Mode
	entity     T
	hasEntity  bool
	file       string
	bodyLocked bool
}

func (d *Drawer[T]) OpenAdd() {
	var zero T
	d.open = true
	d.mode = ModeAdd
	d.entity = zero
	d.hasEntity = false
	d.file = ""
	d.bodyLocked = true
}

func (d *Drawer[T]) OpenWith(mode Mode, entity T) error {
	switch mode {
	case ModeAdd:
		d.OpenAdd()
		return nil
	case ModeEdit, ModeView:
	default:
		return errors.New("unknown drawer mode")
	}
	d.open = true
	d.mode = mode
	d.entity = entity
	d.hasEntity = true
	d.file = ""
	d.bodyLocked = true
	return nil
}

// Close ends in the same state whatever the reason.
func (d *Drawer[T]) Close(CloseReason) {
	var zero T
	d.open = false
	d.mode = ""
	d.entity = zero
	d.hasEntity = false
	d.file = ""
	d.bodyLocked = false
}

// AttachFile records the file input chosen while the drawer is open.
func (d *Drawer[T]) AttachFile(name string) error {
	if !d.open {
		return ErrClosed
	}
	if d.mode == ModeView {
		return ErrReadOnly
	}
	d.file = name
	return nil
}

func (d *Drawer[T]) File() string      { return d.file }
func (d *Drawer[T]) IsOpen() bool      { return d.open }
func (d *Drawer[T]) Mode() Mode        { return d.mode }
func (d *Drawer[T]) BodyLocked() bool  { return d.bodyLocked }
func (d *Drawer[T]) ReadOnly() bool    { return d.open && d.mode == ModeView }
func (d *Drawer[T]) ShowSave() bool    { return d.open && d.mode != ModeView }
func (d *Drawer[T]) Entity() (T, bool) { return d.entity, d.hasEntity }

// SaveOp maps the current mode to a server operation.
func (d *Drawer[T]) SaveOp() (Op, error) {
	if !d.open {
		return "", ErrClosed
	}
	switch d.mode {
	case ModeAdd:
		return OpCreate, nil
	case ModeEdit:
		if !d.hasEntity {
			return "", ErrNoEntity
		}
		return OpUpdate, nil
	default:
		return "", ErrReadOnly
	}
}

// Title is the drawer heading for a noun such as "Client".
func (d *Drawer[T]) Title(noun string) string {
	switch d.mode {
	case ModeAdd:
		return "Add " + noun
	case ModeEdit:
		return "Edit " + noun
	case ModeView:
		return noun + " Details"
	default:
		return noun
	}
}
