// Package editor implements interactive bulk editing of one role's grants.
// Edits apply to a draft copy through a pure reducer; the draft reaches the
// permission store only on commit.
package editor

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// ErrInvalidAction indicates an action that does not fit the catalog.
var ErrInvalidAction = errors.New("editor: invalid action")

// Kind tags an Action variant.
type Kind string

// Action kinds.
const (
	ToggleCell     Kind = "toggle_cell"
	ToggleCategory Kind = "toggle_category"
	ToggleModule   Kind = "toggle_module"
)

// Action is one edit. ToggleCell uses ModuleID and Operation,
// ToggleCategory uses Category and Operation, ToggleModule uses ModuleID.
type Action struct {
	Kind      Kind           `json:"kind" validate:"required,oneof=toggle_cell toggle_category toggle_module"`
	ModuleID  string         `json:"module,omitempty"`
	Category  string         `json:"category,omitempty"`
	Operation rbac.Operation `json:"operation,omitempty" validate:"omitempty,oneof=view create update delete"`
}

// Validate checks the action against catalog.
func (a Action) Validate(catalog *rbac.Catalog) error {
	switch a.Kind {
	case ToggleCell:
		if err := knownModule(catalog, a.ModuleID); err != nil {
			return err
		}
		return knownOperation(a.Operation)
	case ToggleCategory:
		if a.Category == "" {
			return fmt.Errorf("%w: category required", ErrInvalidAction)
		}
		return knownOperation(a.Operation)
	case ToggleModule:
		return knownModule(catalog, a.ModuleID)
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
}

func knownModule(catalog *rbac.Catalog, id string) error {
	if _, ok := catalog.Module(id); !ok {
		return fmt.Errorf("%w: unknown module %q", ErrInvalidAction, id)
	}
	return nil
}

func knownOperation(op rbac.Operation) error {
	if !op.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidAction, op)
	}
	return nil
}

// Reduce returns the draft that results from applying a to draft. The input
// is never modified. Every transition keeps view as the prerequisite of
// create, update and delete.
func Reduce(catalog *rbac.Catalog, draft rbac.Grants, a Action) rbac.Grants {
	next := draft.Clone()
	switch a.Kind {
	case ToggleCell:
		toggleCell(next, a.ModuleID, a.Operation)
	case ToggleCategory:
		toggleCategory(next, catalog.ModulesInCategory(a.Category), a.Operation)
	case ToggleModule:
		toggleModule(next, a.ModuleID)
	}
	return next
}

func toggleCell(d rbac.Grants, id string, op rbac.Operation) {
	if !op.Valid() {
		return
	}
	p := d[id]
	on := !p.Get(op)
	p = p.With(op, on)
	switch {
	case op == rbac.OpView && !on:
		p = rbac.ModulePermissions{}
	case op != rbac.OpView && on:
		p.View = true
	}
	d[id] = p
}

func toggleCategory(d rbac.Grants, modules []rbac.Module, op rbac.Operation) {
	if !op.Valid() || len(modules) == 0 {
		return
	}
	if allEnabled(d, modules, op) {
		for _, m := range modules {
			if op == rbac.OpView {
				d[m.ID] = rbac.ModulePermissions{}
				continue
			}
			d[m.ID] = d[m.ID].With(op, false)
		}
		return
	}
	for _, m := range modules {
		p := d[m.ID].With(op, true)
		p.View = true
		d[m.ID] = p
	}
}

// allEnabled is vacuously true for an empty module list.
func allEnabled(d rbac.Grants, modules []rbac.Module, op rbac.Operation) bool {
	for _, m := range modules {
		if !d[m.ID].Get(op) {
			return false
		}
	}
	return true
}

func toggleModule(d rbac.Grants, id string) {
	if d[id].All() {
		d[id] = rbac.ModulePermissions{}
		return
	}
	d[id] = rbac.AllGranted()
}

// changes reports whether a has any effect; toggling an empty category
// does not.
func changes(catalog *rbac.Catalog, a Action) bool {
	if a.Kind == ToggleCategory {
		return len(catalog.ModulesInCategory(a.Category)) > 0
	}
	return true
}
