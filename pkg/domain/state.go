package domain

import "vaultcore/pkg/version"

// DataState is the lifecycle classification of an item.
type DataState string

const (
	StateClean     DataState = "clean"
	StateNew       DataState = "new"
	StateChanged   DataState = "changed"
	StateDeleted   DataState = "deleted"
	StateRecovered DataState = "recovered"
	// StateDelNew marks a pending-new item that was deleted before its first commit.
	StateDelNew DataState = "delnew"
)

// EditState is the dirtiness/validity classification of an item.
type EditState string

const (
	EditClean EditState = "clean"
	EditDirty EditState = "dirty"
	EditError EditState = "error"
)

// DeriveState computes the data state of an item. Rules are evaluated in
// order and the first match wins: an original above version 0 marks a record
// that has never been committed.
func DeriveState(original, current *version.ValueSet) DataState {
	switch {
	case original.Version() > 0 && current.Deleted():
		return StateDelNew
	case original.Version() > 0:
		return StateNew
	case current.Version() == 0:
		return StateClean
	case current.Deleted():
		return StateDeleted
	case original.Deleted():
		return StateRecovered
	default:
		return StateChanged
	}
}

// DeriveEditState computes the edit state. Errors take precedence over
// dirtiness.
func DeriveEditState(current *version.ValueSet, hasErrors bool) EditState {
	switch {
	case hasErrors:
		return EditError
	case current.Version() != 0:
		return EditDirty
	default:
		return EditClean
	}
}
