package imagetree

import "fmt"

// Address names a node of a Tree. The zero value is the root; every other
// address is an entry identified by the directory slot that holds it and its
// row within that directory. Column selects a metadata field and does not
// change which node is named.
//
// Slots are append-only, so an address stays valid for the life of its tree.
type Address struct {
	entry  bool
	slot   int
	row    int
	column int
}

// Root returns the root address.
func Root() Address {
	return Address{}
}

// At returns the address of row within directory slot.
func At(slot, row, column int) Address {
	return Address{entry: true, slot: slot, row: row, column: column}
}

func (a Address) IsRoot() bool { return !a.entry }
func (a Address) Slot() int    { return a.slot }
func (a Address) Row() int     { return a.row }
func (a Address) Column() int  { return a.column }

// WithColumn returns the same node at another column.
func (a Address) WithColumn(column int) Address {
	a.column = column
	return a
}

// SameNode reports whether a and b name the same node, ignoring columns.
func (a Address) SameNode(b Address) bool {
	if !a.entry || !b.entry {
		return a.entry == b.entry
	}
	return a.slot == b.slot && a.row == b.row
}

func (a Address) String() string {
	if !a.entry {
		return "root"
	}
	return fmt.Sprintf("%d:%d:%d", a.slot, a.row, a.column)
}
